package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/KIKOU2016/openr/internal/logging"
	"github.com/KIKOU2016/openr/internal/transport"
	"github.com/KIKOU2016/openr/internal/wire"
)

// peerConn lazily holds the client connection + stub opened for one peer.
type peerConn struct {
	conn   *grpc.ClientConn
	client *transport.Client
}

// Node owns one running instance of the core: its Core (store/peers/
// TTL/SPT), its command dispatcher, the grpc server exposing them, and
// the client connections it keeps open to an arbitrary peer set.
type Node struct {
	cfg  *Config
	core *Core
	disp *Dispatcher

	grpcServer *transport.GRPC
	conns      map[PeerName]*peerConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	log *logrus.Entry
}

// New creates a Node from validated config, generalizing New (node/node.go).
func New(cfg *Config, reg *prometheus.Registry) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kvstore: config is required")
	}
	log := logging.For(string(cfg.NodeID))

	core, err := NewCore(cfg, log, reg)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to create core: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:    cfg,
		core:   core,
		disp:   NewDispatcher(core),
		conns:  make(map[PeerName]*peerConn),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	return n, nil
}

// Core exposes the underlying replication core for tests and the CLI.
func (n *Node) Core() *Core { return n.core }

// Config returns this node's configuration, for external inspection.
func (n *Node) Config() *Config { return n.cfg }

// Start binds the grpc server, registers any configured seed peers (their
// connections are dialed lazily on first use), and launches the
// TTL-expiry, periodic-full-sync and flood-flush background loops.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	grpcServer, err := transport.NewGRPC(n.cfg.GetAddress(), string(n.cfg.NodeID), n)
	if err != nil {
		return fmt.Errorf("kvstore: failed to create transport: %w", err)
	}
	n.grpcServer = grpcServer

	n.log.Infof("kvstore server starting on %s", n.cfg.GetAddress())
	if err := grpcServer.Start(); err != nil {
		return fmt.Errorf("kvstore: failed to bind server: %w", err)
	}

	for i, seed := range n.cfg.Seeds {
		name := PeerName(fmt.Sprintf("seed-%d", i))
		n.core.peers.Add(name, NodeID(seed), seed, n.cfg.EnableFloodOptimization)
	}

	n.wg.Add(3)
	go n.runTTLLoop()
	go n.runSyncLoop()
	go n.runFlushLoop()

	n.log.Infof("kvstore node %s started", n.cfg.NodeID)
	return nil
}

// Stop cancels background loops, closes peer connections, and stops the
// grpc server. The lock is released before waiting on the goroutines so a
// concurrent Start/Stop never deadlocks against it.
func (n *Node) Stop() error {
	n.mu.Lock()
	grpcServer := n.grpcServer
	n.cancel()
	n.mu.Unlock()

	n.wg.Wait()

	if grpcServer != nil {
		if err := grpcServer.Stop(); err != nil {
			n.log.Warnf("error stopping grpc server: %v", err)
		}
	}

	n.mu.Lock()
	for name, holder := range n.conns {
		if err := holder.conn.Close(); err != nil {
			n.log.Warnf("error closing connection to peer %s: %v", name, err)
		}
	}
	n.mu.Unlock()

	n.log.Infof("kvstore node %s stopped", n.cfg.NodeID)
	return nil
}

func (n *Node) runTTLLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.TTLDecrement)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			n.core.ExpireTTLs(now)
		}
	}
}

func (n *Node) runSyncLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.DBSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			for _, p := range n.core.peers.DueForSync(now, n.cfg.DBSyncInterval) {
				if err := n.syncWithPeer(p); err != nil {
					n.log.Warnf("full sync with peer %s failed: %v", p.Name, err)
					n.core.peers.MarkSyncFailed(p)
					n.core.counters.SyncsFailed.Inc()
					continue
				}
				n.core.peers.MarkSynced(p, now)
				n.core.counters.SyncsCompleted.Inc()
				n.advertiseDualTo(p)
			}
		}
	}
}

// runFlushLoop periodically releases anything the flood-rate limiter had
// to buffer because the token bucket was empty at send time, so a
// rate-limited flood never gets stuck forever once the bucket refills.
func (n *Node) runFlushLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.FloodFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-ticker.C:
			if msg, ok := n.core.FlushFlood(now); ok && len(msg.Deltas) > 0 {
				n.floodOut(msg, "")
			}
		}
	}
}

func (n *Node) syncWithPeer(p *Peer) error {
	client, err := n.clientFor(p)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()

	digests := CreateDigests(n.core.store)
	req := &wire.FullSyncRequest{Digests: make([]wire.KeyDigestWire, 0, len(digests))}
	for _, d := range digests {
		req.Digests = append(req.Digests, wire.KeyDigestWire{
			Key: string(d.Key), Version: d.Version, OriginatorID: string(d.OriginatorID),
			TTLVersion: d.TTLVersion, Hash: d.Hash, HashValid: d.HashValid,
		})
	}

	reply, err := client.FullSync(ctx, req)
	if err != nil {
		return err
	}

	if len(reply.ToSend) > 0 {
		kvs := make(map[Key]ValueRecord, len(reply.ToSend))
		for k, v := range reply.ToSend {
			kvs[Key(k)] = toValueRecord(v)
		}
		if msg, ok := n.core.ApplyRemote(time.Now(), p.Name, kvs, nil); ok {
			n.floodOut(msg, p.Name)
		}
	}

	if len(reply.ToRequest) > 0 {
		push := BuildKeySet(n.core.store, keysOf(reply.ToRequest))
		if len(push) > 0 {
			wireKVs := make(map[string]wire.ValueRecord, len(push))
			for k, v := range push {
				wireKVs[string(k)] = fromValueRecord(v)
			}
			_, err := client.Dispatch(ctx, &wire.Request{
				Command:    wire.CommandKeySet,
				KeyVals:    wireKVs,
				OriginPeer: string(n.cfg.NodeID),
				RequestID:  newRequestID(),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func keysOf(ss []string) []Key {
	out := make([]Key, len(ss))
	for i, s := range ss {
		out[i] = Key(s)
	}
	return out
}

// decrementForForwarding applies the mandatory per-hop TTL reduction to
// every delta about to be flooded, dropping any that would expire within
// the next hop. This is what guarantees a value forwarded along an N-hop
// loop-free path strictly decreases toward zero rather than circulating
// forever.
func (n *Node) decrementForForwarding(deltas []MergeDelta) []MergeDelta {
	out := make([]MergeDelta, 0, len(deltas))
	for _, d := range deltas {
		rec, expired := DecrementTTL(d.Record, n.cfg.TTLDecrement)
		if expired {
			continue
		}
		d.Record = rec
		out = append(out, d)
	}
	return out
}

func (n *Node) floodOut(msg FloodMessage, origin PeerName) {
	now := time.Now()
	msg.Deltas = n.decrementForForwarding(msg.Deltas)
	if len(msg.Deltas) == 0 {
		return
	}
	plan, ok := n.core.PlanFlood(now, msg, origin)
	if !ok {
		return
	}
	wireKVs := make(map[string]wire.ValueRecord, len(msg.Deltas))
	for _, d := range msg.Deltas {
		wireKVs[string(d.Key)] = fromValueRecord(d.Record)
	}
	trail := make([]string, len(msg.NodeIDs))
	for i, id := range msg.NodeIDs {
		trail[i] = string(id)
	}
	for _, p := range plan.Peers {
		client, err := n.clientFor(p)
		if err != nil {
			n.log.Warnf("flood to peer %s failed to connect: %v", p.Name, err)
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
		_, err = client.Dispatch(ctx, &wire.Request{
			Command:    wire.CommandKeySet,
			KeyVals:    wireKVs,
			NodeIDs:    trail,
			OriginPeer: string(n.cfg.NodeID),
			RequestID:  newRequestID(),
		})
		cancel()
		if err != nil {
			n.log.Warnf("flood to peer %s failed: %v", p.Name, err)
		}
	}
}

// KeySet applies a locally-submitted write and floods the result. This is
// the entry point cmd/ and any local caller use to originate a change.
func (n *Node) KeySet(kvs map[Key]ValueRecord) {
	now := time.Now()
	msg, ok := n.core.ApplyLocal(now, kvs)
	if !ok {
		return
	}
	n.floodOut(msg, "")
}

// Dispatch implements transport.KvStoreServer: routes a decoded wire
// request to the dispatcher and, for a KEY_SET that actually changed the
// store, forwards the resulting FloodOutcome to the network.
func (n *Node) Dispatch(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
	reply, outcome := n.disp.Handle(time.Now(), *req)
	if outcome.ShouldFlood {
		n.floodOut(outcome.Message, outcome.Origin)
	}
	if len(outcome.ChangedRoots) > 0 {
		n.handleDualChanged(outcome.ChangedRoots)
	}
	return &reply, nil
}

// advertiseDualTo sends this node's current per-root distance to peer p,
// bootstrapping (or refreshing) its view of where p's neighbor sits in
// each spanning tree this node tracks.
func (n *Node) advertiseDualTo(p *Peer) {
	roots := n.core.sptOpt.Roots()
	if len(roots) == 0 {
		return
	}
	msgs := make([]wire.DualMessage, 0, len(roots))
	for _, root := range roots {
		dist, ok := n.core.sptOpt.Distance(root)
		if !ok {
			continue
		}
		msgs = append(msgs, wire.DualMessage{
			Type:     wire.DualDistance,
			RootID:   string(root),
			SrcID:    string(n.cfg.NodeID),
			Distance: int32(dist),
		})
	}
	if len(msgs) == 0 {
		return
	}

	client, err := n.clientFor(p)
	if err != nil {
		n.log.Warnf("dual advertisement to peer %s failed to connect: %v", p.Name, err)
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
	defer cancel()
	_, err = client.Dispatch(ctx, &wire.Request{
		Command:      wire.CommandDual,
		DualMessages: msgs,
		OriginPeer:   string(n.cfg.NodeID),
		RequestID:    newRequestID(),
	})
	if err != nil {
		n.log.Warnf("dual advertisement to peer %s failed: %v", p.Name, err)
	}
}

// handleDualChanged reacts to a DUAL message that moved this node's
// distance or nexthop for one of roots: every synced peer needs to learn
// the new distance, and a full resync makes sure keys that were only
// reachable through the old nexthop converge without waiting for the
// next periodic sync.
func (n *Node) handleDualChanged(roots []NodeID) {
	n.log.Debugf("spanning-tree distance changed for roots %v, re-advertising and resyncing", roots)
	for _, p := range n.core.peers.All() {
		if p.state != PeerSynced {
			continue
		}
		n.advertiseDualTo(p)
		if err := n.syncWithPeer(p); err != nil {
			n.log.Warnf("full sync with peer %s after spanning-tree change failed: %v", p.Name, err)
		}
	}
}

// clientFor returns (lazily dialing on first use) the client stub for p.
func (n *Node) clientFor(p *Peer) (*transport.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if pc, ok := n.conns[p.Name]; ok {
		return pc.client, nil
	}
	conn, err := transport.Dial(p.CmdURL)
	if err != nil {
		return nil, fmt.Errorf("kvstore: failed to dial peer %s at %s: %w", p.Name, p.CmdURL, err)
	}
	client := transport.NewClient(conn)
	n.conns[p.Name] = &peerConn{conn: conn, client: client}
	return client, nil
}

// FullSync implements transport.KvStoreServer's peer-facing digest
// exchange.
func (n *Node) FullSync(ctx context.Context, req *wire.FullSyncRequest) (*wire.FullSyncReply, error) {
	remote := make([]KeyDigest, 0, len(req.Digests))
	for _, d := range req.Digests {
		remote = append(remote, KeyDigest{
			Key: Key(d.Key), Version: d.Version, OriginatorID: NodeID(d.OriginatorID),
			TTLVersion: d.TTLVersion, Hash: d.Hash, HashValid: d.HashValid,
		})
	}
	diff := CompareDigests(n.core.store, remote)

	toSend := BuildKeySet(n.core.store, diff.ToSend)
	wireToSend := make(map[string]wire.ValueRecord, len(toSend))
	for k, v := range toSend {
		wireToSend[string(k)] = fromValueRecord(v)
	}
	toRequest := make([]string, len(diff.ToRequest))
	for i, k := range diff.ToRequest {
		toRequest[i] = string(k)
	}
	return &wire.FullSyncReply{ToSend: wireToSend, ToRequest: toRequest}, nil
}

// Monitor implements transport.KvStoreServer's global-publisher stream:
// every accepted change is forwarded to the caller until it disconnects.
func (n *Node) Monitor(req *wire.Request, stream transport.KvStoreService_MonitorServer) error {
	ch := n.core.pub.SubscribeGlobal(64)
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case pub, ok := <-ch:
			if !ok {
				return nil
			}
			out := &wire.Publication{KeyVals: make(map[string]wire.ValueRecord, len(pub.Updated))}
			for _, d := range pub.Updated {
				out.KeyVals[string(d.Key)] = fromValueRecord(d.Record)
			}
			expired := make([]string, len(pub.Expired))
			for i, k := range pub.Expired {
				expired[i] = string(k)
			}
			out.ExpiredKeys = expired
			if err := stream.Send(out); err != nil {
				return err
			}
		}
	}
}
