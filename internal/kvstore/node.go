package kvstore

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Core is the central, single-owner actor: one event loop drives the
// store, TTL queue, peer registry, flood limiter, spanning-tree
// optimizer, and counters, so none of them need internal locking.
type Core struct {
	nodeID    NodeID
	clusterID string
	cfg       *Config

	store    *Store
	ttl      *TTLCountdown
	peers    *PeerRegistry
	limiter  *FloodLimiter
	sptOpt   *SPTOptimizer
	counters *Counters
	pub      *Publisher

	log *logrus.Entry
}

// NewCore builds a Core from validated config: validate required fields,
// seed initial per-node state, return a ready-to-run value.
func NewCore(cfg *Config, log *logrus.Entry, reg *prometheus.Registry) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kvstore: config must be set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		nodeID:    cfg.NodeID,
		clusterID: cfg.ClusterID,
		cfg:       cfg,
		store:     NewStore(),
		ttl:       NewTTLCountdown(),
		peers:     NewPeerRegistry(),
		limiter:   NewFloodLimiter(cfg.FloodRate),
		sptOpt:    NewSPTOptimizer(cfg.NodeID),
		counters:  NewCounters(reg, cfg.NodeID),
		log:       log,
	}
	c.pub = NewPublisher(log)

	if cfg.IsFloodRoot {
		c.sptOpt.AddRoot(cfg.NodeID)
	}

	return c, nil
}

// ClusterID returns the cluster ID this Core belongs to.
func (c *Core) ClusterID() string { return c.clusterID }

// NodeID returns this node's identity.
func (c *Core) NodeID() NodeID { return c.nodeID }

// Store exposes the underlying key/value store for read paths (KEY_GET,
// KEY_DUMP, HASH_DUMP) that don't need to go through ApplyLocal/ApplyRemote.
func (c *Core) Store() *Store { return c.store }

// Peers exposes the peer registry for PEER_ADD/PEER_DEL/PEER_DUMP.
func (c *Core) Peers() *PeerRegistry { return c.peers }

// SPT exposes the spanning-tree optimizer for FLOOD_TOPO_SET/GET and DUAL.
func (c *Core) SPT() *SPTOptimizer { return c.sptOpt }

// Counters exposes the counter set for COUNTERS_GET.
func (c *Core) Counters() *Counters { return c.counters }

// Publisher exposes the local/global publication fan-out.
func (c *Core) Publisher() *Publisher { return c.pub }

// ApplyLocal merges a set of locally-originated key writes (a KEY_SET
// with originator == self) into the store and returns the FloodMessage
// that should be pushed to peers, if any changes were actually applied.
func (c *Core) ApplyLocal(now time.Time, kvs map[Key]ValueRecord) (FloodMessage, bool) {
	return c.apply(now, kvs, "", nil)
}

// ApplyRemote merges a set of key writes received from peer origin whose
// wire request already carried incomingTrail, the node-id trail the
// publication has passed through so far. If this node's own id is
// already in that trail, the publication has looped back around and is
// dropped without merging.
func (c *Core) ApplyRemote(now time.Time, origin PeerName, kvs map[Key]ValueRecord, incomingTrail []NodeID) (FloodMessage, bool) {
	return c.apply(now, kvs, origin, incomingTrail)
}

func (c *Core) apply(now time.Time, kvs map[Key]ValueRecord, origin PeerName, incomingTrail []NodeID) (FloodMessage, bool) {
	if (FloodMessage{NodeIDs: incomingTrail}).contains(c.nodeID) {
		c.counters.FloodsLooped.Inc()
		return FloodMessage{}, false
	}

	existed := make(map[Key]bool, len(kvs))
	for k := range kvs {
		_, existed[k] = c.store.Get(k)
	}

	deltas := Merge(c.store, kvs, c.cfg.Filters)
	if len(deltas) == 0 {
		return FloodMessage{}, false
	}

	for _, d := range deltas {
		if !existed[d.Key] {
			c.counters.KeysAdded.Inc()
		} else if d.ValueUpdated {
			c.counters.KeysUpdated.Inc()
		}
		c.ttl.Schedule(now, d.Key, d.Record)
	}
	c.counters.StoreSize.Set(float64(c.store.Len()))

	c.pub.PublishLocal(deltas)

	msg := FloodMessage{Deltas: deltas, NodeIDs: incomingTrail}.withNode(c.nodeID)
	return msg, true
}

// ExpireTTLs pops and deletes every record whose TTL has lapsed, updating
// counters and publishing the resulting deletions.
func (c *Core) ExpireTTLs(now time.Time) []Key {
	expired := c.ttl.Expire(now, c.store)
	for range expired {
		c.counters.KeysExpired.Inc()
	}
	if len(expired) > 0 {
		c.counters.StoreSize.Set(float64(c.store.Len()))
		c.pub.PublishExpired(expired)
	}
	return expired
}

// PlanFlood decides which peers a FloodMessage should go out to right
// now, honoring the flood-rate limiter; messages the limiter rejects are
// buffered internally and released on a later FlushFlood call. The
// spanning-tree root passed to SelectFloodPeers is always this node's own
// id: FloodMessage carries no flood-root id.
func (c *Core) PlanFlood(now time.Time, msg FloodMessage, origin PeerName) (FloodPlan, bool) {
	if !c.limiter.Admit(now, msg) {
		return FloodPlan{}, false
	}
	root := c.nodeID
	plan := SelectFloodPeers(c.peers, msg, origin, root, c.sptOpt, c.cfg.UseFloodOptimization)
	c.counters.FloodsSent.Add(float64(len(plan.Peers)))
	return plan, true
}

// FlushFlood releases the messages the rate limiter had buffered, as a
// single coalesced FloodMessage built from the store's current state:
// buffered keys still present come back as fresh deltas, buffered keys
// no longer present (since expired) come back as ExpiredKeys. Returns
// ok=false if nothing is pending or the bucket is still empty.
func (c *Core) FlushFlood(now time.Time) (FloodMessage, bool) {
	msg, ok := c.limiter.Flush(now, c.store)
	if !ok {
		return FloodMessage{}, false
	}
	if len(msg.ExpiredKeys) > 0 {
		c.pub.PublishExpired(msg.ExpiredKeys)
	}
	return msg, true
}
