package kvstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/KIKOU2016/openr/internal/wire"
)

// Dispatcher routes decoded wire.Request values to Core operations and
// builds the matching wire.Reply, one handler per entry in the command
// table.
type Dispatcher struct {
	core *Core
}

// NewDispatcher binds a Dispatcher to core.
func NewDispatcher(core *Core) *Dispatcher {
	return &Dispatcher{core: core}
}

// FloodOutcome carries the FloodMessage a KEY_SET produced, if any, so
// the transport layer (lifecycle.go) can decide who to actually push it
// to. The dispatcher itself never talks to the network: it only owns
// merge/store/peer-registry/SPT state.
type FloodOutcome struct {
	Message     FloodMessage
	Origin      PeerName
	ShouldFlood bool

	// ChangedRoots carries every root whose distance/nexthop just changed
	// as a result of a DUAL message, so lifecycle.go can re-advertise this
	// node's new distance to its other peers and trigger a resync along
	// the new tree edge.
	ChangedRoots []NodeID
}

// Handle processes req and returns the reply to send back plus, for a
// KEY_SET that actually changed something, the FloodOutcome to act on. A
// malformed request never panics or returns a transport error: it comes
// back as Reply{HasError: true} so the caller can choose how to surface
// it.
func (d *Dispatcher) Handle(now time.Time, req wire.Request) (wire.Reply, FloodOutcome) {
	from := PeerName(req.OriginPeer)
	switch req.Command {
	case wire.CommandKeySet:
		return d.handleKeySet(now, from, req)
	case wire.CommandKeyGet:
		return d.handleKeyGet(req), FloodOutcome{}
	case wire.CommandKeyDump:
		return d.handleKeyDump(req), FloodOutcome{}
	case wire.CommandHashDump:
		return d.handleHashDump(req), FloodOutcome{}
	case wire.CommandPeerAdd:
		return d.handlePeerAdd(req), FloodOutcome{}
	case wire.CommandPeerDel:
		return d.handlePeerDel(req), FloodOutcome{}
	case wire.CommandPeerDump:
		return d.handlePeerDump(), FloodOutcome{}
	case wire.CommandFloodTopoSet:
		return d.handleFloodTopoSet(req), FloodOutcome{}
	case wire.CommandFloodTopoGet:
		return d.handleFloodTopoGet(req), FloodOutcome{}
	case wire.CommandDual:
		return d.handleDual(from, req)
	case wire.CommandCountersGet:
		return d.handleCountersGet(), FloodOutcome{}
	default:
		d.core.counters.MalformedCommands.Inc()
		return commandErrorReply(&wire.CommandError{Code: wire.ErrInvariantViolation, Msg: "unknown command"}), FloodOutcome{}
	}
}

// errorReply builds a MALFORMED_REQUEST Reply from msg: the store is
// never mutated for any request that reaches this path.
func errorReply(msg string) wire.Reply {
	return commandErrorReply(wire.NewMalformed(msg))
}

func commandErrorReply(err *wire.CommandError) wire.Reply {
	return wire.Reply{HasError: true, Error: err.Msg, ErrorCode: string(err.Code)}
}

func ackReply(msg string) wire.Reply {
	return wire.Reply{HasAck: true, Ack: msg}
}

func toValueRecord(v wire.ValueRecord) ValueRecord {
	return ValueRecord{
		Version:      v.Version,
		OriginatorID: NodeID(v.OriginatorID),
		Value:        v.Value,
		TTLMillis:    v.TTLMillis,
		TTLVersion:   v.TTLVersion,
		Hash:         v.Hash,
		HashValid:    v.HashValid,
	}
}

func fromValueRecord(v ValueRecord) wire.ValueRecord {
	return wire.ValueRecord{
		Version:      v.Version,
		OriginatorID: string(v.OriginatorID),
		Value:        v.Value,
		TTLMillis:    v.TTLMillis,
		TTLVersion:   v.TTLVersion,
		Hash:         v.Hash,
		HashValid:    v.HashValid,
	}
}

func (d *Dispatcher) handleKeySet(now time.Time, from PeerName, req wire.Request) (wire.Reply, FloodOutcome) {
	if len(req.KeyVals) == 0 {
		d.core.counters.MalformedCommands.Inc()
		return errorReply("key_set requires at least one key/value"), FloodOutcome{}
	}
	kvs := make(map[Key]ValueRecord, len(req.KeyVals))
	for k, v := range req.KeyVals {
		kvs[Key(k)] = toValueRecord(v)
	}

	var (
		msg FloodMessage
		ok  bool
	)
	if from == "" {
		msg, ok = d.core.ApplyLocal(now, kvs)
	} else {
		trail := make([]NodeID, len(req.NodeIDs))
		for i, id := range req.NodeIDs {
			trail[i] = NodeID(id)
		}
		msg, ok = d.core.ApplyRemote(now, from, kvs, trail)
	}
	if !ok {
		return ackReply("no-op"), FloodOutcome{}
	}
	return ackReply("ok"), FloodOutcome{Message: msg, Origin: from, ShouldFlood: true}
}

func (d *Dispatcher) handleKeyGet(req wire.Request) wire.Reply {
	out := make(map[string]wire.ValueRecord, len(req.Keys))
	for _, k := range req.Keys {
		if rec, ok := d.core.store.Get(Key(k)); ok {
			out[k] = fromValueRecord(rec)
		}
	}
	return wire.Reply{Publication: &wire.Publication{KeyVals: out}}
}

func (d *Dispatcher) handleKeyDump(req wire.Request) wire.Reply {
	var filter *Filters
	if req.Filter != nil {
		filter = &Filters{KeyPrefix: req.Filter.KeyPrefix, OriginatorIDs: req.Filter.OriginatorIDs}
	}
	out := make(map[string]wire.ValueRecord)
	d.core.store.Range(func(k Key, v ValueRecord) bool {
		if matchesFilter(filter, k, v.OriginatorID) {
			out[string(k)] = fromValueRecord(v)
		}
		return true
	})
	return wire.Reply{Publication: &wire.Publication{KeyVals: out}}
}

func (d *Dispatcher) handleHashDump(req wire.Request) wire.Reply {
	digests := CreateDigests(d.core.store)
	pub := &wire.Publication{KeyVals: make(map[string]wire.ValueRecord)}
	for _, dg := range digests {
		pub.KeyVals[string(dg.Key)] = wire.ValueRecord{
			Version:      dg.Version,
			OriginatorID: string(dg.OriginatorID),
			TTLVersion:   dg.TTLVersion,
			Hash:         dg.Hash,
			HashValid:    dg.HashValid,
		}
	}
	return wire.Reply{Publication: pub}
}

func (d *Dispatcher) handlePeerAdd(req wire.Request) wire.Reply {
	if len(req.Peers) == 0 {
		d.core.counters.MalformedCommands.Inc()
		return errorReply("peer_add requires at least one peer")
	}
	var infos []wire.PeerInfo
	for name, params := range req.Peers {
		p := d.core.peers.Add(PeerName(name), NodeID(name), params.CmdURL, params.SupportsFloodOptimization)
		infos = append(infos, wire.PeerInfo{
			Name:                      string(p.Name),
			CmdURL:                    p.CmdURL,
			SupportsFloodOptimization: p.SupportsFloodOptimization,
			Pending:                   p.state != PeerSynced,
		})
	}
	d.core.counters.PeerCount.Set(float64(len(d.core.peers.All())))
	return wire.Reply{Peers: infos}
}

func (d *Dispatcher) handlePeerDel(req wire.Request) wire.Reply {
	for _, name := range req.PeerNames {
		d.core.peers.Remove(PeerName(name))
	}
	d.core.counters.PeerCount.Set(float64(len(d.core.peers.All())))
	return ackReply("ok")
}

func (d *Dispatcher) handlePeerDump() wire.Reply {
	var infos []wire.PeerInfo
	for _, p := range d.core.peers.All() {
		infos = append(infos, wire.PeerInfo{
			Name:                      string(p.Name),
			CmdURL:                    p.CmdURL,
			SupportsFloodOptimization: p.SupportsFloodOptimization,
			Pending:                   p.state != PeerSynced,
		})
	}
	return wire.Reply{Peers: infos}
}

func (d *Dispatcher) handleFloodTopoSet(req wire.Request) wire.Reply {
	if req.RootID == "" && !req.AllRoots {
		d.core.counters.MalformedCommands.Inc()
		return errorReply("flood_topo_set requires a root_id or all_roots")
	}
	if req.SrcID == "" {
		d.core.counters.MalformedCommands.Inc()
		return errorReply("flood_topo_set requires a src_id")
	}

	roots := []NodeID{NodeID(req.RootID)}
	if req.AllRoots {
		roots = d.core.sptOpt.Roots()
	}
	for _, root := range roots {
		d.core.sptOpt.SetChild(root, PeerName(req.SrcID), req.SetChild)
	}
	return ackReply("ok")
}

func (d *Dispatcher) handleFloodTopoGet(req wire.Request) wire.Reply {
	roots := []NodeID{NodeID(req.RootID)}
	if req.AllRoots {
		roots = d.core.sptOpt.Roots()
	}
	var infos []wire.SPTInfo
	for _, root := range roots {
		dist, known := d.core.sptOpt.Distance(root)
		if !known {
			continue
		}
		children := d.core.sptOpt.Children(root)
		names := make([]string, 0, len(children))
		for _, c := range children {
			names = append(names, string(c))
		}
		infos = append(infos, wire.SPTInfo{
			RootID:   string(root),
			Distance: int32(dist),
			Children: names,
		})
	}
	return wire.Reply{SPT: infos}
}

func (d *Dispatcher) handleDual(from PeerName, req wire.Request) (wire.Reply, FloodOutcome) {
	if len(req.DualMessages) == 0 {
		d.core.counters.MalformedCommands.Inc()
		return errorReply("dual requires at least one message"), FloodOutcome{}
	}
	var changedRoots []NodeID
	for _, m := range req.DualMessages {
		// DualQuery is a neighbor asking to attach under us as a child for
		// this root; DualDistance/DualReply are plain distance
		// advertisements that update reportedDistance and remove the
		// sender from this root's children if it was one.
		_, changed := d.core.sptOpt.HandleDualMessage(from, NodeID(m.RootID), int(m.Distance), m.Type == wire.DualQuery)
		if changed {
			changedRoots = append(changedRoots, NodeID(m.RootID))
		}
	}
	return ackReply("ok"), FloodOutcome{ChangedRoots: changedRoots}
}

func (d *Dispatcher) handleCountersGet() wire.Reply {
	snap := d.core.counters.Snapshot()
	values := make(map[string]int64, len(snap))
	for k, v := range snap {
		values[k] = int64(v)
	}
	return wire.Reply{Counters: &wire.Counters{Values: values}}
}

// newRequestID generates a correlation id for outbound requests.
func newRequestID() string {
	return uuid.NewString()
}
