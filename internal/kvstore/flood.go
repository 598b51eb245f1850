package kvstore

import (
	"time"

	"golang.org/x/time/rate"
)

// FloodMessage is what one node forwards to another when a key changes:
// an event-driven, per-delta push rather than a periodic full snapshot.
//
// NodeIDs is the trail of nodes this publication has already passed
// through: a node refuses to forward a FloodMessage back to any peer
// whose node id already appears in the trail, which is what makes flooding
// loop-free without needing a spanning tree at all (the DUAL optimizer in
// spt.go is strictly an optimization on top of this, not a correctness
// requirement).
type FloodMessage struct {
	Deltas      []MergeDelta
	NodeIDs     []NodeID
	ExpiredKeys []Key
}

// withNode returns a copy of m with id appended to the trail, used when
// forwarding to a new peer.
func (m FloodMessage) withNode(id NodeID) FloodMessage {
	trail := make([]NodeID, len(m.NodeIDs), len(m.NodeIDs)+1)
	copy(trail, m.NodeIDs)
	trail = append(trail, id)
	return FloodMessage{Deltas: m.Deltas, NodeIDs: trail, ExpiredKeys: m.ExpiredKeys}
}

func (m FloodMessage) contains(id NodeID) bool {
	for _, n := range m.NodeIDs {
		if n == id {
			return true
		}
	}
	return false
}

// FloodLimiter wraps golang.org/x/time/rate.Limiter to cap outbound flood
// traffic to the configured flood_rate. A message the bucket can't admit
// right now isn't dropped: its keys are remembered and re-published from
// live store state on a later Flush, rather than replayed verbatim, since
// by the time the bucket has room again a buffered key may have changed
// again or expired outright.
type FloodLimiter struct {
	limiter *rate.Limiter
	pending map[Key]struct{}
}

// NewFloodLimiter builds a limiter from config; a nil cfg disables
// limiting (AllowN always succeeds).
func NewFloodLimiter(cfg *FloodRate) *FloodLimiter {
	l := &FloodLimiter{pending: make(map[Key]struct{})}
	if cfg == nil {
		l.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.Burst)
	}
	return l
}

// Admit decides whether msg may be sent now. If the bucket is empty,
// msg's keys are remembered for a later Flush instead of being dropped.
func (l *FloodLimiter) Admit(now time.Time, msg FloodMessage) bool {
	if l.limiter.AllowN(now, 1) {
		return true
	}
	for _, d := range msg.Deltas {
		l.pending[d.Key] = struct{}{}
	}
	for _, k := range msg.ExpiredKeys {
		l.pending[k] = struct{}{}
	}
	return false
}

// Flush, once the bucket has room again, re-reads every key buffered
// since the last Admit denial from s and returns one coalesced
// FloodMessage: keys still present become fresh deltas, keys no longer
// present (because they expired in the meantime) become ExpiredKeys.
// Returns ok=false if nothing is pending or the bucket is still empty.
func (l *FloodLimiter) Flush(now time.Time, s *Store) (FloodMessage, bool) {
	if len(l.pending) == 0 {
		return FloodMessage{}, false
	}
	if !l.limiter.AllowN(now, 1) {
		return FloodMessage{}, false
	}
	var msg FloodMessage
	for k := range l.pending {
		if rec, ok := s.Get(k); ok {
			msg.Deltas = append(msg.Deltas, MergeDelta{Key: k, Record: rec, ValueUpdated: true})
		} else {
			msg.ExpiredKeys = append(msg.ExpiredKeys, k)
		}
	}
	l.pending = make(map[Key]struct{})
	return msg, true
}

// FloodPlan is the set of peers a FloodMessage should actually be sent
// to, computed by SelectFloodPeers.
type FloodPlan struct {
	Peers []*Peer
}

// SelectFloodPeers decides who msg should be forwarded to: every synced
// peer not already in msg's trail, and not the peer the publication was
// just received from (origin may be "" for locally-originated changes).
//
// When optimizer is non-nil and the config enables flood optimization,
// forwarding is restricted to the optimizer's computed children for root
// instead of every peer — this is the DUAL spanning-tree's entire payoff:
// fewer redundant sends at scale. The parent (nexthop) toward root is not
// included, and there is no fallback to every peer when root has no
// children.
func SelectFloodPeers(reg *PeerRegistry, msg FloodMessage, origin PeerName, root NodeID, optimizer *SPTOptimizer, useOptimization bool) FloodPlan {
	var candidates []*Peer
	if useOptimization && optimizer != nil {
		for _, name := range optimizer.Children(root) {
			if p, ok := reg.Get(name); ok {
				candidates = append(candidates, p)
			}
		}
	} else {
		candidates = reg.All()
	}

	var plan FloodPlan
	for _, p := range candidates {
		if p.Name == origin {
			continue
		}
		if p.state != PeerSynced {
			continue
		}
		if msg.contains(p.NodeID) {
			continue
		}
		plan.Peers = append(plan.Peers, p)
	}
	return plan
}
