package kvstore

import (
	"time"
)

// PeerSyncState tracks where a peer sits in the anti-entropy lifecycle: a
// freshly-added peer must complete one full KEY_DUMP exchange before it
// is considered caught up.
type PeerSyncState int

const (
	PeerInitializing PeerSyncState = iota
	PeerSyncing
	PeerSynced
)

// Peer is one entry in the node's peer registry.
type Peer struct {
	Name                      PeerName
	NodeID                    NodeID
	CmdURL                    string
	SupportsFloodOptimization bool

	state        PeerSyncState
	lastSyncedAt time.Time
	backoff      time.Duration
	consecutiveFailures int
}

const (
	minSyncBackoff = 2 * time.Second
	maxSyncBackoff = 2 * time.Minute
)

// PeerRegistry owns every known peer as an explicit add/remove/iterate
// registry backing PEER_ADD/PEER_DEL/PEER_DUMP.
type PeerRegistry struct {
	peers map[PeerName]*Peer
	rnd   *nodeRand
}

// NewPeerRegistry returns an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{
		peers: make(map[PeerName]*Peer),
		rnd:   newNodeRand(),
	}
}

// Add registers a new peer or updates an existing one's cmd_url/flood
// flag, leaving its sync state untouched if it already existed, matching
// PEER_ADD's idempotency requirement.
func (r *PeerRegistry) Add(name PeerName, nodeID NodeID, cmdURL string, supportsFloodOpt bool) *Peer {
	if p, ok := r.peers[name]; ok {
		p.NodeID = nodeID
		p.CmdURL = cmdURL
		p.SupportsFloodOptimization = supportsFloodOpt
		return p
	}
	p := &Peer{
		Name:                      name,
		NodeID:                    nodeID,
		CmdURL:                    cmdURL,
		SupportsFloodOptimization: supportsFloodOpt,
		state:                     PeerInitializing,
		backoff:                   minSyncBackoff,
	}
	r.peers[name] = p
	return p
}

// Remove tears down a peer, per PEER_DEL.
func (r *PeerRegistry) Remove(name PeerName) {
	delete(r.peers, name)
}

// Get looks up a peer by name.
func (r *PeerRegistry) Get(name PeerName) (*Peer, bool) {
	p, ok := r.peers[name]
	return p, ok
}

// All returns every known peer, for PEER_DUMP and for flood fan-out.
func (r *PeerRegistry) All() []*Peer {
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// MarkSynced records a successful full-sync round with p, resetting its
// backoff and advancing it out of PeerInitializing.
func (r *PeerRegistry) MarkSynced(p *Peer, now time.Time) {
	p.state = PeerSynced
	p.lastSyncedAt = now
	p.backoff = minSyncBackoff
	p.consecutiveFailures = 0
}

// MarkSyncFailed doubles p's backoff (capped) after a failed sync attempt.
func (r *PeerRegistry) MarkSyncFailed(p *Peer) {
	p.consecutiveFailures++
	p.backoff *= 2
	if p.backoff > maxSyncBackoff {
		p.backoff = maxSyncBackoff
	}
}

// NextSyncDue reports when p should next be synced: lastSyncedAt plus the
// base interval for a synced peer, plus its backoff for a synced peer with
// failed attempts since, or plus minSyncBackoff for a peer that has never
// synced (lastSyncedAt is then the zero time, so such a peer is always
// due and its backoff is not applied). The interval is jittered so peers
// added around the same time don't all fire in lockstep.
func (r *PeerRegistry) NextSyncDue(p *Peer, baseInterval time.Duration) time.Time {
	interval := baseInterval
	if p.state != PeerSynced {
		interval = minSyncBackoff
	} else if p.consecutiveFailures > 0 {
		interval = p.backoff
	}
	interval = r.rnd.jitter(interval, 0.1)
	return p.lastSyncedAt.Add(interval)
}

// DueForSync returns every peer whose next scheduled sync is at or before
// now, used by the node's event loop to drive periodic full syncs.
func (r *PeerRegistry) DueForSync(now time.Time, baseInterval time.Duration) []*Peer {
	var due []*Peer
	for _, p := range r.peers {
		if !r.NextSyncDue(p, baseInterval).After(now) {
			due = append(due, p)
		}
	}
	return due
}
