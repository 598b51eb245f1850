package kvstore

// spt.go implements the flood-optimization spanning tree: an optional,
// per-root minimum-distance tree built with a DUAL-style (diffusing
// update algorithm) exchange, so that a steady-state flood only needs to
// visit each node once along its tree edge instead of the full
// O(peers) broadcast SelectFloodPeers falls back to.

// dualState is a node's local view of one root's spanning tree.
type dualState int

const (
	dualPassive dualState = iota // steady state: distance/nexthop settled
	dualActive                   // a recomputation is in flight
)

// rootInfo is per-(root) bookkeeping kept by SPTOptimizer.
type rootInfo struct {
	root     NodeID
	state    dualState
	distance int // hop count to root; -1 if unreachable
	nexthop  PeerName
	children map[PeerName]bool

	// reportedDistance is what each neighbor most recently advertised for
	// this root, used to pick the nexthop (successor): the neighbor with
	// the smallest reported distance. No feasibility condition is checked
	// and the state never goes active.
	reportedDistance map[PeerName]int
}

// SPTOptimizer owns the flood-optimization spanning tree for every root
// this node is tracking. A root is any node designated IsFloodRoot; a
// node can participate in several independent trees at once since
// distance/nexthop/children are tracked per root.
type SPTOptimizer struct {
	self  NodeID
	roots map[NodeID]*rootInfo
}

// NewSPTOptimizer returns an optimizer for a node identified by self.
func NewSPTOptimizer(self NodeID) *SPTOptimizer {
	return &SPTOptimizer{self: self, roots: make(map[NodeID]*rootInfo)}
}

// AddRoot begins tracking root, seeding this node as its own root with
// distance 0 if self == root, or unreachable (distance -1, passive)
// otherwise until a DUAL message arrives.
func (o *SPTOptimizer) AddRoot(root NodeID) {
	if _, ok := o.roots[root]; ok {
		return
	}
	info := &rootInfo{
		root:             root,
		state:            dualPassive,
		children:         make(map[PeerName]bool),
		reportedDistance: make(map[PeerName]int),
	}
	if root == o.self {
		info.distance = 0
	} else {
		info.distance = -1
	}
	o.roots[root] = info
}

// RemoveRoot drops all tracking for root. PEER_DEL does not call it: a
// root stays tracked after the peers that advertised it are removed.
func (o *SPTOptimizer) RemoveRoot(root NodeID) {
	delete(o.roots, root)
}

// SetChild directly sets or clears peer as a child of root's spanning
// tree, bypassing the DUAL distance exchange. This is what FLOOD_TOPO_SET
// uses to administratively attach or detach a peer, e.g. clearing this
// node from every root it tracks (AllRoots=true, setChild=false) when
// that peer is going away.
func (o *SPTOptimizer) SetChild(root NodeID, peer PeerName, isChild bool) {
	info, ok := o.roots[root]
	if !ok {
		if !isChild {
			return
		}
		o.AddRoot(root)
		info = o.roots[root]
	}
	if isChild {
		info.children[peer] = true
	} else {
		delete(info.children, peer)
	}
}

// Children returns the current flood-tree children for root: the peers
// this node should forward root-originated publications to when flood
// optimization is enabled. Empty (and non-nil-safe) if root is unknown.
func (o *SPTOptimizer) Children(root NodeID) []PeerName {
	info, ok := o.roots[root]
	if !ok {
		return nil
	}
	out := make([]PeerName, 0, len(info.children))
	for name, isChild := range info.children {
		if isChild {
			out = append(out, name)
		}
	}
	return out
}

// Roots returns every root this node currently tracks, for
// FLOOD_TOPO_GET's all_roots option.
func (o *SPTOptimizer) Roots() []NodeID {
	out := make([]NodeID, 0, len(o.roots))
	for root := range o.roots {
		out = append(out, root)
	}
	return out
}

// Distance returns the current hop count to root and whether it is known.
func (o *SPTOptimizer) Distance(root NodeID) (int, bool) {
	info, ok := o.roots[root]
	if !ok || info.distance < 0 {
		return 0, false
	}
	return info.distance, true
}

// HandleDualMessage applies an incoming DUAL advertisement from neighbor
// for root, updating this node's distance/nexthop and deciding whether
// neighbor becomes (or stops being) a child. It returns the message (if
// any) that should be sent back to neighbor, and whether nexthop/distance
// changed in a way that must be re-advertised to every other neighbor.
func (o *SPTOptimizer) HandleDualMessage(neighbor PeerName, root NodeID, neighborDistance int, isChild bool) (reply *DualUpdate, changed bool) {
	info, ok := o.roots[root]
	if !ok {
		o.AddRoot(root)
		info = o.roots[root]
	}

	info.reportedDistance[neighbor] = neighborDistance

	if isChild {
		if !info.children[neighbor] {
			info.children[neighbor] = true
		}
	} else {
		delete(info.children, neighbor)
	}

	if root == o.self {
		// We are the root: our own distance never changes, but we still
		// need to report ourselves as reachable to the requester.
		return &DualUpdate{Root: root, Distance: 0}, false
	}

	bestNeighbor := PeerName("")
	bestDistance := -1
	for n, d := range info.reportedDistance {
		if d < 0 {
			continue
		}
		if bestDistance == -1 || d < bestDistance || (d == bestDistance && n < bestNeighbor) {
			bestNeighbor, bestDistance = n, d
		}
	}

	changed = bestDistance != info.distance || bestNeighbor != info.nexthop
	if bestDistance == -1 {
		info.distance, info.nexthop = -1, ""
	} else {
		info.distance, info.nexthop = bestDistance+1, bestNeighbor
	}
	info.state = dualPassive

	return &DualUpdate{Root: root, Distance: info.distance}, changed
}

// DualUpdate is the distance advertisement exchanged between neighbors
// for a given root; it is the payload carried by wire.DualMessage.
type DualUpdate struct {
	Root     NodeID
	Distance int
}
