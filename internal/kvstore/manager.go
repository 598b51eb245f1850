package kvstore

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
)

// Manager runs several in-process Nodes side by side and keeps them
// peered with one another, the substrate the interactive TUI (cmd/) uses
// to demo replication without needing several real machines. Newly added
// nodes are automatically peered with every existing node, since a
// KvStore core has no meaning without at least one peer relationship to
// replicate over.
type Manager struct {
	nodes       []*Node
	nodeMap     map[string]int
	mu          sync.RWMutex
	portCounter int
	nextID      int
}

// NewManager creates an empty node manager.
func NewManager() *Manager {
	return &Manager{
		nodes:       make([]*Node, 0),
		nodeMap:     make(map[string]int),
		portCounter: 50051,
		nextID:      1,
	}
}

// CreateNode creates, starts, and mutually peers a new node with every
// node already under management.
func (m *Manager) CreateNode() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port := m.findAvailablePort()
	nodeID := NodeID(fmt.Sprintf("node-%d", m.nextID))
	m.nextID++

	cfg := DefaultConfig(nodeID)
	cfg.Port = fmt.Sprintf("%d", port)
	cfg.Address = "127.0.0.1"

	node, err := New(cfg, prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}

	for _, existing := range m.nodes {
		existing.Core().Peers().Add(PeerName(nodeID), nodeID, cfg.GetAddress(), false)
		node.Core().Peers().Add(PeerName(existing.cfg.NodeID), existing.cfg.NodeID, existing.cfg.GetAddress(), false)
	}

	m.nodes = append(m.nodes, node)
	m.nodeMap[string(nodeID)] = len(m.nodes) - 1
	return node, nil
}

// DeleteNode stops and removes the node at index, and forgets it from
// every remaining node's peer registry.
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()
	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	node := m.nodes[index]
	nodeID := node.cfg.NodeID

	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, string(nodeID))
	for i, n := range m.nodes {
		m.nodeMap[string(n.cfg.NodeID)] = i
		n.Core().Peers().Remove(PeerName(nodeID))
	}
	m.mu.Unlock()

	go func() {
		if err := node.Stop(); err != nil {
			node.log.Warnf("error stopping node %s: %v", nodeID, err)
		}
	}()
	return nil
}

// GetNodes returns a snapshot of every managed node, in creation order.
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

func (m *Manager) findAvailablePort() int {
	port := m.portCounter
	m.portCounter++
	return port
}

// StopAll stops every managed node, aggregating any failures with
// go-multierror rather than truncating them into one formatted string.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	var result *multierror.Error
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
