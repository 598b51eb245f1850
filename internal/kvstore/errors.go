package kvstore

import "errors"

// Fatal configuration errors: an empty node id or an unbindable address
// means the process fails to start rather than limping along half-configured.
var (
	ErrNodeIDRequired            = errors.New("kvstore: node id is required")
	ErrClusterIDRequired         = errors.New("kvstore: cluster id is required")
	ErrAddressRequired           = errors.New("kvstore: address is required")
	ErrPortRequired              = errors.New("kvstore: port is required")
	ErrInvalidSyncInterval       = errors.New("kvstore: db_sync_interval must be greater than 0")
	ErrInvalidTTLDecrement       = errors.New("kvstore: ttl_decrement must be >= 1ms")
	ErrInvalidFloodRate          = errors.New("kvstore: flood_rate must have a positive messages-per-second and burst")
	ErrInvalidFloodFlushInterval = errors.New("kvstore: flood_flush_interval must be greater than 0")
)

// Non-fatal, recoverable errors surfaced as counters/logs.
var (
	// ErrUnknownPeer is returned when an operation names a peer that was
	// never added via PEER_ADD or Config.Seeds.
	ErrUnknownPeer = errors.New("kvstore: unknown peer")

	// ErrNexthopIsSelf flags a flood-tree acyclicity violation: a node's
	// nexthop toward a root is never itself.
	ErrNexthopIsSelf = errors.New("kvstore: nexthop cannot be self")

	// ErrUnknownRoot flags a DUAL message referencing a root this node has
	// no state for.
	ErrUnknownRoot = errors.New("kvstore: dual message for unknown root")
)
