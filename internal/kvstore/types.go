package kvstore

/*
NodeID identifies a node cluster-wide. It must never change during the
node's lifetime and is used both as the originator of locally-created
records and as the trail element appended when this node forwards a
publication.

Key is the opaque store key: the core never inspects its contents.

PeerName identifies a peer in the peer registry.
*/

type NodeID string

type Key string

type PeerName string
