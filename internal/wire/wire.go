// Package wire defines the on-the-wire message envelope for the KvStore
// core and its binary encoding. Rather than hand-faking protoc output,
// this package uses github.com/ugorji/go/codec's msgpack handle with
// small integer struct tags (codec:"1", codec:"2", ...) to get "field
// identity by tag number, not name" while staying schema-evolution
// tolerant (unknown tags are skipped by the decoder, missing tags decode
// to the zero value).
package wire

// Command identifies a KvStoreService request.
type Command uint8

const (
	CommandKeySet Command = iota + 1
	CommandKeyGet
	CommandKeyDump
	CommandHashDump
	CommandPeerAdd
	CommandPeerDel
	CommandPeerDump
	CommandFloodTopoSet
	CommandFloodTopoGet
	CommandDual
	CommandCountersGet
)

// ValueRecord is the wire form of a value record. Value is nil when
// absent (a TTL-only refresh); a non-nil, possibly empty, slice means
// present. HashValid distinguishes "hash not yet computed" from a
// legitimate zero hash.
type ValueRecord struct {
	Version      int64  `codec:"1"`
	OriginatorID string `codec:"2"`
	Value        []byte `codec:"3"`
	TTLMillis    int64  `codec:"4"`
	TTLVersion   int64  `codec:"5"`
	Hash         uint64 `codec:"6"`
	HashValid    bool   `codec:"7"`
}

// InfiniteTTL is the sentinel meaning "no expiry."
const InfiniteTTL int64 = -1

// Publication is the reply body of KEY_GET, KEY_DUMP and HASH_DUMP and the
// message streamed to Monitor subscribers: keyVals plus optional
// expiry/trail/root metadata. Peer floods travel as KEY_SET Requests, not
// Publications. FloodRootID and ToBeUpdatedKeys are not filled in by this
// implementation: the three-way sync carries the keys the responder wants
// back in FullSyncReply.ToRequest.
type Publication struct {
	KeyVals          map[string]ValueRecord `codec:"1"`
	ExpiredKeys      []string               `codec:"2"`
	NodeIDs          []string               `codec:"3"`
	FloodRootID      string                 `codec:"4"`
	HasFloodRootID   bool                   `codec:"5"`
	ToBeUpdatedKeys  []string               `codec:"6"`
}

// KeyValHash is a compact per-key digest carried in Request.KeyValHashes.
// The KEY_DUMP handler does not read KeyValHashes; the full sync exchanges
// KeyDigestWire instead, and HASH_DUMP replies with a Publication.
type KeyValHash struct {
	Version      int64  `codec:"1"`
	OriginatorID string `codec:"2"`
	TTLVersion   int64  `codec:"3"`
	Hash         uint64 `codec:"4"`
	TTLMillis    int64  `codec:"5"`
}

// Filter carries the optional key-prefix / originator allowlist used by
// KEY_DUMP and the merge function.
type Filter struct {
	KeyPrefix     string   `codec:"1"`
	OriginatorIDs []string `codec:"2"`
}

// PeerParams describes one entry of a PEER_ADD request.
type PeerParams struct {
	Name                       string `codec:"1"`
	CmdURL                     string `codec:"2"`
	SupportsFloodOptimization  bool   `codec:"3"`
}

// Request is the tagged union transported over the command socket and the
// peer sync channel.
type Request struct {
	Command Command `codec:"1"`

	// KEY_SET / three-way-sync follow-up
	KeyVals          map[string]ValueRecord `codec:"2"`
	NodeIDs          []string               `codec:"3"`
	FloodRootID      string                 `codec:"4"`
	HasFloodRootID   bool                   `codec:"5"`
	SolicitResponse  bool                   `codec:"6"`

	// KEY_GET / KEY_DUMP / HASH_DUMP
	Keys           []string    `codec:"7"`
	Filter         *Filter     `codec:"8"`
	KeyValHashes   map[string]KeyValHash `codec:"9"`

	// PEER_ADD / PEER_DEL
	Peers     map[string]PeerParams `codec:"10"`
	PeerNames []string              `codec:"11"`

	// FLOOD_TOPO_SET / FLOOD_TOPO_GET
	RootID   string `codec:"12"`
	SrcID    string `codec:"13"`
	SetChild bool   `codec:"14"`
	AllRoots bool   `codec:"15"`

	// DUAL
	DualMessages []DualMessage `codec:"16"`

	// correlation id for logging/tracing, generated per-request
	RequestID string `codec:"17"`

	// OriginPeer names the peer this request arrived from when it was
	// pushed over the peer-sync connection rather than submitted on the
	// local command socket. Empty means locally-originated.
	OriginPeer string `codec:"18"`
}

// DualMessageType enumerates the diffusing-update message kinds.
type DualMessageType uint8

const (
	DualDistance DualMessageType = iota + 1
	DualQuery
	DualReply
)

// DualMessage is one message of the DUAL spanning-tree computation.
type DualMessage struct {
	Type     DualMessageType `codec:"1"`
	RootID   string          `codec:"2"`
	SrcID    string          `codec:"3"`
	Distance int32           `codec:"4"`
}

// PeerInfo is returned by PEER_ADD / PEER_DEL / PEER_DUMP.
type PeerInfo struct {
	Name                      string `codec:"1"`
	CmdURL                    string `codec:"2"`
	SupportsFloodOptimization bool   `codec:"3"`
	Pending                   bool   `codec:"4"`
}

// SPTInfo is one root's spanning-tree view, returned by FLOOD_TOPO_GET.
type SPTInfo struct {
	RootID   string   `codec:"1"`
	State    string   `codec:"2"`
	Distance int32    `codec:"3"`
	NextHop  string   `codec:"4"`
	Children []string `codec:"5"`
}

// KeyDigestWire is one line of a KEY_DUMP digest exchange (internal/kvstore's
// KeyDigest, on the wire), used by the three-way full sync.
type KeyDigestWire struct {
	Key          string `codec:"1"`
	Version      int64  `codec:"2"`
	OriginatorID string `codec:"3"`
	TTLVersion   int64  `codec:"4"`
	Hash         uint64 `codec:"5"`
	HashValid    bool   `codec:"6"`
}

// FullSyncRequest carries a KEY_DUMP to a peer.
type FullSyncRequest struct {
	Digests []KeyDigestWire `codec:"1"`
}

// FullSyncReply carries what the responder thinks the requester is
// missing (ToSend, pushed immediately) and what it would like back
// (ToRequest, the requester should follow up with a KEY_SET of its own).
type FullSyncReply struct {
	ToSend    map[string]ValueRecord `codec:"1"`
	ToRequest []string               `codec:"2"`
}

// Counters is the COUNTERS_GET reply body.
type Counters struct {
	Values map[string]int64 `codec:"1"`
}

// Reply is the tagged union of everything a command can return: a
// Publication, a peer list, an ack string, spanning-tree info, or
// counters. Exactly one of these is populated per command.
type Reply struct {
	Ack           string        `codec:"1"`
	HasAck        bool          `codec:"2"`
	Publication   *Publication  `codec:"3"`
	Peers         []PeerInfo    `codec:"4"`
	SPT           []SPTInfo     `codec:"5"`
	Counters      *Counters     `codec:"6"`
	Error         string        `codec:"7"`
	HasError      bool          `codec:"8"`
	ErrorCode     string        `codec:"9"`
}
