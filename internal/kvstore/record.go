package kvstore

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// InfiniteTTL is the sentinel meaning "no expiry".
const InfiniteTTL int64 = -1

// ValueRecord is the unit of data the core replicates. Value is nil when
// absent (a TTL-only refresh) and non-nil (possibly empty) when present —
// Go's slice nil-ness already gives us an Option<ByteString> for free, so
// no wrapper type is needed.
//
// (version, originator, value, ttl_version) orders updates for one key.
// No field of ValueRecord is ever mutated from two goroutines at once:
// the store owning this record is itself single-owner under the core's
// one-actor event loop, so it needs no internal locking.
type ValueRecord struct {
	Version      int64
	OriginatorID NodeID
	Value        []byte
	TTLMillis    int64 // INFINITY, or the ttl (ms) assigned at last update
	TTLVersion   int64
	Hash         uint64
	HashValid    bool
}

// HasValue reports whether this is a full value record as opposed to a
// TTL-only refresh.
func (v ValueRecord) HasValue() bool {
	return v.Value != nil
}

// order is the total result of comparing two records under their tuple
// order.
type order int

const (
	orderLess order = iota
	orderEqual
	orderGreater
)

// compareRank ranks v against other by (version, originator_id,
// value_bytes, ttl_version), each compared in turn, higher wins. A
// TTL-only refresh (nil Value) is never passed through this tier: Merge
// routes that case separately before calling compareRank, since an
// absent value has no bytes to rank against a present one.
func (v ValueRecord) compareRank(other ValueRecord) order {
	if v.Version != other.Version {
		if v.Version > other.Version {
			return orderGreater
		}
		return orderLess
	}
	if v.OriginatorID != other.OriginatorID {
		if v.OriginatorID > other.OriginatorID {
			return orderGreater
		}
		return orderLess
	}
	if c := bytes.Compare(v.Value, other.Value); c != 0 {
		if c > 0 {
			return orderGreater
		}
		return orderLess
	}
	if v.TTLVersion != other.TTLVersion {
		if v.TTLVersion > other.TTLVersion {
			return orderGreater
		}
		return orderLess
	}
	return orderEqual
}

// computeHash returns the xxhash fingerprint of (version, originator,
// value), the pre-image for the record's "hash" field. A present-but-empty
// value hashes differently from an absent one because the length prefix
// for a nil slice is written as -1.
func computeHash(version int64, originator NodeID, value []byte) uint64 {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(version))
	buf.Write(hdr[:])
	buf.WriteString(string(originator))
	buf.WriteByte(0) // separator so "ab"+"c" != "a"+"bc"
	if value == nil {
		negOne := int64(-1)
		binary.BigEndian.PutUint64(hdr[:], uint64(negOne))
	} else {
		binary.BigEndian.PutUint64(hdr[:], uint64(int64(len(value))))
	}
	buf.Write(hdr[:])
	buf.Write(value)
	return xxhash.Sum64(buf.Bytes())
}

// ensureHash computes and stores v.Hash if it is not already valid: a
// missing hash is recomputed on receipt rather than trusted from the wire.
func (v *ValueRecord) ensureHash() {
	if v.HashValid {
		return
	}
	v.Hash = computeHash(v.Version, v.OriginatorID, v.Value)
	v.HashValid = true
}
