package kvstore

// KeyDigest is one line of a KEY_DUMP: enough to decide, without shipping
// the value, whether the sender or the receiver holds the newer record.
// The replicated unit here is the key, not the node, so the digest
// summarizes one key's rank rather than a whole peer's state.
type KeyDigest struct {
	Key          Key
	Version      int64
	OriginatorID NodeID
	TTLVersion   int64
	Hash         uint64
	HashValid    bool
}

// CreateDigests builds a KEY_DUMP: one KeyDigest per key currently held.
func CreateDigests(s *Store) []KeyDigest {
	digests := make([]KeyDigest, 0, s.Len())
	s.Range(func(k Key, v ValueRecord) bool {
		v.ensureHash()
		digests = append(digests, KeyDigest{
			Key:          k,
			Version:      v.Version,
			OriginatorID: v.OriginatorID,
			TTLVersion:   v.TTLVersion,
			Hash:         v.Hash,
			HashValid:    v.HashValid,
		})
		return true
	})
	return digests
}

// DumpDifference is the outcome of comparing a remote KEY_DUMP against the
// local store: what to send back immediately (we're newer or the peer is
// missing the key) and what to still ask for (the peer is newer, or we
// don't hold the key).
//
// When neither side can tell who is newer — (version, originator,
// ttl_version) are equal but the peer's hash is missing or differs from
// ours — the key goes in both lists. This is redundant in both directions
// rather than risking a silently dropped update; the merge path safely
// discards whichever side turns out to be stale.
type DumpDifference struct {
	ToSend    []Key       // keys whose local records go back in the reply
	ToRequest []Key       // keys the peer is asked to push back with a KEY_SET
}

// CompareDigests compares a remote digest list against local ValueRecords
// key by key, as the middle step of a three-way full-sync exchange.
func CompareDigests(s *Store, remote []KeyDigest) DumpDifference {
	var diff DumpDifference
	seen := make(map[Key]bool, len(remote))

	for _, rd := range remote {
		seen[rd.Key] = true

		local, ok := s.Get(rd.Key)
		if !ok {
			diff.ToRequest = append(diff.ToRequest, rd.Key)
			continue
		}

		localRank := ValueRecord{
			Version:      local.Version,
			OriginatorID: local.OriginatorID,
			TTLVersion:   local.TTLVersion,
		}
		remoteRank := ValueRecord{
			Version:      rd.Version,
			OriginatorID: rd.OriginatorID,
			TTLVersion:   rd.TTLVersion,
		}

		switch localRank.compareRank(remoteRank) {
		case orderGreater:
			diff.ToSend = append(diff.ToSend, rd.Key)
		case orderLess:
			diff.ToRequest = append(diff.ToRequest, rd.Key)
		case orderEqual:
			local.ensureHash()
			if !rd.HashValid || local.Hash != rd.Hash {
				// Unknown/mismatched hash at an otherwise-equal rank:
				// resolve redundantly in both directions rather than
				// risk a silently dropped update.
				diff.ToSend = append(diff.ToSend, rd.Key)
				diff.ToRequest = append(diff.ToRequest, rd.Key)
			}
		}
	}

	// Keys we hold that the peer's dump never mentioned at all: the peer
	// doesn't know about them yet, so push them unconditionally.
	s.Range(func(k Key, _ ValueRecord) bool {
		if !seen[k] {
			diff.ToSend = append(diff.ToSend, k)
		}
		return true
	})

	return diff
}

// BuildKeySet resolves a ToSend key list against the store into the
// key/value payload a KEY_SET command carries.
func BuildKeySet(s *Store, keys []Key) map[Key]ValueRecord {
	out := make(map[Key]ValueRecord, len(keys))
	for _, k := range keys {
		if v, ok := s.Get(k); ok {
			out[k] = v
		}
	}
	return out
}
