package kvstore

// MergeDelta describes one key's outcome from a call to Merge, annotated
// as either a full value update or a TTL-only refresh, so callers
// (flood.go, the publisher) can decide whether subscribers need the new
// value or just a renewed lease.
type MergeDelta struct {
	Key          Key
	Record       ValueRecord
	ValueUpdated bool // false => TTL-only refresh of an already-known value
}

// Merge reconciles incoming records into s by per-key (version,
// originator, value, ttl_version) comparison.
//
// It implements the merge function:
//  1. reject keys/originators the optional filter excludes
//  2. reject records with a malformed TTL (negative and not InfiniteTTL)
//  3. a key absent locally is always accepted
//  4. otherwise compare by version: the incoming record only ever replaces
//     or refreshes an existing one, never regresses it
//  5. equal version ties break on (originator_id, value_bytes, ttl_version)
//  6. a record whose Value is nil is a TTL-only refresh: it can only ever
//     bump ttl_version/ttl_millis of an existing record with the same
//     version+originator, never introduce a new value
//  7. the stored record's Hash is (re)computed lazily, not on every merge
//  8. every accepted change is returned as a MergeDelta so callers can
//     decide what to flood/publish
func Merge(s *Store, incoming map[Key]ValueRecord, filter *Filters) []MergeDelta {
	var deltas []MergeDelta

	for key, rec := range incoming {
		if !matchesFilter(filter, key, rec.OriginatorID) {
			continue
		}
		if rec.TTLMillis < 0 && rec.TTLMillis != InfiniteTTL {
			continue
		}

		existing, ok := s.Get(key)
		if !ok {
			if !rec.HasValue() {
				// A TTL-only refresh can never create a brand new key.
				continue
			}
			rec.ensureHash()
			s.set(key, rec)
			deltas = append(deltas, MergeDelta{Key: key, Record: rec, ValueUpdated: true})
			continue
		}

		if !rec.HasValue() {
			// TTL-only refresh: legal only against the same (version,
			// originator) pair already stored, and only ever advances the
			// lease. This is handled before compareRank because its value
			// tier would otherwise compare existing.Value against a nil
			// incoming value and always rank the refresh as stale.
			if rec.Version != existing.Version || rec.OriginatorID != existing.OriginatorID {
				continue
			}
			if rec.TTLVersion <= existing.TTLVersion {
				continue
			}
			updated := existing
			updated.TTLMillis = rec.TTLMillis
			updated.TTLVersion = rec.TTLVersion
			s.set(key, updated)
			deltas = append(deltas, MergeDelta{Key: key, Record: updated, ValueUpdated: false})
			continue
		}

		switch existing.compareRank(rec) {
		case orderGreater, orderEqual:
			// Local record already dominates or ties; incoming is stale
			// or redundant, drop it.
			continue
		case orderLess:
			rec.ensureHash()
			s.set(key, rec)
			deltas = append(deltas, MergeDelta{Key: key, Record: rec, ValueUpdated: true})
		}
	}

	return deltas
}
