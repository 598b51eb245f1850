package kvstore

import (
	"container/heap"
	"time"
)

// ttlEntry is one scheduled expiry. It carries enough of the record's
// identity (version, originator, ttl_version) to detect staleness: if the
// store's current record under Key no longer matches, the record was
// refreshed or overwritten since this entry was scheduled and the pop is
// a no-op.
type ttlEntry struct {
	deadline     time.Time
	key          Key
	version      int64
	originatorID NodeID
	ttlVersion   int64
	index        int // heap.Interface bookkeeping
}

// ttlQueue is a min-heap ordered by deadline, built directly on
// container/heap — the idiomatic choice for an in-process priority queue.
type ttlQueue []*ttlEntry

func (q ttlQueue) Len() int { return len(q) }
func (q ttlQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q ttlQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *ttlQueue) Push(x interface{}) {
	e := x.(*ttlEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *ttlQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// TTLCountdown owns the expiry schedule for every key with a finite TTL.
// Keys with InfiniteTTL are never enqueued.
type TTLCountdown struct {
	queue ttlQueue
}

// NewTTLCountdown returns an empty countdown queue.
func NewTTLCountdown() *TTLCountdown {
	q := &TTLCountdown{}
	heap.Init(&q.queue)
	return q
}

// Schedule enqueues (or re-enqueues) an expiry for rec under key, due
// ttlMillis after now. InfiniteTTL is a no-op: such a record never
// expires on its own.
func (c *TTLCountdown) Schedule(now time.Time, key Key, rec ValueRecord) {
	if rec.TTLMillis == InfiniteTTL {
		return
	}
	heap.Push(&c.queue, &ttlEntry{
		deadline:     now.Add(time.Duration(rec.TTLMillis) * time.Millisecond),
		key:          key,
		version:      rec.Version,
		originatorID: rec.OriginatorID,
		ttlVersion:   rec.TTLVersion,
	})
}

// Expire pops every entry due at or before now, deleting the matching
// record from s if — and only if — the store's current record for that
// key still has the same (version, originator, ttl_version) the entry was
// scheduled under. It returns the keys actually deleted; Core.ExpireTTLs
// publishes them to local and global subscribers. Expired keys are not
// sent to peers: each peer expires its own copy.
func (c *TTLCountdown) Expire(now time.Time, s *Store) []Key {
	var expired []Key
	for c.queue.Len() > 0 {
		next := c.queue[0]
		if next.deadline.After(now) {
			break
		}
		heap.Pop(&c.queue)

		current, ok := s.Get(next.key)
		if !ok {
			continue
		}
		if current.Version != next.version ||
			current.OriginatorID != next.originatorID ||
			current.TTLVersion != next.ttlVersion {
			continue // superseded since scheduling; not actually expired
		}
		s.Delete(next.key)
		expired = append(expired, next.key)
	}
	return expired
}

// NextDeadline reports the earliest pending expiry, used by the node's
// event loop to size its select/timer wait. The second return is false
// when the queue is empty.
func (c *TTLCountdown) NextDeadline() (time.Time, bool) {
	if c.queue.Len() == 0 {
		return time.Time{}, false
	}
	return c.queue[0].deadline, true
}

// DecrementTTL reduces a record's remaining TTL by step before it is
// forwarded to a peer, guaranteeing TTL strictly decreases per hop so
// forwarding always terminates. InfiniteTTL records are left untouched. A
// record whose TTL would drop to zero or below is reported as expired
// instead of forwarded.
func DecrementTTL(rec ValueRecord, step time.Duration) (out ValueRecord, expired bool) {
	if rec.TTLMillis == InfiniteTTL {
		return rec, false
	}
	ms := rec.TTLMillis - step.Milliseconds()
	if ms <= 0 {
		return rec, true
	}
	rec.TTLMillis = ms
	return rec, false
}
