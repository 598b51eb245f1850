package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCountdown_ExpiresDueEntries(t *testing.T) {
	s := NewStore()
	c := NewTTLCountdown()
	now := time.Unix(0, 0)

	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v"), TTLMillis: 50}
	s.set("k", rec)
	c.Schedule(now, "k", rec)

	expired := c.Expire(now.Add(10*time.Millisecond), s)
	require.Empty(t, expired, "not yet due")

	expired = c.Expire(now.Add(100*time.Millisecond), s)
	require.Equal(t, []Key{"k"}, expired)

	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestTTLCountdown_InfiniteTTLNeverScheduled(t *testing.T) {
	c := NewTTLCountdown()
	c.Schedule(time.Unix(0, 0), "k", ValueRecord{TTLMillis: InfiniteTTL})
	_, ok := c.NextDeadline()
	require.False(t, ok)
}

func TestTTLCountdown_StaleEntrySkipped(t *testing.T) {
	s := NewStore()
	c := NewTTLCountdown()
	now := time.Unix(0, 0)

	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v"), TTLMillis: 50}
	s.set("k", rec)
	c.Schedule(now, "k", rec)

	// Superseded by a newer version before the original entry fires.
	newer := ValueRecord{Version: 2, OriginatorID: "a", Value: []byte("v2"), TTLMillis: 5000}
	s.set("k", newer)
	c.Schedule(now, "k", newer)

	expired := c.Expire(now.Add(100*time.Millisecond), s)
	require.Empty(t, expired, "the stale entry for version 1 must not delete the version-2 record")

	rec2, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, int64(2), rec2.Version)
}

func TestDecrementTTL(t *testing.T) {
	rec := ValueRecord{TTLMillis: 1000}
	out, expired := DecrementTTL(rec, 200*time.Millisecond)
	require.False(t, expired)
	require.Equal(t, int64(800), out.TTLMillis)

	out, expired = DecrementTTL(ValueRecord{TTLMillis: 100}, 200*time.Millisecond)
	require.True(t, expired)
	_ = out

	inf := ValueRecord{TTLMillis: InfiniteTTL}
	out, expired = DecrementTTL(inf, time.Second)
	require.False(t, expired)
	require.Equal(t, InfiniteTTL, out.TTLMillis)
}
