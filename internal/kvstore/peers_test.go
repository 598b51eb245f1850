package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeerRegistry_AddIsIdempotent(t *testing.T) {
	r := NewPeerRegistry()
	p1 := r.Add("p1", "node-1", "127.0.0.1:1", false)
	require.Equal(t, PeerInitializing, p1.state)

	p2 := r.Add("p1", "node-1", "127.0.0.1:2", true)
	require.Same(t, p1, p2, "Add on an existing name must update in place, not create a second Peer")
	require.Equal(t, "127.0.0.1:2", p2.CmdURL)
	require.True(t, p2.SupportsFloodOptimization)
}

func TestPeerRegistry_RemoveAndGet(t *testing.T) {
	r := NewPeerRegistry()
	r.Add("p1", "node-1", "addr", false)
	_, ok := r.Get("p1")
	require.True(t, ok)

	r.Remove("p1")
	_, ok = r.Get("p1")
	require.False(t, ok)
}

func TestPeerRegistry_MarkSyncedResetsBackoff(t *testing.T) {
	r := NewPeerRegistry()
	p := r.Add("p1", "node-1", "addr", false)
	r.MarkSyncFailed(p)
	r.MarkSyncFailed(p)
	require.Greater(t, p.backoff, minSyncBackoff)

	now := time.Now()
	r.MarkSynced(p, now)
	require.Equal(t, PeerSynced, p.state)
	require.Equal(t, minSyncBackoff, p.backoff)
	require.Equal(t, 0, p.consecutiveFailures)
}

func TestPeerRegistry_MarkSyncFailedCapsBackoff(t *testing.T) {
	r := NewPeerRegistry()
	p := r.Add("p1", "node-1", "addr", false)
	for i := 0; i < 20; i++ {
		r.MarkSyncFailed(p)
	}
	require.LessOrEqual(t, p.backoff, maxSyncBackoff)
}

func TestPeerRegistry_DueForSync(t *testing.T) {
	r := NewPeerRegistry()
	p := r.Add("p1", "node-1", "addr", false)
	now := time.Now()
	r.MarkSynced(p, now)

	due := r.DueForSync(now, time.Hour)
	require.Empty(t, due, "just synced, not due for a long time")

	due = r.DueForSync(now.Add(2*time.Hour), time.Hour)
	require.Len(t, due, 1)
}
