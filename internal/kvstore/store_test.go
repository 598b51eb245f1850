package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_GetSetDelete(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("k")
	require.False(t, ok)

	s.set("k", ValueRecord{Version: 1, Value: []byte("v")})
	rec, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, int64(1), rec.Version)

	s.Delete("k")
	_, ok = s.Get("k")
	require.False(t, ok)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.set("k", ValueRecord{Version: 1})

	snap := s.Snapshot()
	snap["k"] = ValueRecord{Version: 99}

	rec, _ := s.Get("k")
	require.Equal(t, int64(1), rec.Version, "mutating the snapshot must not affect the store")
}

func TestMatchesFilter(t *testing.T) {
	require.True(t, matchesFilter(nil, "any/key", "node-a"))

	f := &Filters{KeyPrefix: "logs/"}
	require.True(t, matchesFilter(f, "logs/a", "node-a"))
	require.False(t, matchesFilter(f, "metrics/a", "node-a"))

	f2 := &Filters{OriginatorIDs: []string{"node-a", "node-b"}}
	require.True(t, matchesFilter(f2, "k", "node-b"))
	require.False(t, matchesFilter(f2, "k", "node-c"))
}
