package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerge_AbsentKeyAlwaysAccepted(t *testing.T) {
	s := NewStore()
	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: []byte("v1")},
	}, nil)

	require.Len(t, deltas, 1)
	require.True(t, deltas[0].ValueUpdated)
	rec, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), rec.Value)
	require.True(t, rec.HashValid)
}

func TestMerge_StaleVersionRejected(t *testing.T) {
	s := NewStore()
	Merge(s, map[Key]ValueRecord{"k": {Version: 5, OriginatorID: "a", Value: []byte("v5")}}, nil)

	deltas := Merge(s, map[Key]ValueRecord{"k": {Version: 3, OriginatorID: "a", Value: []byte("v3")}}, nil)
	require.Empty(t, deltas)

	rec, _ := s.Get("k")
	require.Equal(t, []byte("v5"), rec.Value)
}

func TestMerge_NewerVersionReplaces(t *testing.T) {
	s := NewStore()
	Merge(s, map[Key]ValueRecord{"k": {Version: 1, OriginatorID: "a", Value: []byte("v1")}}, nil)

	deltas := Merge(s, map[Key]ValueRecord{"k": {Version: 2, OriginatorID: "a", Value: []byte("v2")}}, nil)
	require.Len(t, deltas, 1)
	require.True(t, deltas[0].ValueUpdated)

	rec, _ := s.Get("k")
	require.Equal(t, []byte("v2"), rec.Value)
}

func TestMerge_MalformedTTLRejected(t *testing.T) {
	s := NewStore()
	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: []byte("v"), TTLMillis: -5},
	}, nil)
	require.Empty(t, deltas)
	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestMerge_InfiniteTTLAccepted(t *testing.T) {
	s := NewStore()
	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: []byte("v"), TTLMillis: InfiniteTTL},
	}, nil)
	require.Len(t, deltas, 1)
}

func TestMerge_TTLOnlyRefreshCannotCreateKey(t *testing.T) {
	s := NewStore()
	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: nil, TTLVersion: 1},
	}, nil)
	require.Empty(t, deltas)
	_, ok := s.Get("k")
	require.False(t, ok)
}

func TestMerge_TTLOnlyRefreshUpdatesLeaseNotValue(t *testing.T) {
	s := NewStore()
	Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: []byte("v1"), TTLMillis: 5000, TTLVersion: 1},
	}, nil)

	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: nil, TTLMillis: 9000, TTLVersion: 2},
	}, nil)

	require.Len(t, deltas, 1)
	require.False(t, deltas[0].ValueUpdated)

	rec, _ := s.Get("k")
	require.Equal(t, []byte("v1"), rec.Value)
	require.Equal(t, int64(9000), rec.TTLMillis)
	require.Equal(t, int64(2), rec.TTLVersion)
}

func TestMerge_TTLOnlyRefreshRejectedOnMismatchedOriginator(t *testing.T) {
	s := NewStore()
	Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "a", Value: []byte("v1"), TTLVersion: 1},
	}, nil)

	deltas := Merge(s, map[Key]ValueRecord{
		"k": {Version: 1, OriginatorID: "b", Value: nil, TTLVersion: 2},
	}, nil)
	require.Empty(t, deltas)
}

func TestMerge_FilterRejectsNonMatchingKey(t *testing.T) {
	s := NewStore()
	filter := &Filters{KeyPrefix: "allowed/"}
	deltas := Merge(s, map[Key]ValueRecord{
		"blocked/k": {Version: 1, OriginatorID: "a", Value: []byte("v")},
	}, filter)
	require.Empty(t, deltas)
}

func TestMerge_EqualRankIsANoop(t *testing.T) {
	s := NewStore()
	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v")}
	Merge(s, map[Key]ValueRecord{"k": rec}, nil)

	deltas := Merge(s, map[Key]ValueRecord{"k": rec}, nil)
	require.Empty(t, deltas)
}
