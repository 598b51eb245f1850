package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateDigests_OneEntryPerKey(t *testing.T) {
	s := NewStore()
	s.set("a", ValueRecord{Version: 1, OriginatorID: "n1"})
	s.set("b", ValueRecord{Version: 2, OriginatorID: "n1"})

	digests := CreateDigests(s)
	require.Len(t, digests, 2)
	for _, d := range digests {
		require.True(t, d.HashValid, "CreateDigests must ensure a hash is present")
	}
}

func TestCompareDigests_LocalNewerSendsBack(t *testing.T) {
	s := NewStore()
	s.set("k", ValueRecord{Version: 5, OriginatorID: "a", Value: []byte("v5")})

	remote := []KeyDigest{{Key: "k", Version: 3, OriginatorID: "a"}}
	diff := CompareDigests(s, remote)

	require.Equal(t, []Key{"k"}, diff.ToSend)
	require.Empty(t, diff.ToRequest)
}

func TestCompareDigests_RemoteNewerRequestsIt(t *testing.T) {
	s := NewStore()
	s.set("k", ValueRecord{Version: 1, OriginatorID: "a"})

	remote := []KeyDigest{{Key: "k", Version: 3, OriginatorID: "a"}}
	diff := CompareDigests(s, remote)

	require.Equal(t, []Key{"k"}, diff.ToRequest)
	require.Empty(t, diff.ToSend)
}

func TestCompareDigests_LocallyUnknownKeyIsRequested(t *testing.T) {
	s := NewStore()
	remote := []KeyDigest{{Key: "k", Version: 1, OriginatorID: "a"}}
	diff := CompareDigests(s, remote)
	require.Equal(t, []Key{"k"}, diff.ToRequest)
}

func TestCompareDigests_LocalOnlyKeyIsAlwaysSent(t *testing.T) {
	s := NewStore()
	s.set("only-local", ValueRecord{Version: 1, OriginatorID: "a"})
	diff := CompareDigests(s, nil)
	require.Equal(t, []Key{"only-local"}, diff.ToSend)
}

func TestCompareDigests_EqualRankMismatchedHashGoesBothWays(t *testing.T) {
	s := NewStore()
	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v")}
	rec.ensureHash()
	s.set("k", rec)

	remote := []KeyDigest{{
		Key: "k", Version: 1, OriginatorID: "a",
		Hash: rec.Hash + 1, HashValid: true,
	}}
	diff := CompareDigests(s, remote)
	require.Contains(t, diff.ToSend, Key("k"))
	require.Contains(t, diff.ToRequest, Key("k"))
}

func TestCompareDigests_EqualRankMatchingHashIsQuiet(t *testing.T) {
	s := NewStore()
	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v")}
	rec.ensureHash()
	s.set("k", rec)

	remote := []KeyDigest{{Key: "k", Version: 1, OriginatorID: "a", Hash: rec.Hash, HashValid: true}}
	diff := CompareDigests(s, remote)
	require.Empty(t, diff.ToSend)
	require.Empty(t, diff.ToRequest)
}

func TestBuildKeySet_SkipsMissingKeys(t *testing.T) {
	s := NewStore()
	s.set("a", ValueRecord{Version: 1})
	out := BuildKeySet(s, []Key{"a", "missing"})
	require.Len(t, out, 1)
	_, ok := out["a"]
	require.True(t, ok)
}
