package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRecord_HasValue(t *testing.T) {
	present := ValueRecord{Value: []byte("")}
	require.True(t, present.HasValue())

	absent := ValueRecord{Value: nil}
	require.False(t, absent.HasValue())
}

func TestCompareRank_VersionDominates(t *testing.T) {
	older := ValueRecord{Version: 1, OriginatorID: "b"}
	newer := ValueRecord{Version: 2, OriginatorID: "a"}
	require.Equal(t, orderLess, older.compareRank(newer))
	require.Equal(t, orderGreater, newer.compareRank(older))
}

func TestCompareRank_TieBreaksInOrder(t *testing.T) {
	a := ValueRecord{Version: 1, OriginatorID: "node-a", Value: []byte("x")}
	b := ValueRecord{Version: 1, OriginatorID: "node-b", Value: []byte("x")}
	require.Equal(t, orderLess, a.compareRank(b))

	c := ValueRecord{Version: 1, OriginatorID: "node-a", Value: []byte("y")}
	require.Equal(t, orderLess, a.compareRank(c))

	d := ValueRecord{Version: 1, OriginatorID: "node-a", Value: []byte("x"), TTLVersion: 2}
	require.Equal(t, orderLess, a.compareRank(d))

	require.Equal(t, orderEqual, a.compareRank(a))
}

func TestEnsureHash_PresentVsAbsentDiffer(t *testing.T) {
	present := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte{}}
	present.ensureHash()

	absent := ValueRecord{Version: 1, OriginatorID: "a", Value: nil}
	absent.ensureHash()

	require.NotEqual(t, present.Hash, absent.Hash, "present-empty and absent must hash differently")
}

func TestEnsureHash_SkipsWhenAlreadyValid(t *testing.T) {
	rec := ValueRecord{Version: 1, OriginatorID: "a", Value: []byte("v"), Hash: 42, HashValid: true}
	rec.ensureHash()
	require.Equal(t, uint64(42), rec.Hash, "ensureHash must not recompute an already-valid hash")
}
