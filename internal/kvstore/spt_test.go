package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSPTOptimizer_SelfAsRootHasZeroDistance(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("self")
	dist, known := o.Distance("self")
	require.True(t, known)
	require.Equal(t, 0, dist)
}

func TestSPTOptimizer_UnknownRootReportsUnreachable(t *testing.T) {
	o := NewSPTOptimizer("self")
	_, known := o.Distance("never-added")
	require.False(t, known)
}

func TestSPTOptimizer_HandleDualMessagePicksNearestNeighbor(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("root")

	reply, changed := o.HandleDualMessage("far", "root", 5, false)
	require.True(t, changed)
	require.Equal(t, 6, reply.Distance)

	reply, changed = o.HandleDualMessage("near", "root", 1, false)
	require.True(t, changed)
	require.Equal(t, 2, reply.Distance)

	dist, known := o.Distance("root")
	require.True(t, known)
	require.Equal(t, 2, dist)
}

func TestSPTOptimizer_ChildMembershipTracked(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("root")

	o.HandleDualMessage("neighbor", "root", 1, true)
	require.ElementsMatch(t, []PeerName{"neighbor"}, o.Children("root"))

	o.HandleDualMessage("neighbor", "root", 1, false)
	require.Empty(t, o.Children("root"))
}

func TestSPTOptimizer_RootNeverRecomputesOwnDistance(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("self")

	reply, changed := o.HandleDualMessage("neighbor", "self", 3, true)
	require.False(t, changed)
	require.Equal(t, 0, reply.Distance)

	dist, _ := o.Distance("self")
	require.Equal(t, 0, dist)
}

func TestSPTOptimizer_SetChildAddsAndRemovesWithoutDualExchange(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("root")

	o.SetChild("root", "peer-a", true)
	require.ElementsMatch(t, []PeerName{"peer-a"}, o.Children("root"))

	o.SetChild("root", "peer-a", false)
	require.Empty(t, o.Children("root"))
}

func TestSPTOptimizer_SetChildOnUnknownRootIsANoopWhenClearing(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.SetChild("never-added", "peer-a", false)
	_, known := o.Distance("never-added")
	require.False(t, known, "clearing a child on an untracked root must not start tracking it")
}

func TestSPTOptimizer_RemoveRootForgetsState(t *testing.T) {
	o := NewSPTOptimizer("self")
	o.AddRoot("root")
	o.RemoveRoot("root")
	_, known := o.Distance("root")
	require.False(t, known)
}
