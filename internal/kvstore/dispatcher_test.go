package kvstore

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/KIKOU2016/openr/internal/logging"
	"github.com/KIKOU2016/openr/internal/wire"
)

func newTestDispatcher(t *testing.T, nodeID string) *Dispatcher {
	t.Helper()
	cfg := DefaultConfig(NodeID(nodeID))
	core, err := NewCore(cfg, logging.For(nodeID), prometheus.NewRegistry())
	require.NoError(t, err)
	return NewDispatcher(core)
}

func TestDispatcher_KeySetLocalFloodsWithSelfTrail(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	req := wire.Request{
		Command: wire.CommandKeySet,
		KeyVals: map[string]wire.ValueRecord{
			"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")},
		},
	}
	reply, outcome := d.Handle(time.Now(), req)
	require.True(t, reply.HasAck)
	require.True(t, outcome.ShouldFlood)
	require.Equal(t, []NodeID{"node-1"}, outcome.Message.NodeIDs)
}

func TestDispatcher_KeySetRemoteAppendsSelfToIncomingTrail(t *testing.T) {
	d := newTestDispatcher(t, "node-2")
	req := wire.Request{
		Command:    wire.CommandKeySet,
		OriginPeer: "node-1",
		NodeIDs:    []string{"node-1"},
		KeyVals: map[string]wire.ValueRecord{
			"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")},
		},
	}
	_, outcome := d.Handle(time.Now(), req)
	require.True(t, outcome.ShouldFlood)
	require.Equal(t, []NodeID{"node-1", "node-2"}, outcome.Message.NodeIDs)
}

func TestDispatcher_KeySetDropsLoopedPublicationWithoutMerging(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	req := wire.Request{
		Command:    wire.CommandKeySet,
		OriginPeer: "node-3",
		NodeIDs:    []string{"node-2", "node-1", "node-3"},
		KeyVals: map[string]wire.ValueRecord{
			"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")},
		},
	}
	reply, outcome := d.Handle(time.Now(), req)
	require.True(t, reply.HasAck)
	require.False(t, outcome.ShouldFlood)

	get, _ := d.Handle(time.Now(), wire.Request{Command: wire.CommandKeyGet, Keys: []string{"k"}})
	require.Empty(t, get.Publication.KeyVals, "a looped publication must never be merged into the store")

	snap := d.core.counters.Snapshot()
	require.Equal(t, float64(1), snap["floods_looped"])
}

func TestDispatcher_KeySetNoopReturnsAckWithoutFlood(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	req := wire.Request{
		Command: wire.CommandKeySet,
		KeyVals: map[string]wire.ValueRecord{
			"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")},
		},
	}
	d.Handle(time.Now(), req)

	reply, outcome := d.Handle(time.Now(), req)
	require.True(t, reply.HasAck)
	require.False(t, outcome.ShouldFlood)
}

func TestDispatcher_KeySetRequiresAtLeastOneKey(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	reply, outcome := d.Handle(time.Now(), wire.Request{Command: wire.CommandKeySet})
	require.True(t, reply.HasError)
	require.Equal(t, string(wire.ErrMalformedRequest), reply.ErrorCode)
	require.False(t, outcome.ShouldFlood)
}

func TestDispatcher_KeyGetReturnsStoredValue(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	d.Handle(time.Now(), wire.Request{
		Command: wire.CommandKeySet,
		KeyVals: map[string]wire.ValueRecord{"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")}},
	})

	reply, _ := d.Handle(time.Now(), wire.Request{Command: wire.CommandKeyGet, Keys: []string{"k", "missing"}})
	require.NotNil(t, reply.Publication)
	require.Len(t, reply.Publication.KeyVals, 1)
	require.Equal(t, []byte("v"), reply.Publication.KeyVals["k"].Value)
}

func TestDispatcher_PeerAddThenDump(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	reply, _ := d.Handle(time.Now(), wire.Request{
		Command: wire.CommandPeerAdd,
		Peers: map[string]wire.PeerParams{
			"peer-a": {CmdURL: "127.0.0.1:9000"},
		},
	})
	require.Len(t, reply.Peers, 1)
	require.True(t, reply.Peers[0].Pending, "a freshly added peer has not completed a full sync yet")

	dump, _ := d.Handle(time.Now(), wire.Request{Command: wire.CommandPeerDump})
	require.Len(t, dump.Peers, 1)
	require.Equal(t, "peer-a", dump.Peers[0].Name)
}

func TestDispatcher_UnknownCommandIsRejected(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	reply, outcome := d.Handle(time.Now(), wire.Request{Command: wire.Command(255)})
	require.True(t, reply.HasError)
	require.Equal(t, string(wire.ErrInvariantViolation), reply.ErrorCode)
	require.False(t, outcome.ShouldFlood)
}

func TestDispatcher_FloodTopoSetAssignsChildByPeerID(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	d.core.sptOpt.AddRoot("root-a")

	reply := d.handleFloodTopoSet(wire.Request{RootID: "root-a", SrcID: "peer-b", SetChild: true})
	require.True(t, reply.HasAck)
	require.ElementsMatch(t, []PeerName{"peer-b"}, d.core.sptOpt.Children("root-a"))

	reply = d.handleFloodTopoSet(wire.Request{RootID: "root-a", SrcID: "peer-b", SetChild: false})
	require.True(t, reply.HasAck)
	require.Empty(t, d.core.sptOpt.Children("root-a"))
}

func TestDispatcher_FloodTopoSetAllRootsClearsEveryTree(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	d.core.sptOpt.AddRoot("root-a")
	d.core.sptOpt.AddRoot("root-b")
	d.core.sptOpt.SetChild("root-a", "peer-b", true)
	d.core.sptOpt.SetChild("root-b", "peer-b", true)

	reply := d.handleFloodTopoSet(wire.Request{AllRoots: true, SrcID: "peer-b", SetChild: false})
	require.True(t, reply.HasAck)
	require.Empty(t, d.core.sptOpt.Children("root-a"))
	require.Empty(t, d.core.sptOpt.Children("root-b"))
}

func TestDispatcher_DualReportsChangedRoots(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	d.core.sptOpt.AddRoot("root-a")

	reply, outcome := d.handleDual("peer-b", wire.Request{
		DualMessages: []wire.DualMessage{{Type: wire.DualDistance, RootID: "root-a", Distance: 1}},
	})
	require.True(t, reply.HasAck)
	require.Equal(t, []NodeID{"root-a"}, outcome.ChangedRoots)
}

func TestDispatcher_CountersGetReflectsActivity(t *testing.T) {
	d := newTestDispatcher(t, "node-1")
	d.Handle(time.Now(), wire.Request{
		Command: wire.CommandKeySet,
		KeyVals: map[string]wire.ValueRecord{"k": {Version: 1, OriginatorID: "node-1", Value: []byte("v")}},
	})

	reply, _ := d.Handle(time.Now(), wire.Request{Command: wire.CommandCountersGet})
	require.NotNil(t, reply.Counters)
	require.Equal(t, int64(1), reply.Counters.Values["keys_added"])
}
