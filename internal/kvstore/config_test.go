package kvstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig("node-1")
	require.NoError(t, cfg.Validate())
	require.Equal(t, "127.0.0.1:50051", cfg.GetAddress())
}

func TestConfig_ValidateRequiresNodeID(t *testing.T) {
	cfg := DefaultConfig("")
	require.ErrorIs(t, cfg.Validate(), ErrNodeIDRequired)
}

func TestConfig_ValidateRequiresPositiveSyncInterval(t *testing.T) {
	cfg := DefaultConfig("node-1")
	cfg.DBSyncInterval = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidSyncInterval)
}

func TestConfig_ValidateRejectsSubMillisecondTTLDecrement(t *testing.T) {
	cfg := DefaultConfig("node-1")
	cfg.TTLDecrement = 100
	require.ErrorIs(t, cfg.Validate(), ErrInvalidTTLDecrement)
}

func TestConfig_ValidateRejectsMalformedFloodRate(t *testing.T) {
	cfg := DefaultConfig("node-1")
	cfg.FloodRate = &FloodRate{MessagesPerSecond: 0, Burst: 1}
	require.ErrorIs(t, cfg.Validate(), ErrInvalidFloodRate)
}

func TestConfig_ValidateRejectsNonPositiveFlushInterval(t *testing.T) {
	cfg := DefaultConfig("node-1")
	cfg.FloodFlushInterval = 0
	require.ErrorIs(t, cfg.Validate(), ErrInvalidFloodFlushInterval)
}
