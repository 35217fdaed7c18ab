package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Log.Environment)
	assert.Equal(t, 5*time.Second, cfg.Watcher.SyncInterval.Duration)
	assert.Equal(t, uint64(100), cfg.Watcher.SyncChunkSize)
	assert.Equal(t, 10, cfg.Scheduler.RetryCap)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.RetryBackoffMax.Duration)
	assert.Equal(t, 32, cfg.Submitter.QueueSize)
	assert.Equal(t, "8080", cfg.BridgeServer.Port)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.EVMChains)
	assert.Empty(t, cfg.SubstrateChains)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	content := `
[Log]
Level = "info"

[Scheduler]
RetryCap = 3

[[EVMChains]]
ChainID = 1
URL = "http://localhost:8545"
BridgeAddr = "0x4444444444444444444444444444444444444444"
ConfirmationDepth = 12
StartBlock = 500
	[EVMChains.Keystore]
	Path = "/keys/relayer.keystore"
	Password = "secret"

[[SubstrateChains]]
ChainID = 2
URL = "ws://localhost:9944"
StartBlock = 100
SS58Prefix = 42
	[SubstrateChains.Seed]
	Path = "/keys/relayer.seed"
`
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Scheduler.RetryCap)
	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Watcher.SyncInterval.Duration)

	require.Len(t, cfg.EVMChains, 1)
	evm := cfg.EVMChains[0]
	assert.Equal(t, uint32(1), evm.ChainID)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", evm.BridgeAddr.Hex())
	assert.Equal(t, uint64(12), evm.ConfirmationDepth)
	assert.Equal(t, uint64(500), evm.StartBlock)
	assert.Equal(t, "/keys/relayer.keystore", evm.Keystore.Path)

	require.Len(t, cfg.SubstrateChains, 1)
	sub := cfg.SubstrateChains[0]
	assert.Equal(t, uint32(2), sub.ChainID)
	assert.Equal(t, uint16(42), sub.SS58Prefix)
}
