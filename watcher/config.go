package watcher

import (
	"github.com/omnibridge/bridge-service/config/types"
)

// Config of the watcher loop. One watcher instance runs per configured chain.
type Config struct {
	// SyncInterval is how often a fully caught up watcher polls the head.
	SyncInterval types.Duration `mapstructure:"SyncInterval"`

	// SyncChunkSize is the maximum number of blocks scanned per cycle.
	SyncChunkSize uint64 `mapstructure:"SyncChunkSize"`
}
