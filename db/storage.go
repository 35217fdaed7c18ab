package db

import (
	"context"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/db/pgstorage"
	"github.com/omnibridge/bridge-service/gerror"
)

// Storage interface
type Storage interface {
	Ping(ctx context.Context) error

	// scan cursors
	GetScanCursor(ctx context.Context, chain bridge.ChainRef) (uint64, error)
	SetScanCursor(ctx context.Context, chain bridge.ChainRef, blockNum uint64) error
	RollbackScanCursor(ctx context.Context, chain bridge.ChainRef, blockNum uint64) error
	GetScanCursors(ctx context.Context) ([]bridge.ScanCursor, error)

	// relay records
	AddRelayRecord(ctx context.Context, record *bridge.RelayRecord) (bool, error)
	GetRelayRecord(ctx context.Context, key bridge.RecordKey) (*bridge.RelayRecord, error)
	MarkDispatched(ctx context.Context, key bridge.RecordKey, nextRetryAt time.Time) error
	ScheduleRetry(ctx context.Context, key bridge.RecordKey, retryCount int, nextRetryAt time.Time) error
	SetRelayStatus(ctx context.Context, key bridge.RecordKey, status bridge.RelayStatus, failReason string) error
	AddRelayTxHash(ctx context.Context, key bridge.RecordKey, txHash []byte) error
	GetDispatchableRecords(ctx context.Context, now time.Time, limit int) ([]*bridge.RelayRecord, error)
	GetRelayRecordsByStatus(ctx context.Context, status bridge.RelayStatus, limit int) ([]*bridge.RelayRecord, error)
	CountRelayRecordsByStatus(ctx context.Context) (map[bridge.RelayStatus]uint64, error)
}

// NewStorage creates a new Storage
func NewStorage(cfg Config) (Storage, error) {
	if cfg.Database == "postgres" {
		return pgstorage.NewPostgresStorage(pgstorage.Config{
			Name:     cfg.Name,
			User:     cfg.User,
			Password: cfg.Password,
			Host:     cfg.Host,
			Port:     cfg.Port,
			MaxConns: cfg.MaxConns,
		})
	}
	return nil, gerror.ErrStorageNotRegister
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	config := pgstorage.Config{
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
	}
	return pgstorage.RunMigrations(config)
}
