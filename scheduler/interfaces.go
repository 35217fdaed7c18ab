package scheduler

import (
	"context"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
)

type storageInterface interface {
	GetRelayRecord(ctx context.Context, key bridge.RecordKey) (*bridge.RelayRecord, error)
	MarkDispatched(ctx context.Context, key bridge.RecordKey, nextRetryAt time.Time) error
	ScheduleRetry(ctx context.Context, key bridge.RecordKey, retryCount int, nextRetryAt time.Time) error
	SetRelayStatus(ctx context.Context, key bridge.RecordKey, status bridge.RelayStatus, failReason string) error
	GetDispatchableRecords(ctx context.Context, now time.Time, limit int) ([]*bridge.RelayRecord, error)
	CountRelayRecordsByStatus(ctx context.Context) (map[bridge.RelayStatus]uint64, error)
}

type submitterInterface interface {
	Destination() bridge.ChainRef
	Enqueue(record *bridge.RelayRecord) bool
}
