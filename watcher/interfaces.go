package watcher

import (
	"context"

	"github.com/omnibridge/bridge-service/bridge"
)

type chainAdapter interface {
	ChainRef() bridge.ChainRef
	HeadHeight(ctx context.Context) (uint64, error)
	PaidInEventsByBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]bridge.TransferIntent, error)
}

type storageInterface interface {
	GetScanCursor(ctx context.Context, chain bridge.ChainRef) (uint64, error)
	SetScanCursor(ctx context.Context, chain bridge.ChainRef, blockNum uint64) error
	AddRelayRecord(ctx context.Context, record *bridge.RelayRecord) (bool, error)
}
