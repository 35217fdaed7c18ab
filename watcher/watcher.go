package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
)

// Watcher tails one source chain for PaidIn deposits and turns them into
// durable relay records. One instance runs per configured chain.
//
// The scan cursor only advances after every event of the scanned range is
// recorded, so a crash mid-range re-scans the range and the insert dedup
// swallows the repeats.
type Watcher struct {
	adapter    chainAdapter
	storage    storageInterface
	cfg        Config
	chain      bridge.ChainRef
	startBlock uint64
	intents    chan<- bridge.TransferIntent
	synced     bool
}

// NewWatcher creates a watcher for the adapter's chain. startBlock is where
// scanning begins for a chain with no stored cursor.
func NewWatcher(adapter chainAdapter, storage storageInterface, cfg Config, startBlock uint64, intents chan<- bridge.TransferIntent) *Watcher {
	return &Watcher{
		adapter:    adapter,
		storage:    storage,
		cfg:        cfg,
		chain:      adapter.ChainRef(),
		startBlock: startBlock,
		intents:    intents,
	}
}

// Synced reports whether the watcher reached the stable head at least once.
func (w *Watcher) Synced() bool {
	return w.synced
}

// Sync reads the last scanned block and tails the chain from there until the
// context is cancelled. Endpoint failures are logged and retried on the next
// cycle without touching any state.
func (w *Watcher) Sync(ctx context.Context) error {
	log.Infof("chain %s: synchronization started", w.chain)
	cursor, err := w.storage.GetScanCursor(ctx, w.chain)
	if err != nil {
		if !errors.Is(err, gerror.ErrStorageNotFound) {
			log.Errorf("chain %s: error getting the scan cursor: %v", w.chain, err)
			return err
		}
		log.Warnf("chain %s: no scan cursor stored, starting from block %d", w.chain, w.startBlock)
		cursor = w.startBlock
	}
	if w.startBlock > cursor {
		log.Warnf("chain %s: configured start block %d is ahead of stored cursor %d, skipping forward", w.chain, w.startBlock, cursor)
		cursor = w.startBlock
	}

	waitDuration := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("chain %s: watcher ctx done", w.chain)
			return nil
		case <-time.After(waitDuration):
			waitDuration = w.cfg.SyncInterval.Duration
			head, err := w.adapter.HeadHeight(ctx)
			if err != nil {
				log.Warnf("chain %s: error getting the stable head: %v", w.chain, err)
				continue
			}
			metrics.SetChainHead(w.chain.String(), head)
			if head <= cursor {
				w.synced = true
				continue
			}

			fromBlock := cursor + 1
			toBlock := cursor + w.cfg.SyncChunkSize
			if toBlock > head {
				toBlock = head
			}
			log.Debugf("chain %s: scanning blocks [%d, %d]", w.chain, fromBlock, toBlock)
			intents, err := w.adapter.PaidInEventsByBlockRange(ctx, fromBlock, toBlock)
			if err != nil {
				log.Warnf("chain %s: error scanning blocks [%d, %d]: %v", w.chain, fromBlock, toBlock, err)
				continue
			}
			if err := w.recordIntents(ctx, intents); err != nil {
				// cursor stays put, the whole range is re-scanned next cycle
				log.Errorf("chain %s: error recording deposits of [%d, %d]: %v", w.chain, fromBlock, toBlock, err)
				continue
			}
			if err := w.storage.SetScanCursor(ctx, w.chain, toBlock); err != nil {
				log.Errorf("chain %s: error advancing the scan cursor to %d: %v", w.chain, toBlock, err)
				continue
			}
			cursor = toBlock
			metrics.SetScannedBlock(w.chain.String(), cursor)

			if head > toBlock {
				// still behind, keep scanning without sleeping
				waitDuration = time.Duration(0)
			} else {
				w.synced = true
			}
		}
	}
}

// recordIntents inserts one relay record per deposit, in block order. New
// records are also pushed to the scheduler for immediate dispatch, a full
// channel is fine because the scheduler sweep picks pending rows up anyway.
func (w *Watcher) recordIntents(ctx context.Context, intents []bridge.TransferIntent) error {
	for i := range intents {
		intent := intents[i]
		created, err := w.storage.AddRelayRecord(ctx, bridge.NewRelayRecord(intent))
		if err != nil {
			return err
		}
		metrics.RecordDeposit(w.chain.String(), !created)
		if !created {
			log.Debugf("chain %s: deposit %d already recorded", w.chain, intent.DepositNonce)
			continue
		}
		log.Infof("chain %s: recorded deposit %d to %s, amount %s", w.chain, intent.DepositNonce, intent.Destination, intent.Amount)
		select {
		case w.intents <- intent:
		default:
			log.Debugf("chain %s: scheduler queue full, deposit %d left for the sweep", w.chain, intent.DepositNonce)
		}
	}
	return nil
}
