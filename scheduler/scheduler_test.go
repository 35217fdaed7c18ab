package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/config/types"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu      sync.Mutex
	records map[bridge.RecordKey]*bridge.RelayRecord
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: make(map[bridge.RecordKey]*bridge.RelayRecord)}
}

func (f *fakeStorage) add(record *bridge.RelayRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.CreatedAt = time.Now()
	f.records[record.Key()] = record
}

func (f *fakeStorage) GetRelayRecord(ctx context.Context, key bridge.RecordKey) (*bridge.RelayRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[key]
	if !ok {
		return nil, gerror.ErrStorageNotFound
	}
	clone := *record
	return &clone, nil
}

func (f *fakeStorage) MarkDispatched(ctx context.Context, key bridge.RecordKey, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[key]
	if !ok || record.IsTerminal() {
		return gerror.ErrTerminalRecord
	}
	record.Status = bridge.StatusSubmitted
	record.NextRetryAt = nextRetryAt
	return nil
}

func (f *fakeStorage) ScheduleRetry(ctx context.Context, key bridge.RecordKey, retryCount int, nextRetryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[key]
	if !ok || record.IsTerminal() {
		return gerror.ErrTerminalRecord
	}
	record.RetryCount = retryCount
	record.NextRetryAt = nextRetryAt
	return nil
}

func (f *fakeStorage) SetRelayStatus(ctx context.Context, key bridge.RecordKey, status bridge.RelayStatus, failReason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[key]
	if !ok || record.IsTerminal() {
		return gerror.ErrTerminalRecord
	}
	record.Status = status
	record.FailReason = failReason
	return nil
}

func (f *fakeStorage) GetDispatchableRecords(ctx context.Context, now time.Time, limit int) ([]*bridge.RelayRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bridge.RelayRecord
	for _, record := range f.records {
		if record.Status == bridge.StatusPending ||
			(record.Status == bridge.StatusSubmitted && !record.NextRetryAt.IsZero() && !record.NextRetryAt.After(now)) {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStorage) CountRelayRecordsByStatus(ctx context.Context) (map[bridge.RelayStatus]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[bridge.RelayStatus]uint64)
	for _, record := range f.records {
		counts[record.Status]++
	}
	return counts, nil
}

func (f *fakeStorage) status(key bridge.RecordKey) bridge.RelayStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[key].Status
}

type fakeSubmitter struct {
	dest  bridge.ChainRef
	full  bool
	queue []*bridge.RelayRecord
}

func (f *fakeSubmitter) Destination() bridge.ChainRef { return f.dest }

func (f *fakeSubmitter) Enqueue(record *bridge.RelayRecord) bool {
	if f.full {
		return false
	}
	f.queue = append(f.queue, record)
	return true
}

var (
	evmSource  = bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1}
	subDest    = bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2}
	testConfig = Config{
		SweepInterval:      types.NewDuration(time.Second),
		RetryCap:           3,
		RetryBackoff:       types.NewDuration(5 * time.Second),
		RetryBackoffMax:    types.NewDuration(time.Minute),
		InfraRetryInterval: types.NewDuration(15 * time.Second),
		DispatchTimeout:    types.NewDuration(5 * time.Minute),
		QueueSize:          8,
		SweepLimit:         100,
	}
)

func newTestRecord(nonce uint64, dest bridge.ChainRef) *bridge.RelayRecord {
	return bridge.NewRelayRecord(bridge.TransferIntent{
		Source:       evmSource,
		SourceBlock:  10,
		DepositNonce: nonce,
		Destination:  dest,
		Recipient:    make([]byte, 32),
		Amount:       big.NewInt(500),
	})
}

func newTestScheduler(t *testing.T, storage *fakeStorage) (*Scheduler, *fakeSubmitter) {
	t.Helper()
	sched := NewScheduler(storage, testConfig)
	sub := &fakeSubmitter{dest: subDest}
	sched.RegisterSubmitter(sub)
	return sched, sub
}

func TestDispatchEnqueuesOnce(t *testing.T) {
	storage := newFakeStorage()
	sched, sub := newTestScheduler(t, storage)
	record := newTestRecord(1, subDest)
	storage.add(record)

	sched.dispatch(context.Background(), record)
	sched.dispatch(context.Background(), record)

	require.Len(t, sub.queue, 1)
	assert.Equal(t, bridge.StatusSubmitted, storage.status(record.Key()))
}

func TestDispatchUnknownDestinationFails(t *testing.T) {
	storage := newFakeStorage()
	sched, sub := newTestScheduler(t, storage)
	record := newTestRecord(2, bridge.ChainRef{})
	storage.add(record)

	sched.dispatch(context.Background(), record)

	assert.Empty(t, sub.queue)
	assert.Equal(t, bridge.StatusFailed, storage.status(record.Key()))
	assert.Equal(t, bridge.FailReasonNoDestination, storage.records[record.Key()].FailReason)
}

func TestFinalizedOutcomeMarksRelayed(t *testing.T) {
	storage := newFakeStorage()
	sched, _ := newTestScheduler(t, storage)
	record := newTestRecord(3, subDest)
	storage.add(record)
	sched.dispatch(context.Background(), record)

	sched.handleOutcome(context.Background(), bridge.SubmissionOutcome{
		Key:    record.Key(),
		State:  bridge.OutcomeFinalized,
		TxHash: []byte{0xaa},
	})

	assert.Equal(t, bridge.StatusRelayed, storage.status(record.Key()))
}

func TestAlreadyProcessedMarksRelayed(t *testing.T) {
	storage := newFakeStorage()
	sched, _ := newTestScheduler(t, storage)
	record := newTestRecord(4, subDest)
	storage.add(record)
	sched.dispatch(context.Background(), record)

	sched.handleOutcome(context.Background(), bridge.SubmissionOutcome{
		Key:    record.Key(),
		State:  bridge.OutcomeRejected,
		Reason: "execution reverted: already paid out",
	})

	assert.Equal(t, bridge.StatusRelayed, storage.status(record.Key()))
}

func TestTerminalRejectionIsNotRetried(t *testing.T) {
	storage := newFakeStorage()
	sched, sub := newTestScheduler(t, storage)
	record := newTestRecord(5, subDest)
	storage.add(record)
	sched.dispatch(context.Background(), record)
	sub.queue = nil

	sched.handleOutcome(context.Background(), bridge.SubmissionOutcome{
		Key:    record.Key(),
		State:  bridge.OutcomeRejected,
		Reason: "execution reverted: unknown resource",
	})
	assert.Equal(t, bridge.StatusFailed, storage.status(record.Key()))

	sched.sweep(context.Background())
	assert.Empty(t, sub.queue)
}

func TestRetriableRejectionExhaustsBudget(t *testing.T) {
	storage := newFakeStorage()
	sched, _ := newTestScheduler(t, storage)
	record := newTestRecord(6, subDest)
	storage.add(record)
	sched.dispatch(context.Background(), record)

	reject := bridge.SubmissionOutcome{Key: record.Key(), State: bridge.OutcomeRejected, Reason: "nonce too low"}

	sched.handleOutcome(context.Background(), reject)
	assert.Equal(t, bridge.StatusSubmitted, storage.status(record.Key()))
	assert.Equal(t, 1, storage.records[record.Key()].RetryCount)
	assert.True(t, storage.records[record.Key()].NextRetryAt.After(time.Now()))

	sched.handleOutcome(context.Background(), reject)
	assert.Equal(t, 2, storage.records[record.Key()].RetryCount)

	// third attempt reaches the cap
	sched.handleOutcome(context.Background(), reject)
	assert.Equal(t, bridge.StatusFailed, storage.status(record.Key()))
	assert.Equal(t, bridge.FailReasonRetriesExhausted, storage.records[record.Key()].FailReason)
}

func TestInfraFailureKeepsRetryBudget(t *testing.T) {
	storage := newFakeStorage()
	sched, _ := newTestScheduler(t, storage)
	record := newTestRecord(7, subDest)
	storage.add(record)
	sched.dispatch(context.Background(), record)

	sched.handleOutcome(context.Background(), bridge.SubmissionOutcome{
		Key:   record.Key(),
		State: bridge.OutcomeUnknown,
		Err:   fmt.Errorf("%w: connection refused", gerror.ErrRPCUnavailable),
	})

	assert.Equal(t, bridge.StatusSubmitted, storage.status(record.Key()))
	assert.Equal(t, 0, storage.records[record.Key()].RetryCount)
	assert.True(t, storage.records[record.Key()].NextRetryAt.After(time.Now()))
}

func TestSweepRedispatchesDueRecords(t *testing.T) {
	storage := newFakeStorage()
	sched, sub := newTestScheduler(t, storage)
	pending := newTestRecord(8, subDest)
	storage.add(pending)

	overdue := newTestRecord(9, subDest)
	storage.add(overdue)
	overdue.Status = bridge.StatusSubmitted
	overdue.NextRetryAt = time.Now().Add(-time.Minute)

	sched.sweep(context.Background())

	require.Len(t, sub.queue, 2)
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	sched := NewScheduler(newFakeStorage(), testConfig)
	assert.Equal(t, 5*time.Second, sched.backoff(1))
	assert.Equal(t, 10*time.Second, sched.backoff(2))
	assert.Equal(t, 20*time.Second, sched.backoff(3))
	assert.Equal(t, time.Minute, sched.backoff(10))
}
