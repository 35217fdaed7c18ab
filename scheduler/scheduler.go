package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
)

// Scheduler owns every relay record transition after creation. It receives
// fresh intents from the watchers, fans records out to per-destination
// submitters and folds their outcomes back into storage. A periodic sweep
// re-dispatches anything the channels missed, so losing an in-memory signal
// only ever costs latency.
type Scheduler struct {
	storage    storageInterface
	cfg        Config
	submitters map[bridge.ChainRef]submitterInterface
	intents    chan bridge.TransferIntent
	outcomes   chan bridge.SubmissionOutcome
	inflight   map[bridge.RecordKey]struct{}
}

// NewScheduler creates the scheduler and its channels.
func NewScheduler(storage storageInterface, cfg Config) *Scheduler {
	return &Scheduler{
		storage:    storage,
		cfg:        cfg,
		submitters: make(map[bridge.ChainRef]submitterInterface),
		intents:    make(chan bridge.TransferIntent, cfg.QueueSize),
		outcomes:   make(chan bridge.SubmissionOutcome, cfg.QueueSize),
		inflight:   make(map[bridge.RecordKey]struct{}),
	}
}

// RegisterSubmitter attaches a destination submitter. Must be called before
// Run, registration is not synchronized.
func (s *Scheduler) RegisterSubmitter(sub submitterInterface) {
	s.submitters[sub.Destination()] = sub
}

// Intents returns the channel watchers push freshly recorded deposits to.
func (s *Scheduler) Intents() chan<- bridge.TransferIntent {
	return s.intents
}

// Outcomes returns the channel submitters report attempt results to.
func (s *Scheduler) Outcomes() chan<- bridge.SubmissionOutcome {
	return s.outcomes
}

// Run drives the scheduler until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Infof("relay scheduler started, %d destinations", len(s.submitters))
	ticker := time.NewTicker(s.cfg.SweepInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("scheduler ctx done")
			return nil
		case intent := <-s.intents:
			s.dispatchKey(ctx, intent.Key())
		case outcome := <-s.outcomes:
			s.handleOutcome(ctx, outcome)
		case <-ticker.C:
			s.sweep(ctx)
			s.publishRecordCounts(ctx)
		}
	}
}

func (s *Scheduler) dispatchKey(ctx context.Context, key bridge.RecordKey) {
	record, err := s.storage.GetRelayRecord(ctx, key)
	if err != nil {
		log.Errorf("error loading relay record %s: %v", key, err)
		return
	}
	s.dispatch(ctx, record)
}

// dispatch hands one record to its destination submitter. The record is
// marked Submitted with a re-dispatch deadline first, so a crash after
// enqueueing cannot lose it.
func (s *Scheduler) dispatch(ctx context.Context, record *bridge.RelayRecord) {
	key := record.Key()
	if record.IsTerminal() {
		return
	}
	if _, ok := s.inflight[key]; ok {
		return
	}
	sub, ok := s.submitters[record.Intent.Destination]
	if !ok {
		log.Errorf("relay %s: no submitter for destination %s", key, record.Intent.Destination)
		s.markFailed(ctx, key, bridge.FailReasonNoDestination)
		return
	}
	err := s.storage.MarkDispatched(ctx, key, time.Now().Add(s.cfg.DispatchTimeout.Duration))
	if err != nil {
		if !errors.Is(err, gerror.ErrTerminalRecord) {
			log.Errorf("relay %s: error marking dispatched: %v", key, err)
		}
		return
	}
	if sub.Enqueue(record) {
		s.inflight[key] = struct{}{}
	} else {
		log.Debugf("relay %s: submitter queue for %s is full, waiting for the sweep", key, record.Intent.Destination)
	}
}

func (s *Scheduler) handleOutcome(ctx context.Context, outcome bridge.SubmissionOutcome) {
	key := outcome.Key
	delete(s.inflight, key)

	record, err := s.storage.GetRelayRecord(ctx, key)
	if err != nil {
		log.Errorf("error loading relay record %s after outcome: %v", key, err)
		return
	}
	if record.IsTerminal() {
		return
	}
	dest := record.Intent.Destination.String()

	switch outcome.State {
	case bridge.OutcomeFinalized:
		s.markRelayed(ctx, record, dest)
	case bridge.OutcomeAlreadyProcessed:
		log.Infof("relay %s: destination reports deposit already paid out", key)
		s.markRelayed(ctx, record, dest)
	case bridge.OutcomeRejected, bridge.OutcomeUnknown:
		s.handleFailure(ctx, record, outcome, dest)
	default:
		log.Errorf("relay %s: unexpected outcome state %q", key, outcome.State)
	}
}

func (s *Scheduler) handleFailure(ctx context.Context, record *bridge.RelayRecord, outcome bridge.SubmissionOutcome, dest string) {
	key := record.Key()
	class := Classify(outcome)
	log.Infof("relay %s: attempt did not finalize, state %s, class %s, reason %q, err %v",
		key, outcome.State, class, outcome.Reason, outcome.Err)

	switch class {
	case ClassAlreadyProcessed:
		s.markRelayed(ctx, record, dest)
	case ClassTerminal:
		reason := bridge.FailReasonTerminalRejection
		if outcome.Reason != "" {
			reason = outcome.Reason
		}
		s.markFailed(ctx, key, reason)
		metrics.RecordRelayOutcome(dest, "failed")
	case ClassInfra:
		// not the payout's fault, retry later without burning budget
		err := s.storage.ScheduleRetry(ctx, key, record.RetryCount, time.Now().Add(s.cfg.InfraRetryInterval.Duration))
		if err != nil && !errors.Is(err, gerror.ErrTerminalRecord) {
			log.Errorf("relay %s: error scheduling infra retry: %v", key, err)
		}
		metrics.RecordRelayOutcome(dest, "infra_retry")
	default:
		retries := record.RetryCount + 1
		if retries >= s.cfg.RetryCap {
			log.Warnf("relay %s: retry budget of %d exhausted", key, s.cfg.RetryCap)
			s.markFailed(ctx, key, bridge.FailReasonRetriesExhausted)
			metrics.RecordRelayOutcome(dest, "failed")
			return
		}
		err := s.storage.ScheduleRetry(ctx, key, retries, time.Now().Add(s.backoff(retries)))
		if err != nil && !errors.Is(err, gerror.ErrTerminalRecord) {
			log.Errorf("relay %s: error scheduling retry %d: %v", key, retries, err)
		}
		metrics.RecordRelayOutcome(dest, "retry")
	}
}

// backoff returns the exponential delay before retry number n.
func (s *Scheduler) backoff(n int) time.Duration {
	d := s.cfg.RetryBackoff.Duration
	for i := 1; i < n; i++ {
		d *= 2
		if d >= s.cfg.RetryBackoffMax.Duration {
			return s.cfg.RetryBackoffMax.Duration
		}
	}
	if d > s.cfg.RetryBackoffMax.Duration {
		d = s.cfg.RetryBackoffMax.Duration
	}
	return d
}

func (s *Scheduler) markRelayed(ctx context.Context, record *bridge.RelayRecord, dest string) {
	key := record.Key()
	err := s.storage.SetRelayStatus(ctx, key, bridge.StatusRelayed, "")
	if err != nil {
		if !errors.Is(err, gerror.ErrTerminalRecord) {
			log.Errorf("relay %s: error marking relayed: %v", key, err)
		}
		return
	}
	log.Infof("relay %s: payout finalized on %s", key, dest)
	metrics.RecordRelayOutcome(dest, "relayed")
	if !record.CreatedAt.IsZero() {
		metrics.RecordRelayDuration(dest, time.Since(record.CreatedAt))
	}
}

func (s *Scheduler) markFailed(ctx context.Context, key bridge.RecordKey, reason string) {
	err := s.storage.SetRelayStatus(ctx, key, bridge.StatusFailed, reason)
	if err != nil && !errors.Is(err, gerror.ErrTerminalRecord) {
		log.Errorf("relay %s: error marking failed: %v", key, err)
		return
	}
	log.Warnf("relay %s: failed permanently: %s", key, reason)
}

// sweep re-dispatches pending records and submitted records past their
// retry time. This is the path that recovers work after a restart.
func (s *Scheduler) sweep(ctx context.Context) {
	records, err := s.storage.GetDispatchableRecords(ctx, time.Now(), s.cfg.SweepLimit)
	if err != nil {
		log.Errorf("error sweeping dispatchable records: %v", err)
		return
	}
	for _, record := range records {
		s.dispatch(ctx, record)
	}
}

func (s *Scheduler) publishRecordCounts(ctx context.Context) {
	counts, err := s.storage.CountRelayRecordsByStatus(ctx)
	if err != nil {
		log.Errorf("error counting relay records: %v", err)
		return
	}
	for _, status := range []bridge.RelayStatus{bridge.StatusPending, bridge.StatusSubmitted, bridge.StatusRelayed, bridge.StatusFailed} {
		metrics.SetRelayRecordCount(string(status), counts[status])
	}
}
