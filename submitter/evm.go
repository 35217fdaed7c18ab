package submitter

import (
	"context"
	"errors"
	"time"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
)

// EVM is the payout submitter for one evm destination. A single goroutine
// consumes the queue, so payouts to the same destination are serialized and
// nonce assignment cannot race.
type EVM struct {
	chain    evmChain
	signer   evmSigner
	storage  storageInterface
	nonces   *NonceCache
	cfg      Config
	dest     bridge.ChainRef
	jobs     chan *bridge.RelayRecord
	outcomes chan<- bridge.SubmissionOutcome
}

// NewEVM creates the submitter for the adapter's chain.
func NewEVM(chain evmChain, signer evmSigner, storage storageInterface, cfg Config, outcomes chan<- bridge.SubmissionOutcome) (*EVM, error) {
	nonces, err := NewNonceCache(func(ctx context.Context, account string) (uint64, error) {
		addr, err := parseAddress(account)
		if err != nil {
			return 0, err
		}
		return chain.AccountNonce(ctx, addr)
	})
	if err != nil {
		return nil, err
	}
	return &EVM{
		chain:    chain,
		signer:   signer,
		storage:  storage,
		nonces:   nonces,
		cfg:      cfg,
		dest:     chain.ChainRef(),
		jobs:     make(chan *bridge.RelayRecord, cfg.QueueSize),
		outcomes: outcomes,
	}, nil
}

// Destination returns the chain this submitter pays out on.
func (s *EVM) Destination() bridge.ChainRef {
	return s.dest
}

// Enqueue offers a record without blocking, reporting whether it was taken.
func (s *EVM) Enqueue(record *bridge.RelayRecord) bool {
	select {
	case s.jobs <- record:
		return true
	default:
		return false
	}
}

// Run consumes the queue until the context is cancelled.
func (s *EVM) Run(ctx context.Context) error {
	log.Infof("evm submitter for %s started", s.dest)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("evm submitter for %s ctx done", s.dest)
			return nil
		case record := <-s.jobs:
			s.process(ctx, record)
		}
	}
}

func (s *EVM) process(ctx context.Context, record *bridge.RelayRecord) {
	key := record.Key()

	// a previous attempt may already sit on chain, paying again would
	// double spend
	for _, txHash := range record.TxHashes {
		mined, successful, err := s.chain.CheckTxWasMined(ctx, txHash)
		if err != nil {
			s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, TxHash: txHash, Err: err})
			return
		}
		if mined && successful {
			log.Infof("relay %s: earlier attempt %x is already mined, tracking it", key, txHash)
			s.track(ctx, key, txHash)
			return
		}
	}

	from, err := s.signer.Address()
	if err != nil {
		if errors.Is(err, gerror.ErrKeyUnavailable) {
			metrics.SetSubmitterUnhealthy(s.dest.String(), true)
		}
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
		return
	}
	metrics.SetSubmitterUnhealthy(s.dest.String(), false)

	nonce, err := s.nonces.GetNextNonce(ctx, from.Hex())
	if err != nil {
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
		return
	}
	tx, err := s.chain.BuildPayOut(ctx, record.Intent, from, nonce)
	if err != nil {
		// nothing was broadcast for the allocated nonce, drop the cached
		// value so the next attempt resyncs from the chain and does not
		// queue behind a gap
		s.nonces.Remove(from.Hex())
		if errors.Is(err, gerror.ErrRPCUnavailable) {
			s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
			return
		}
		// the node refused to even estimate, this payout cannot work as is
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeRejected, Reason: err.Error()})
		return
	}
	signedTx, err := s.signer.SignTx(tx)
	if err != nil {
		s.nonces.Remove(from.Hex())
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
		return
	}
	txHash, err := s.chain.Submit(ctx, signedTx)
	if err != nil {
		// the attempt may or may not have reached the pool, the cache view
		// is no longer trustworthy either way
		s.nonces.Remove(from.Hex())
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeRejected, Reason: err.Error()})
		return
	}
	log.Infof("relay %s: payout sent on %s as %x, nonce %d", key, s.dest, txHash, nonce)

	// persist the hash before waiting, a crash here must not forget what
	// was broadcast
	if err := s.storage.AddRelayTxHash(ctx, key, txHash); err != nil {
		log.Errorf("relay %s: error persisting attempt hash %x: %v", key, txHash, err)
	}
	s.track(ctx, key, txHash)
}

// track polls one broadcast attempt until it settles or the outcome timeout
// passes.
func (s *EVM) track(ctx context.Context, key bridge.RecordKey, txHash []byte) {
	deadline := time.Now().Add(s.cfg.OutcomeTimeout.Duration)
	var lastErr error
	for {
		state, reason, err := s.chain.PollOutcome(ctx, txHash)
		if err != nil {
			lastErr = err
			log.Warnf("relay %s: error polling attempt %x: %v", key, txHash, err)
		} else {
			switch state {
			case bridge.OutcomeFinalized, bridge.OutcomeRejected, bridge.OutcomeAlreadyProcessed:
				s.report(bridge.SubmissionOutcome{Key: key, State: state, TxHash: txHash, Reason: reason})
				return
			}
		}
		if time.Now().After(deadline) {
			s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, TxHash: txHash, Reason: "outcome timeout", Err: lastErr})
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.OutcomePollInterval.Duration):
		}
	}
}

func (s *EVM) report(outcome bridge.SubmissionOutcome) {
	s.outcomes <- outcome
}
