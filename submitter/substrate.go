package submitter

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/log"
	"github.com/omnibridge/bridge-service/metrics"
)

func parseAddress(account string) (common.Address, error) {
	if !common.IsHexAddress(account) {
		return common.Address{}, errors.New("not a hex address: " + account)
	}
	return common.HexToAddress(account), nil
}

// Substrate is the payout submitter for one substrate destination. Like the
// evm submitter it is single-threaded per destination, the account nonce is
// handed out by the shared cache.
type Substrate struct {
	chain    substrateChain
	signer   subSigner
	storage  storageInterface
	nonces   *NonceCache
	cfg      Config
	dest     bridge.ChainRef
	jobs     chan *bridge.RelayRecord
	outcomes chan<- bridge.SubmissionOutcome
}

// NewSubstrate creates the submitter for the adapter's chain.
func NewSubstrate(chain substrateChain, signer subSigner, storage storageInterface, cfg Config, outcomes chan<- bridge.SubmissionOutcome) (*Substrate, error) {
	nonces, err := NewNonceCache(func(ctx context.Context, account string) (uint64, error) {
		accountID, err := hex.DecodeString(account)
		if err != nil {
			return 0, err
		}
		return chain.AccountNonce(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return &Substrate{
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
func (s *Substrate) Destination() bridge.ChainRef {
	return s.dest
}

// Enqueue offers a record without blocking, reporting whether it was taken.
func (s *Substrate) Enqueue(record *bridge.RelayRecord) bool {
	select {
	case s.jobs <- record:
		return true
	default:
		return false
	}
}

// Run consumes the queue until the context is cancelled.
func (s *Substrate) Run(ctx context.Context) error {
	log.Infof("substrate submitter for %s started", s.dest)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("substrate submitter for %s ctx done", s.dest)
			return nil
		case record := <-s.jobs:
			s.process(ctx, record)
		}
	}
}

func (s *Substrate) process(ctx context.Context, record *bridge.RelayRecord) {
	key := record.Key()

	// re-dispatch after a restart first checks whether the last attempt is
	// still being tracked, beyond that the pallet's own deposit nonce dedup
	// is the double spend protection
	if lastHash := record.LastTxHash(); lastHash != nil {
		state, reason, err := s.chain.PollOutcome(ctx, lastHash)
		if err == nil {
			switch state {
			case bridge.OutcomeFinalized, bridge.OutcomeRejected, bridge.OutcomeAlreadyProcessed:
				// the adapter evicts a watch entry after a terminal read,
				// report straight away instead of polling it again
				s.report(bridge.SubmissionOutcome{Key: key, State: state, TxHash: lastHash, Reason: reason})
				return
			case bridge.OutcomePending:
				s.track(ctx, key, lastHash)
				return
			}
		}
	}

	publicKey := s.signer.PublicKey()
	if publicKey == nil {
		metrics.SetSubmitterUnhealthy(s.dest.String(), true)
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: gerror.ErrKeyUnavailable})
		return
	}
	metrics.SetSubmitterUnhealthy(s.dest.String(), false)

	nonce, err := s.nonces.GetNextNonce(ctx, hex.EncodeToString(publicKey))
	if err != nil {
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
		return
	}
	txHash, err := s.chain.SubmitPayOut(ctx, record.Intent, nonce, s.signer)
	if err != nil {
		// the extrinsic never entered the pool, drop the cached nonce so
		// the next attempt resyncs from the chain instead of queueing
		// behind a gap
		s.nonces.Remove(hex.EncodeToString(publicKey))
		if errors.Is(err, gerror.ErrRPCUnavailable) || errors.Is(err, gerror.ErrKeyUnavailable) {
			s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeUnknown, Err: err})
			return
		}
		s.report(bridge.SubmissionOutcome{Key: key, State: bridge.OutcomeRejected, Reason: err.Error()})
		return
	}
	log.Infof("relay %s: payout extrinsic sent on %s as %x, nonce %d", key, s.dest, txHash, nonce)

	if err := s.storage.AddRelayTxHash(ctx, key, txHash); err != nil {
		log.Errorf("relay %s: error persisting attempt hash %x: %v", key, txHash, err)
	}
	s.track(ctx, key, txHash)
}

// track polls one submitted extrinsic until it settles or the outcome
// timeout passes.
func (s *Substrate) track(ctx context.Context, key bridge.RecordKey, txHash []byte) {
	deadline := time.Now().Add(s.cfg.OutcomeTimeout.Duration)
	var lastErr error
	for {
		state, reason, err := s.chain.PollOutcome(ctx, txHash)
		if err != nil {
			lastErr = err
			log.Warnf("relay %s: error polling extrinsic %x: %v", key, txHash, err)
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

func (s *Substrate) report(outcome bridge.SubmissionOutcome) {
	s.outcomes <- outcome
}
