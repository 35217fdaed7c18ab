package submitter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/omnibridge/bridge-service/subman"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubChain struct {
	ref        bridge.ChainRef
	nonce      uint64
	submitErr  error
	submitted  int
	lastNonce  uint64
	pollStates map[string]bridge.OutcomeState
	pollState  bridge.OutcomeState
	pollReason string
}

func (f *fakeSubChain) ChainRef() bridge.ChainRef { return f.ref }

func (f *fakeSubChain) SubmitPayOut(ctx context.Context, intent bridge.TransferIntent, nonce uint64, signer subman.ExtrinsicSigner) ([]byte, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted++
	f.lastNonce = nonce
	return []byte{0x01, 0x02, byte(nonce)}, nil
}

func (f *fakeSubChain) PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error) {
	if state, ok := f.pollStates[string(txHash)]; ok {
		return state, "", nil
	}
	return f.pollState, f.pollReason, nil
}

func (f *fakeSubChain) AccountNonce(ctx context.Context, accountID []byte) (uint64, error) {
	return f.nonce, nil
}

type fakeSubSigner struct {
	pub []byte
}

func (f *fakeSubSigner) SignExtrinsic(ext *gsrpctypes.Extrinsic, opts gsrpctypes.SignatureOptions) error {
	return nil
}

func (f *fakeSubSigner) PublicKey() []byte { return f.pub }

func (f *fakeSubSigner) Healthy() bool { return f.pub != nil }

func newSubRecord(nonce uint64) *bridge.RelayRecord {
	return bridge.NewRelayRecord(bridge.TransferIntent{
		Source:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		DepositNonce: nonce,
		Destination:  bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		Recipient:    make([]byte, 32),
		Amount:       big.NewInt(777),
	})
}

func newTestSubSubmitter(t *testing.T, chain *fakeSubChain, signer *fakeSubSigner) (*Substrate, chan bridge.SubmissionOutcome) {
	t.Helper()
	outcomes := make(chan bridge.SubmissionOutcome, 4)
	sub, err := NewSubstrate(chain, signer, newFakeHashStore(), submitterConfig, outcomes)
	require.NoError(t, err)
	return sub, outcomes
}

func TestSubstrateProcessFinalizes(t *testing.T) {
	chain := &fakeSubChain{
		ref:       bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		pollState: bridge.OutcomeFinalized,
	}
	sub, outcomes := newTestSubSubmitter(t, chain, &fakeSubSigner{pub: make([]byte, 32)})

	sub.process(context.Background(), newSubRecord(1))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, 1, chain.submitted)
}

func TestSubstrateProcessSeedUnavailable(t *testing.T) {
	chain := &fakeSubChain{ref: bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2}}
	sub, outcomes := newTestSubSubmitter(t, chain, &fakeSubSigner{})

	sub.process(context.Background(), newSubRecord(2))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeUnknown, outcome.State)
	assert.True(t, errors.Is(outcome.Err, gerror.ErrKeyUnavailable))
	assert.Zero(t, chain.submitted)
}

func TestSubstrateProcessRejection(t *testing.T) {
	chain := &fakeSubChain{
		ref:       bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		submitErr: errors.New("Invalid Transaction: BadOrigin"),
	}
	sub, outcomes := newTestSubSubmitter(t, chain, &fakeSubSigner{pub: make([]byte, 32)})

	sub.process(context.Background(), newSubRecord(3))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeRejected, outcome.State)
	assert.Contains(t, outcome.Reason, "BadOrigin")
}

func TestSubstrateProcessSubmitFailureResyncsNonce(t *testing.T) {
	chain := &fakeSubChain{
		ref:       bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		submitErr: errors.New("Priority is too low"),
		pollState: bridge.OutcomeFinalized,
	}
	sub, outcomes := newTestSubSubmitter(t, chain, &fakeSubSigner{pub: make([]byte, 32)})

	sub.process(context.Background(), newSubRecord(5))
	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeRejected, outcome.State)

	// the refused extrinsic never entered the pool, the next payout must
	// pick up the account nonce again instead of sitting behind a gap
	chain.submitErr = nil
	sub.process(context.Background(), newSubRecord(6))
	outcome = <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, chain.nonce, chain.lastNonce)
}

func TestSubstrateProcessTracksEarlierAttempt(t *testing.T) {
	oldHash := []byte{0xca, 0xfe}
	chain := &fakeSubChain{
		ref:        bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		pollStates: map[string]bridge.OutcomeState{string(oldHash): bridge.OutcomeFinalized},
		pollState:  bridge.OutcomeRejected,
	}
	sub, outcomes := newTestSubSubmitter(t, chain, &fakeSubSigner{pub: make([]byte, 32)})
	record := newSubRecord(4)
	record.TxHashes = [][]byte{oldHash}

	sub.process(context.Background(), record)

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, oldHash, outcome.TxHash)
	assert.Zero(t, chain.submitted)
}
