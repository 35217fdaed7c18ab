package submitter

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/config/types"
	"github.com/omnibridge/bridge-service/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFrom = common.HexToAddress("0x1111111111111111111111111111111111111111")

type fakeEVMChain struct {
	ref        bridge.ChainRef
	nonce      uint64
	buildErr   error
	submitErr  error
	submitted  int
	lastNonce  uint64
	minedOK    map[string]bool
	pollState  bridge.OutcomeState
	pollReason string
}

func (f *fakeEVMChain) ChainRef() bridge.ChainRef { return f.ref }

func (f *fakeEVMChain) BuildPayOut(ctx context.Context, intent bridge.TransferIntent, from common.Address, nonce uint64) (*coretypes.Transaction, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &testFrom,
	}), nil
}

func (f *fakeEVMChain) Submit(ctx context.Context, tx *coretypes.Transaction) ([]byte, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted++
	f.lastNonce = tx.Nonce()
	return tx.Hash().Bytes(), nil
}

func (f *fakeEVMChain) PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error) {
	return f.pollState, f.pollReason, nil
}

func (f *fakeEVMChain) CheckTxWasMined(ctx context.Context, txHash []byte) (bool, bool, error) {
	ok, mined := f.minedOK[hex.EncodeToString(txHash)]
	return mined, ok, nil
}

func (f *fakeEVMChain) AccountNonce(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

type fakeEVMSigner struct {
	addrErr error
	signErr error
}

func (f *fakeEVMSigner) Address() (common.Address, error) {
	if f.addrErr != nil {
		return common.Address{}, f.addrErr
	}
	return testFrom, nil
}

func (f *fakeEVMSigner) SignTx(tx *coretypes.Transaction) (*coretypes.Transaction, error) {
	if f.signErr != nil {
		return nil, f.signErr
	}
	return tx, nil
}

func (f *fakeEVMSigner) Healthy() bool { return f.addrErr == nil }

type fakeHashStore struct {
	mu     sync.Mutex
	hashes map[string][][]byte
}

func newFakeHashStore() *fakeHashStore {
	return &fakeHashStore{hashes: make(map[string][][]byte)}
}

func (f *fakeHashStore) AddRelayTxHash(ctx context.Context, key bridge.RecordKey, txHash []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[key.String()] = append(f.hashes[key.String()], txHash)
	return nil
}

var submitterConfig = Config{
	QueueSize:           4,
	OutcomePollInterval: types.NewDuration(time.Millisecond),
	OutcomeTimeout:      types.NewDuration(50 * time.Millisecond),
}

func newEVMRecord(nonce uint64) *bridge.RelayRecord {
	return bridge.NewRelayRecord(bridge.TransferIntent{
		Source:       bridge.ChainRef{Family: bridge.FamilySubstrate, ChainID: 2},
		DepositNonce: nonce,
		Destination:  bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		Recipient:    testFrom.Bytes(),
		Amount:       big.NewInt(1000),
	})
}

func newTestEVMSubmitter(t *testing.T, chain *fakeEVMChain, signer *fakeEVMSigner, storage *fakeHashStore) (*EVM, chan bridge.SubmissionOutcome) {
	t.Helper()
	outcomes := make(chan bridge.SubmissionOutcome, 4)
	sub, err := NewEVM(chain, signer, storage, submitterConfig, outcomes)
	require.NoError(t, err)
	return sub, outcomes
}

func TestEVMProcessFinalizes(t *testing.T) {
	chain := &fakeEVMChain{
		ref:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		pollState: bridge.OutcomeFinalized,
	}
	storage := newFakeHashStore()
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, storage)
	record := newEVMRecord(1)

	sub.process(context.Background(), record)

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, record.Key(), outcome.Key)
	assert.NotEmpty(t, outcome.TxHash)
	assert.Equal(t, 1, chain.submitted)
	// the attempt hash must be durable before the outcome is decided
	assert.Len(t, storage.hashes[record.Key().String()], 1)
}

func TestEVMProcessKeyUnavailable(t *testing.T) {
	chain := &fakeEVMChain{ref: bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1}}
	signer := &fakeEVMSigner{addrErr: fmt.Errorf("%w: no keystore", gerror.ErrKeyUnavailable)}
	sub, outcomes := newTestEVMSubmitter(t, chain, signer, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(2))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeUnknown, outcome.State)
	assert.True(t, errors.Is(outcome.Err, gerror.ErrKeyUnavailable))
	assert.Zero(t, chain.submitted)
}

func TestEVMProcessEstimationRevertRejects(t *testing.T) {
	chain := &fakeEVMChain{
		ref:      bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		buildErr: errors.New("execution reverted: unknown resource"),
	}
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(3))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeRejected, outcome.State)
	assert.Contains(t, outcome.Reason, "execution reverted")
	assert.Zero(t, chain.submitted)
}

func TestEVMProcessRPCDownIsUnknown(t *testing.T) {
	chain := &fakeEVMChain{
		ref:      bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		buildErr: fmt.Errorf("%w: connection refused", gerror.ErrRPCUnavailable),
	}
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(4))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeUnknown, outcome.State)
	assert.True(t, errors.Is(outcome.Err, gerror.ErrRPCUnavailable))
}

func TestEVMProcessTracksMinedHistoryWithoutResending(t *testing.T) {
	oldHash := []byte{0xde, 0xad, 0xbe, 0xef}
	chain := &fakeEVMChain{
		ref:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		minedOK:   map[string]bool{hex.EncodeToString(oldHash): true},
		pollState: bridge.OutcomeFinalized,
	}
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())
	record := newEVMRecord(5)
	record.TxHashes = [][]byte{oldHash}

	sub.process(context.Background(), record)

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, oldHash, outcome.TxHash)
	assert.Zero(t, chain.submitted)
}

func TestEVMProcessSubmitRejection(t *testing.T) {
	chain := &fakeEVMChain{
		ref:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		submitErr: errors.New("nonce too low"),
	}
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(6))

	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeRejected, outcome.State)
	assert.Equal(t, "nonce too low", outcome.Reason)
}

func TestEVMProcessSignFailureResyncsNonce(t *testing.T) {
	chain := &fakeEVMChain{
		ref:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		pollState: bridge.OutcomeFinalized,
	}
	signer := &fakeEVMSigner{signErr: errors.New("keystore locked")}
	sub, outcomes := newTestEVMSubmitter(t, chain, signer, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(7))
	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeUnknown, outcome.State)
	assert.Zero(t, chain.submitted)

	// nothing was broadcast for the allocated nonce, the next payout must
	// pick up the chain nonce again instead of sitting behind a gap
	signer.signErr = nil
	sub.process(context.Background(), newEVMRecord(8))
	outcome = <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, chain.nonce, chain.lastNonce)
}

func TestEVMProcessBuildFailureResyncsNonce(t *testing.T) {
	chain := &fakeEVMChain{
		ref:       bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1},
		buildErr:  errors.New("execution reverted: unknown resource"),
		pollState: bridge.OutcomeFinalized,
	}
	sub, outcomes := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())

	sub.process(context.Background(), newEVMRecord(9))
	outcome := <-outcomes
	assert.Equal(t, bridge.OutcomeRejected, outcome.State)

	chain.buildErr = nil
	sub.process(context.Background(), newEVMRecord(10))
	outcome = <-outcomes
	assert.Equal(t, bridge.OutcomeFinalized, outcome.State)
	assert.Equal(t, chain.nonce, chain.lastNonce)
}

func TestEVMEnqueueRejectsWhenFull(t *testing.T) {
	chain := &fakeEVMChain{ref: bridge.ChainRef{Family: bridge.FamilyEVM, ChainID: 1}}
	sub, _ := newTestEVMSubmitter(t, chain, &fakeEVMSigner{}, newFakeHashStore())

	for i := 0; i < submitterConfig.QueueSize; i++ {
		require.True(t, sub.Enqueue(newEVMRecord(uint64(i))))
	}
	assert.False(t, sub.Enqueue(newEVMRecord(99)))
}
