package bridge

import (
	"math/big"
	"testing"

	"github.com/omnibridge/bridge-service/gerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIntent() TransferIntent {
	return TransferIntent{
		Source:       ChainRef{Family: FamilyEVM, ChainID: 1},
		SourceBlock:  100,
		DepositNonce: 7,
		Destination:  ChainRef{Family: FamilySubstrate, ChainID: 2},
		Recipient:    make([]byte, 32),
		Amount:       big.NewInt(1000),
	}
}

func TestRecordKeyIdentity(t *testing.T) {
	intent := newTestIntent()
	record := NewRelayRecord(intent)
	assert.Equal(t, RecordKey{Source: intent.Source, DepositNonce: 7}, record.Key())
	assert.Equal(t, "evm:1/7", record.Key().String())
}

func TestStatusTransitions(t *testing.T) {
	record := NewRelayRecord(newTestIntent())
	assert.Equal(t, StatusPending, record.Status)
	assert.False(t, record.IsTerminal())

	require.NoError(t, record.SetStatus(StatusSubmitted, ""))
	require.NoError(t, record.SetStatus(StatusRelayed, ""))
	assert.True(t, record.IsTerminal())

	err := record.SetStatus(StatusFailed, "too late")
	assert.ErrorIs(t, err, gerror.ErrTerminalRecord)
	assert.Equal(t, StatusRelayed, record.Status)
	assert.Empty(t, record.FailReason)
}

func TestFailedIsTerminal(t *testing.T) {
	record := NewRelayRecord(newTestIntent())
	require.NoError(t, record.SetStatus(StatusFailed, FailReasonRetriesExhausted))
	assert.True(t, record.IsTerminal())
	assert.ErrorIs(t, record.SetStatus(StatusPending, ""), gerror.ErrTerminalRecord)
}

func TestAddTxHashDedup(t *testing.T) {
	record := NewRelayRecord(newTestIntent())
	assert.Nil(t, record.LastTxHash())

	record.AddTxHash([]byte{1, 2})
	record.AddTxHash([]byte{3, 4})
	record.AddTxHash([]byte{1, 2})
	assert.Len(t, record.TxHashes, 2)
	assert.Equal(t, []byte{3, 4}, record.LastTxHash())
}

func TestChainSetResolve(t *testing.T) {
	set := NewChainSet(
		ChainRef{Family: FamilyEVM, ChainID: 1},
		ChainRef{Family: FamilySubstrate, ChainID: 2},
	)
	assert.Equal(t, ChainRef{Family: FamilySubstrate, ChainID: 2}, set.Resolve(2))
	assert.True(t, set.Resolve(99).IsZero())
}
