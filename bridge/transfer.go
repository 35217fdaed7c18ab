package bridge

import (
	"fmt"
	"math/big"
)

// TransferIntent is the chain-agnostic shape of a deposit observed on a
// source chain. Adapters decode their native event formats into this type at
// the boundary; nothing downstream branches on the source family.
type TransferIntent struct {
	// Source is the chain the deposit was observed on.
	Source ChainRef

	// SourceBlock is the height the deposit event was included at.
	SourceBlock uint64

	// SourceTxIndex orders events inside one block.
	SourceTxIndex uint

	// DepositNonce is the source contract's strictly increasing deposit
	// counter. (Source, DepositNonce) is the transfer identity.
	DepositNonce uint64

	// Destination is the chain the funds must be paid out on. A zero ref
	// means the deposit named a chain id outside the configured topology.
	Destination ChainRef

	// Recipient is the raw destination address bytes, 20 for evm targets
	// and 32 for substrate targets.
	Recipient []byte

	// Amount in the asset's smallest unit.
	Amount *big.Int

	// ResourceID names the bridged asset on both sides.
	ResourceID [32]byte
}

// Key returns the dedup identity of the transfer.
func (t *TransferIntent) Key() RecordKey {
	return RecordKey{Source: t.Source, DepositNonce: t.DepositNonce}
}

// RecordKey is the primary key of a relay record: the source chain plus the
// deposit nonce assigned by the source bridge contract.
type RecordKey struct {
	Source       ChainRef
	DepositNonce uint64
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%d", k.Source, k.DepositNonce)
}
