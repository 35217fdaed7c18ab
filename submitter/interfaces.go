package submitter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/subman"
)

// evmChain is the slice of the evm adapter the submitter needs.
type evmChain interface {
	ChainRef() bridge.ChainRef
	BuildPayOut(ctx context.Context, intent bridge.TransferIntent, from common.Address, nonce uint64) (*coretypes.Transaction, error)
	Submit(ctx context.Context, tx *coretypes.Transaction) ([]byte, error)
	PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error)
	CheckTxWasMined(ctx context.Context, txHash []byte) (bool, bool, error)
	AccountNonce(ctx context.Context, account common.Address) (uint64, error)
}

// evmSigner is the slice of the evm signer the submitter needs.
type evmSigner interface {
	Address() (common.Address, error)
	SignTx(tx *coretypes.Transaction) (*coretypes.Transaction, error)
	Healthy() bool
}

// substrateChain is the slice of the substrate adapter the submitter needs.
type substrateChain interface {
	ChainRef() bridge.ChainRef
	SubmitPayOut(ctx context.Context, intent bridge.TransferIntent, nonce uint64, signer subman.ExtrinsicSigner) ([]byte, error)
	PollOutcome(ctx context.Context, txHash []byte) (bridge.OutcomeState, string, error)
	AccountNonce(ctx context.Context, accountID []byte) (uint64, error)
}

// subSigner is the slice of the substrate signer the submitter needs.
type subSigner interface {
	subman.ExtrinsicSigner
	Healthy() bool
}

// storageInterface is the narrow durable surface used while an attempt is in
// flight, the hash goes to disk before the outcome is known.
type storageInterface interface {
	AddRelayTxHash(ctx context.Context, key bridge.RecordKey, txHash []byte) error
}
