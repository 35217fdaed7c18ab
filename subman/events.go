package subman

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// PaidInEvent mirrors the OmniBridge pallet's PaidIn event layout.
type PaidInEvent struct {
	Phase      types.Phase
	Nonce      types.U64
	Amount     types.U128
	ResourceID [32]byte
	DestChain  types.U32
	Recipient  []byte
	Topics     []types.Hash
}

// PaidOutEvent mirrors the OmniBridge pallet's PaidOut event layout.
type PaidOutEvent struct {
	Phase       types.Phase
	SourceChain types.U32
	Nonce       types.U64
	Amount      types.U128
	Recipient   types.AccountID
	Topics      []types.Hash
}

// bridgeEvents extends the standard runtime event set with the OmniBridge
// pallet events so DecodeEventRecords can route them by name.
type bridgeEvents struct {
	types.EventRecords
	OmniBridge_PaidIn  []PaidInEvent  //nolint:revive,stylecheck
	OmniBridge_PaidOut []PaidOutEvent //nolint:revive,stylecheck
}
