package bridge

import "time"

// OutcomeState is the submitter's verdict on one payout attempt.
type OutcomeState string

const (
	// OutcomeFinalized means the payout is irreversible on the destination.
	OutcomeFinalized = OutcomeState("finalized")
	// OutcomeRejected means the destination refused the payout. The reason
	// string decides whether the rejection is terminal or retriable.
	OutcomeRejected = OutcomeState("rejected")
	// OutcomeAlreadyProcessed means the destination reports the deposit
	// nonce as already paid out, by this process or another attempt.
	OutcomeAlreadyProcessed = OutcomeState("already_processed")
	// OutcomePending means the attempt is broadcast but not yet buried deep
	// enough to call. Submitters keep polling, the scheduler never sees it.
	OutcomePending = OutcomeState("pending")
	// OutcomeUnknown means the attempt could not be confirmed or denied
	// before the submit timeout. The record stays Submitted and the attempt
	// hash is checked again before any re-dispatch.
	OutcomeUnknown = OutcomeState("unknown")
)

// SubmissionOutcome is what a submitter reports back to the scheduler for
// one dispatched record.
type SubmissionOutcome struct {
	Key    RecordKey
	State  OutcomeState
	TxHash []byte
	Reason string
	// Err carries infrastructure errors (rpc unreachable, key missing)
	// that say nothing about the payout itself.
	Err error
}

// ScanCursor is the durable per-chain scan position.
type ScanCursor struct {
	Chain     ChainRef
	BlockNum  uint64
	UpdatedAt time.Time
}
