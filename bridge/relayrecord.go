package bridge

import (
	"bytes"
	"time"

	"github.com/omnibridge/bridge-service/gerror"
)

// RelayStatus is the lifecycle state of a relay record.
type RelayStatus string

const (
	// StatusPending means the deposit is recorded but no submission was
	// dispatched yet.
	StatusPending = RelayStatus("pending")
	// StatusSubmitted means at least one payout attempt is in flight or
	// awaiting retry.
	StatusSubmitted = RelayStatus("submitted")
	// StatusRelayed means the payout finalized on the destination. Terminal.
	StatusRelayed = RelayStatus("relayed")
	// StatusFailed means the relay was abandoned. Terminal.
	StatusFailed = RelayStatus("failed")
)

// FailReason values recorded on StatusFailed rows.
const (
	FailReasonRetriesExhausted   = "retries exhausted"
	FailReasonNoDestination      = "unknown destination chain"
	FailReasonTerminalRejection  = "terminal rejection"
	FailReasonRecipientMalformed = "malformed recipient"
)

// RelayRecord is the durable per-transfer state machine row. One record per
// (source chain, deposit nonce), created by the watcher, advanced by the
// scheduler, never deleted.
type RelayRecord struct {
	Intent      TransferIntent
	Status      RelayStatus
	TxHashes    [][]byte
	RetryCount  int
	NextRetryAt time.Time
	FailReason  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRelayRecord builds a fresh pending record for an observed deposit.
func NewRelayRecord(intent TransferIntent) *RelayRecord {
	return &RelayRecord{
		Intent: intent,
		Status: StatusPending,
	}
}

// Key returns the record's dedup identity.
func (r *RelayRecord) Key() RecordKey {
	return r.Intent.Key()
}

// IsTerminal reports whether the record reached a final state. Terminal
// records never transition again.
func (r *RelayRecord) IsTerminal() bool {
	return r.Status == StatusRelayed || r.Status == StatusFailed
}

// SetStatus transitions the record, refusing to touch terminal rows.
func (r *RelayRecord) SetStatus(status RelayStatus, failReason string) error {
	if r.IsTerminal() {
		return gerror.ErrTerminalRecord
	}
	r.Status = status
	r.FailReason = failReason
	return nil
}

// AddTxHash appends an attempt hash to the record history. Duplicates are
// ignored so a re-polled attempt does not grow the history.
func (r *RelayRecord) AddTxHash(hash []byte) {
	for _, h := range r.TxHashes {
		if bytes.Equal(h, hash) {
			return
		}
	}
	r.TxHashes = append(r.TxHashes, hash)
}

// LastTxHash returns the most recent attempt hash, or nil.
func (r *RelayRecord) LastTxHash() []byte {
	if len(r.TxHashes) == 0 {
		return nil
	}
	return r.TxHashes[len(r.TxHashes)-1]
}
