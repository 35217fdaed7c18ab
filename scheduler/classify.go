package scheduler

import (
	"errors"
	"strings"

	"github.com/omnibridge/bridge-service/bridge"
	"github.com/omnibridge/bridge-service/gerror"
)

// FailureClass is the scheduler's verdict on a non-finalized outcome.
type FailureClass int

const (
	// ClassRetriable failures consume one attempt from the retry budget and
	// are re-dispatched with exponential backoff.
	ClassRetriable FailureClass = iota
	// ClassTerminal failures fail the record immediately.
	ClassTerminal
	// ClassInfra failures say nothing about the payout. The record is
	// re-dispatched after a fixed delay with its retry budget untouched.
	ClassInfra
	// ClassAlreadyProcessed means the destination dedup caught a repeat,
	// the transfer is done.
	ClassAlreadyProcessed
)

func (c FailureClass) String() string {
	switch c {
	case ClassTerminal:
		return "terminal"
	case ClassInfra:
		return "infra"
	case ClassAlreadyProcessed:
		return "already_processed"
	default:
		return "retriable"
	}
}

// alreadyProcessedMarkers match the destination reporting the deposit nonce
// as spent, the contract revert string or the pallet error name.
var alreadyProcessedMarkers = []string{
	"already paid",
	"already processed",
	"already relayed",
	"AlreadyPaidOut",
}

// terminalMarkers match rejections that no amount of retrying can fix.
var terminalMarkers = []string{
	"execution reverted",
	"invalid opcode",
	"invalid extrinsic",
	"malformed recipient",
	"recipient must be",
	"BadOrigin",
}

// Classify maps a submission outcome to the retry policy it deserves.
// Unknown reasons default to retriable, the retry cap bounds the damage of a
// misjudged transient.
func Classify(outcome bridge.SubmissionOutcome) FailureClass {
	if outcome.Err != nil {
		if errors.Is(outcome.Err, gerror.ErrRPCUnavailable) || errors.Is(outcome.Err, gerror.ErrKeyUnavailable) {
			return ClassInfra
		}
	}
	reason := outcome.Reason
	if reason == "" && outcome.Err != nil {
		reason = outcome.Err.Error()
	}
	// checked first so "execution reverted: already paid out" reads as a
	// dedup hit, not a terminal failure
	for _, marker := range alreadyProcessedMarkers {
		if strings.Contains(reason, marker) {
			return ClassAlreadyProcessed
		}
	}
	for _, marker := range terminalMarkers {
		if strings.Contains(reason, marker) {
			return ClassTerminal
		}
	}
	return ClassRetriable
}
