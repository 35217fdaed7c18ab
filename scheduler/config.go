package scheduler

import (
	"github.com/omnibridge/bridge-service/config/types"
)

// Config of the relay scheduler.
type Config struct {
	// SweepInterval is how often storage is swept for dispatchable records.
	SweepInterval types.Duration `mapstructure:"SweepInterval"`

	// RetryCap is the maximum number of payout attempts per transfer before
	// the record fails with retries exhausted.
	RetryCap int `mapstructure:"RetryCap"`

	// RetryBackoff is the base delay of the exponential retry backoff.
	RetryBackoff types.Duration `mapstructure:"RetryBackoff"`

	// RetryBackoffMax caps the exponential retry backoff.
	RetryBackoffMax types.Duration `mapstructure:"RetryBackoffMax"`

	// InfraRetryInterval is the fixed re-dispatch delay when an attempt hit
	// infrastructure trouble, endpoint down or key not provisioned. Such
	// attempts do not consume the retry budget.
	InfraRetryInterval types.Duration `mapstructure:"InfraRetryInterval"`

	// DispatchTimeout is how long a dispatched record may stay without an
	// outcome before the sweep considers it stuck and re-dispatches it.
	DispatchTimeout types.Duration `mapstructure:"DispatchTimeout"`

	// QueueSize is the buffer size of the intent and outcome channels.
	QueueSize int `mapstructure:"QueueSize"`

	// SweepLimit is the maximum number of records picked up per sweep.
	SweepLimit int `mapstructure:"SweepLimit"`
}
