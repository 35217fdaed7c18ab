package submitter

import (
	"github.com/omnibridge/bridge-service/config/types"
)

// Config shared by all destination submitters.
type Config struct {
	// QueueSize is the per-destination job queue length.
	QueueSize int `mapstructure:"QueueSize"`

	// OutcomePollInterval is how often an in-flight payout is polled.
	OutcomePollInterval types.Duration `mapstructure:"OutcomePollInterval"`

	// OutcomeTimeout bounds how long one attempt is polled before it is
	// reported back as unknown.
	OutcomeTimeout types.Duration `mapstructure:"OutcomeTimeout"`
}
