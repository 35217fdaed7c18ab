package metrics

const (
	endpointMetrics = "/metrics"
)

// Metric types
const (
	typeGauge     = "gauge"
	typeCounter   = "counter"
	typeHistogram = "histogram"
)

// Metric names and labels
const (
	prefix = "omnibridge_"

	prefixWatcher           = prefix + "watcher_"
	metricScannedBlockNum   = prefixWatcher + "scanned_block_num"
	metricChainHeadBlockNum = prefixWatcher + "chain_head_block_num"
	metricDepositCount      = prefixWatcher + "deposit_count"
	labelChain              = "chain"
	labelDuplicate          = "duplicate"
	labelEnv                = "env"

	prefixRelay              = prefix + "relay_"
	metricRelayOutcomeCount  = prefixRelay + "outcome_count"
	metricRelayRecordCount   = prefixRelay + "record_count"
	metricRelayDuration      = prefixRelay + "duration_sec"
	metricRelayerBalance     = prefixRelay + "relayer_balance"
	metricSubmitterUnhealthy = prefixRelay + "submitter_unhealthy"
	labelDestChain           = "dest_chain"
	labelOutcome             = "outcome"
	labelStatus              = "status"
)
