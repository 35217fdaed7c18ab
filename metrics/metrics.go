package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func initMetrics(env string) {
	if !initialized {
		registerer = prometheus.DefaultRegisterer
		gauges = make(map[string]*prometheus.GaugeVec)
		counters = make(map[string]*prometheus.CounterVec)
		histograms = make(map[string]*prometheus.HistogramVec)
		initialized = true
	}

	// every series carries the deployment environment so mainnet and
	// testnet relays can share one prometheus
	constLabels := prometheus.Labels{labelEnv: env}

	registerGauge(prometheus.GaugeOpts{Name: metricScannedBlockNum, ConstLabels: constLabels}, labelChain)
	registerGauge(prometheus.GaugeOpts{Name: metricChainHeadBlockNum, ConstLabels: constLabels}, labelChain)
	registerCounter(prometheus.CounterOpts{Name: metricDepositCount, ConstLabels: constLabels}, labelChain, labelDuplicate)
	registerCounter(prometheus.CounterOpts{Name: metricRelayOutcomeCount, ConstLabels: constLabels}, labelDestChain, labelOutcome)
	registerGauge(prometheus.GaugeOpts{Name: metricRelayRecordCount, ConstLabels: constLabels}, labelStatus)
	registerHistogram(prometheus.HistogramOpts{Name: metricRelayDuration, ConstLabels: constLabels}, labelDestChain)
	registerGauge(prometheus.GaugeOpts{Name: metricRelayerBalance, ConstLabels: constLabels}, labelDestChain)
	registerGauge(prometheus.GaugeOpts{Name: metricSubmitterUnhealthy, ConstLabels: constLabels}, labelDestChain)
}

// SetScannedBlock records the durable scan cursor position of a chain.
func SetScannedBlock(chain string, blockNum uint64) {
	gaugeSet(metricScannedBlockNum, float64(blockNum), map[string]string{labelChain: chain})
}

// SetChainHead records the stable head height reported by a chain.
func SetChainHead(chain string, blockNum uint64) {
	gaugeSet(metricChainHeadBlockNum, float64(blockNum), map[string]string{labelChain: chain})
}

// RecordDeposit counts one observed PaidIn event. duplicate tells whether
// the deposit was already known.
func RecordDeposit(chain string, duplicate bool) {
	counterInc(metricDepositCount, map[string]string{labelChain: chain, labelDuplicate: strconv.FormatBool(duplicate)})
}

// RecordRelayOutcome counts one settled relay per destination and verdict.
func RecordRelayOutcome(destChain string, outcome string) {
	counterInc(metricRelayOutcomeCount, map[string]string{labelDestChain: destChain, labelOutcome: outcome})
}

// SetRelayRecordCount publishes how many records sit in one lifecycle state.
func SetRelayRecordCount(status string, count uint64) {
	gaugeSet(metricRelayRecordCount, float64(count), map[string]string{labelStatus: status})
}

// RecordRelayDuration observes how long a transfer took from observation to
// finalized payout.
func RecordRelayDuration(destChain string, dur time.Duration) {
	histogramObserve(metricRelayDuration, float64(dur/time.Second), map[string]string{labelDestChain: destChain})
}

// SetRelayerBalance publishes the relayer account balance on a destination.
func SetRelayerBalance(destChain string, balance float64) {
	gaugeSet(metricRelayerBalance, balance, map[string]string{labelDestChain: destChain})
}

// SetSubmitterUnhealthy flags a destination whose submitter cannot make
// progress, missing key material for example.
func SetSubmitterUnhealthy(destChain string, unhealthy bool) {
	v := 0.0
	if unhealthy {
		v = 1.0
	}
	gaugeSet(metricSubmitterUnhealthy, v, map[string]string{labelDestChain: destChain})
}
