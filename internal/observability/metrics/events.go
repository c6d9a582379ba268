package metrics

import "time"

// Deploy records a deployment attempt. status is "confirmed", "reverted"
// or "failed".
func Deploy(network, contract, status string) {
	if !Enabled() {
		return
	}
	deployTotal.WithLabelValues(network, contract, status).Inc()
}

// DeployConfirmed records the latency and gas of a confirmed deployment.
func DeployConfirmed(network, contract string, elapsed time.Duration, gasUsed uint64) {
	if !Enabled() {
		return
	}
	deployDuration.WithLabelValues(network).Observe(elapsed.Seconds())
	deployGasUsed.WithLabelValues(network, contract).Set(float64(gasUsed))
}

// Verify records an explorer verification outcome.
func Verify(network, result string) {
	if !Enabled() {
		return
	}
	verifyTotal.WithLabelValues(network, result).Inc()
}

// JournalWrite records a deployment journal write.
func JournalWrite(status string) {
	if !Enabled() {
		return
	}
	journalWritesTotal.WithLabelValues(status).Inc()
}
