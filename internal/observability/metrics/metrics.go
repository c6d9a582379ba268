// Package metrics provides Prometheus instrumentation for mintdeploy.
//
// A CLI run is too short-lived to be scraped, so metrics live in a private
// registry that can be written to a node_exporter textfile on exit.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mintdeploy"

var (
	mu       sync.RWMutex
	enabled  bool
	registry *prometheus.Registry

	// Deployment metrics
	deployTotal    *prometheus.CounterVec
	deployDuration *prometheus.HistogramVec
	deployGasUsed  *prometheus.GaugeVec

	// Verification metrics
	verifyTotal *prometheus.CounterVec

	// Explorer HTTP metrics
	explorerRequestsTotal *prometheus.CounterVec
	explorerDuration      *prometheus.HistogramVec

	// Journal metrics
	journalWritesTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Calling it again replaces the
// registry, which discards previously recorded values.
func Init(enabledFlag bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enabledFlag
	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(registry)

	deployTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deploy_total",
			Help:      "Total number of contract deployments attempted",
		},
		[]string{"network", "contract", "status"},
	)

	deployDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deploy_duration_seconds",
			Help:      "Time from broadcast to confirmed receipt",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300, 600},
		},
		[]string{"network"},
	)

	deployGasUsed = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deploy_gas_used",
			Help:      "Gas used by the last confirmed deployment",
		},
		[]string{"network", "contract"},
	)

	verifyTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Total number of explorer verifications by result",
		},
		[]string{"network", "result"},
	)

	explorerRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explorer_requests_total",
			Help:      "Total number of block explorer API requests",
		},
		[]string{"code", "method"},
	)

	explorerDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "explorer_request_duration_seconds",
			Help:      "Block explorer API latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	journalWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_writes_total",
			Help:      "Total number of deployment journal writes",
		},
		[]string{"status"},
	)
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Registry returns the active registry, or nil when metrics are disabled.
func Registry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format. It is a no-op when metrics are disabled or path is empty.
func WriteTextfile(path string) error {
	reg := Registry()
	if reg == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
