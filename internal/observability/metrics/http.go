package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentTransport wraps an HTTP transport with explorer request
// metrics. The transport is returned unchanged when metrics are disabled.
func InstrumentTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if !Enabled() {
		return next
	}

	mu.RLock()
	counter, duration := explorerRequestsTotal, explorerDuration
	mu.RUnlock()

	return promhttp.InstrumentRoundTripperCounter(counter,
		promhttp.InstrumentRoundTripperDuration(duration, next),
	)
}
