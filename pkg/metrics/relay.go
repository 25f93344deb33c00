package metrics

import "github.com/marmos91/dittorelay/pkg/relay"

// NewRelayMetrics creates a Prometheus-backed relay.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or no
// implementation is linked in. Relays treat nil as "record nothing":
//
//	metrics.InitRegistry()
//	r, err := relay.New(ctx, cfg, relay.Options{Metrics: metrics.NewRelayMetrics(), ...})
func NewRelayMetrics() relay.Metrics {
	if !IsEnabled() || newPrometheusRelayMetrics == nil {
		return nil
	}
	return newPrometheusRelayMetrics()
}

// newPrometheusRelayMetrics is set by pkg/metrics/prometheus. The
// indirection avoids an import cycle.
var newPrometheusRelayMetrics func() relay.Metrics

// RegisterRelayMetricsConstructor registers the Prometheus relay metrics
// constructor. Called by pkg/metrics/prometheus during initialization.
func RegisterRelayMetricsConstructor(constructor func() relay.Metrics) {
	newPrometheusRelayMetrics = constructor
}
