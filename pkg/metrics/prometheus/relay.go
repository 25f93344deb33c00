// Package prometheus implements relay metrics on top of the registry held
// by pkg/metrics. Import it for side effects to enable them:
//
//	import _ "github.com/marmos91/dittorelay/pkg/metrics/prometheus"
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/metrics"
	"github.com/marmos91/dittorelay/pkg/power"
	"github.com/marmos91/dittorelay/pkg/relay"
)

func init() {
	metrics.RegisterRelayMetricsConstructor(func() relay.Metrics {
		return NewRelayMetrics(metrics.GetRegistry())
	})
}

// relayMetrics is the Prometheus implementation of relay.Metrics.
type relayMetrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	wakeWait         *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	state            *prometheus.GaugeVec
	waiters          *prometheus.GaugeVec
	acquireFailures  *prometheus.CounterVec
	releaseFailures  *prometheus.CounterVec
	powerIntents     *prometheus.CounterVec
}

// NewRelayMetrics registers the relay collectors on reg.
func NewRelayMetrics(reg prometheus.Registerer) relay.Metrics {
	return &relayMetrics{
		dispatchTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorelay_dispatch_total",
				Help: "Total number of dispatched requests by relay, operation and result",
			},
			[]string{"relay", "op", "result"},
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittorelay_dispatch_duration_milliseconds",
				Help: "Duration of dispatched requests in milliseconds, wake wait included",
				Buckets: []float64{
					0.1,   // 100us - memory backends
					1,     // 1ms
					10,    // 10ms - local disks
					100,   // 100ms - object storage
					500,   // 500ms
					1000,  // 1s - typical wake
					5000,  // 5s
					30000, // 30s - slow spin-up
				},
			},
			[]string{"relay", "op"},
		),
		wakeWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittorelay_wake_wait_milliseconds",
				Help:    "Time callers spent blocked waiting for a wake",
				Buckets: prometheus.ExponentialBuckets(10, 2, 12), // 10ms to ~20s
			},
			[]string{"relay"},
		),
		transitions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorelay_transitions_total",
				Help: "Total number of state transitions by relay and target state",
			},
			[]string{"relay", "from", "to"},
		),
		state: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittorelay_active",
				Help: "1 when the relay is ACTIVE, 0 when IDLE",
			},
			[]string{"relay"},
		),
		waiters: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittorelay_waiters",
				Help: "Number of callers blocked waiting for a wake",
			},
			[]string{"relay"},
		),
		acquireFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorelay_acquire_failures_total",
				Help: "Total number of failed device attaches by reason",
			},
			[]string{"relay", "reason"}, // "not_found", "busy", "timeout", "error"
		),
		releaseFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorelay_release_failures_total",
				Help: "Total number of device releases that returned an error",
			},
			[]string{"relay"},
		),
		powerIntents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittorelay_power_intents_total",
				Help: "Total number of emitted power intents",
			},
			[]string{"relay", "switch"}, // "ON", "OFF"
		),
	}
}

func (m *relayMetrics) ObserveDispatch(name string, op device.Op, result string, d time.Duration) {
	m.dispatchTotal.WithLabelValues(name, string(op), result).Inc()
	m.dispatchDuration.WithLabelValues(name, string(op)).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *relayMetrics) ObserveWait(name string, d time.Duration) {
	m.wakeWait.WithLabelValues(name).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *relayMetrics) RecordTransition(name string, from, to relay.State) {
	m.transitions.WithLabelValues(name, string(from), string(to)).Inc()
}

func (m *relayMetrics) SetState(name string, s relay.State) {
	v := 0.0
	if s == relay.StateActive {
		v = 1
	}
	m.state.WithLabelValues(name).Set(v)
}

func (m *relayMetrics) SetWaiters(name string, n int) {
	m.waiters.WithLabelValues(name).Set(float64(n))
}

func (m *relayMetrics) RecordAcquireFailure(name, reason string) {
	m.acquireFailures.WithLabelValues(name, reason).Inc()
}

func (m *relayMetrics) RecordReleaseFailure(name string) {
	m.releaseFailures.WithLabelValues(name).Inc()
}

func (m *relayMetrics) RecordPowerIntent(name string, i power.Intent) {
	m.powerIntents.WithLabelValues(name, string(i)).Inc()
}
