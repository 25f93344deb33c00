package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/metrics"
	"github.com/marmos91/dittorelay/pkg/power"
	"github.com/marmos91/dittorelay/pkg/relay"
)

func TestRelayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg).(*relayMetrics)

	m.ObserveDispatch("r0", device.OpRead, relay.ResultOK, 2*time.Millisecond)
	m.ObserveDispatch("r0", device.OpRead, relay.ResultOK, time.Millisecond)
	m.ObserveDispatch("r0", device.OpWrite, relay.ResultUnavailable, time.Second)
	m.ObserveWait("r0", 500*time.Millisecond)
	m.RecordTransition("r0", relay.StateActive, relay.StateIdle)
	m.SetState("r0", relay.StateIdle)
	m.SetWaiters("r0", 3)
	m.RecordAcquireFailure("r0", "not_found")
	m.RecordReleaseFailure("r0")
	m.RecordPowerIntent("r0", power.On)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("r0", "read", relay.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchTotal.WithLabelValues("r0", "write", relay.ResultUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("r0", "ACTIVE", "IDLE")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.state.WithLabelValues("r0")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.waiters.WithLabelValues("r0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acquireFailures.WithLabelValues("r0", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.releaseFailures.WithLabelValues("r0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.powerIntents.WithLabelValues("r0", "ON")))

	m.SetState("r0", relay.StateActive)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("r0")))

	n, err := testutil.GatherAndCount(reg, "dittorelay_dispatch_duration_milliseconds", "dittorelay_wake_wait_milliseconds")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewRelayMetricsRequiresRegistry(t *testing.T) {
	metrics.Reset()
	t.Cleanup(metrics.Reset)

	assert.Nil(t, metrics.NewRelayMetrics())

	metrics.InitRegistry()
	m := metrics.NewRelayMetrics()
	require.NotNil(t, m)
	m.SetWaiters("r1", 1)

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "dittorelay_waiters")
	assert.Contains(t, names, "go_goroutines")
}
