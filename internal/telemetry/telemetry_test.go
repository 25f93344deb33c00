package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittorelay", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SampleRate = 1.5
	assert.Error(t, cfg.Validate())
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpanHelpersNoop(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.NoError(t, err)

	ctx, span := StartDispatchSpan(context.Background(), "archive", "read", Offset(4096))
	defer span.End()

	assert.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid())

	// None of these may panic on a no-op span.
	AddEvent(ctx, EventWait, State("IDLE"))
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	SetAttributes(ctx, Length(512))

	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr attribute.KeyValue
		key  string
	}{
		{"Relay", Relay("archive"), AttrRelay},
		{"Endpoint", Endpoint("/dev/sdb"), AttrEndpoint},
		{"State", State("ACTIVE"), AttrState},
		{"Op", Op("write"), AttrOp},
		{"Offset", Offset(1), AttrOffset},
		{"Length", Length(2), AttrLength},
		{"Device", Device("file:/dev/sdb"), AttrDevice},
		{"ClientIP", ClientIP("10.0.0.1"), AttrClientIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, attribute.Key(tt.key), tt.attr.Key)
		})
	}
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, shutdown())
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "mutex_count"})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = parseProfileTypes([]string{"cpu", "bogus"})
	assert.Error(t, err)
}
