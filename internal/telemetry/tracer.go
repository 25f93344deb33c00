package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for relay spans.
const (
	AttrRelay      = "relay.name"
	AttrEndpoint   = "relay.endpoint"
	AttrState      = "relay.state"
	AttrTransition = "relay.transition"
	AttrWaited     = "relay.waited"

	AttrOp     = "io.op"
	AttrOffset = "io.offset"
	AttrLength = "io.length"

	AttrDevice  = "device.name"
	AttrBackend = "device.backend"

	AttrClientIP = "client.ip"
)

// Span and event names.
const (
	SpanDispatch = "relay.dispatch"
	SpanAttach   = "relay.attach"
	SpanRelease  = "relay.release"
	SpanHTTP     = "api.request"

	EventWait   = "wait"
	EventWoken  = "woken"
	EventAttach = "attach"
)

// Relay returns an attribute for the relay name
func Relay(name string) attribute.KeyValue { return attribute.String(AttrRelay, name) }

// Endpoint returns an attribute for the endpoint identity
func Endpoint(endpoint string) attribute.KeyValue { return attribute.String(AttrEndpoint, endpoint) }

// State returns an attribute for the relay state
func State(state string) attribute.KeyValue { return attribute.String(AttrState, state) }

// Op returns an attribute for the request operation
func Op(op string) attribute.KeyValue { return attribute.String(AttrOp, op) }

// Offset returns an attribute for a request offset
func Offset(off int64) attribute.KeyValue { return attribute.Int64(AttrOffset, off) }

// Length returns an attribute for a request length
func Length(n int64) attribute.KeyValue { return attribute.Int64(AttrLength, n) }

// Device returns an attribute for the device name
func Device(name string) attribute.KeyValue { return attribute.String(AttrDevice, name) }

// ClientIP returns an attribute for the client IP address
func ClientIP(ip string) attribute.KeyValue { return attribute.String(AttrClientIP, ip) }

// StartDispatchSpan starts the span wrapping one relay dispatch.
func StartDispatchSpan(ctx context.Context, relay, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Relay(relay), Op(op)}, attrs...)
	return StartSpan(ctx, SpanDispatch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(all...),
	)
}

// StartRelaySpan starts an internal relay span (attach, release).
func StartRelaySpan(ctx context.Context, name, relay string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Relay(relay)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}
