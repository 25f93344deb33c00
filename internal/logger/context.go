package logger

import "context"

type contextKey struct{}

// LogContext holds request-scoped fields. The API fills in the request
// identity; Dispatch adds the relay and the request it is routing.
type LogContext struct {
	TraceID   string // OpenTelemetry trace ID
	SpanID    string // OpenTelemetry span ID
	RequestID string // API request ID
	ClientIP  string // API client address, without port

	Relay  string // relay routing the request
	Op     string // read, write, flush or discard
	Offset int64  // offset in the relay address space
	Length int64  // bytes requested
}

// WithContext returns a copy of ctx carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext of ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// WithDispatch returns a copy of ctx whose LogContext describes one
// dispatched request. Fields already set by the API are kept.
func WithDispatch(ctx context.Context, relay, op string, offset, length int64) context.Context {
	lc := &LogContext{}
	if parent := FromContext(ctx); parent != nil {
		*lc = *parent
	}
	lc.Relay = relay
	lc.Op = op
	lc.Offset = offset
	lc.Length = length
	return WithContext(ctx, lc)
}

// appendContextFields prepends the LogContext fields of ctx to args so they
// lead the record.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := make([]any, 0, 16+len(args))
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, key, value)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyRequestID, lc.RequestID)
	add(KeyClientIP, lc.ClientIP)
	add(KeyRelay, lc.Relay)
	add(KeyOp, lc.Op)
	if lc.Op != "" && lc.Op != "flush" {
		fields = append(fields, KeyOffset, lc.Offset, KeyLength, lc.Length)
	}

	return append(fields, args...)
}
