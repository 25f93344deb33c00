package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently so relay logs can be aggregated and queried.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Relay State Machine
	// ========================================================================
	KeyRelay      = "relay"      // Relay instance name
	KeyEndpoint   = "endpoint"   // Endpoint identity used to (re)acquire the device
	KeyState      = "state"      // Relay state: ACTIVE, IDLE
	KeyTransition = "transition" // Transition name: sleep, wake
	KeyAction     = "action"     // Deferred action kind being armed or fired
	KeyDelayMs    = "delay_ms"   // Deferred action delay in milliseconds
	KeyForce      = "force"      // Whether arming replaced a pending action
	KeyWaiters    = "waiters"    // Number of suspended dispatchers
	KeyIntent     = "intent"     // Power intent: ON, OFF

	// ========================================================================
	// Device I/O
	// ========================================================================
	KeyDevice = "device" // Device name as reported by the backend
	KeyOp     = "op"     // Request operation: read, write, flush, discard
	KeyOffset = "offset" // Device offset after translation
	KeyLength = "length" // Request length in bytes
	KeyBytes  = "bytes"  // Bytes transferred

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyBackend = "backend" // Device backend type: memory, file, badger, s3
	KeyPath    = "path"    // Filesystem path of a device or database
	KeyBucket  = "bucket"  // Object storage bucket
	KeyKey     = "key"     // Object key in object storage

	// ========================================================================
	// Workers
	// ========================================================================
	KeyWorker  = "worker"  // Worker index in the shared queue
	KeyPending = "pending" // Queued work items

	// ========================================================================
	// API & Client
	// ========================================================================
	KeyRequestID = "request_id" // API request ID
	KeyClientIP  = "client_ip"  // Client IP address

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
)

// Relay returns a slog.Attr for the relay name
func Relay(name string) slog.Attr {
	return slog.String(KeyRelay, name)
}

// Endpoint returns a slog.Attr for the endpoint identity
func Endpoint(endpoint string) slog.Attr {
	return slog.String(KeyEndpoint, endpoint)
}

// State returns a slog.Attr for a relay state
func State(state string) slog.Attr {
	return slog.String(KeyState, state)
}

// Op returns a slog.Attr for a request operation
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Offset returns a slog.Attr for a device offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// Length returns a slog.Attr for a request length
func Length(n int64) slog.Attr {
	return slog.Int64(KeyLength, n)
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
