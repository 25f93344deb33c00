package relay

import (
	"time"

	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/power"
)

// EventKind classifies an observed relay event.
type EventKind string

const (
	// EventTransition is a completed ACTIVE/IDLE state change.
	EventTransition EventKind = "transition"

	// EventPowerIntent is an emitted power-up or power-down intent.
	EventPowerIntent EventKind = "power"

	// EventAttach is a successful device acquisition after a wake.
	EventAttach EventKind = "attach"

	// EventAttachFailed is a failed device acquisition.
	EventAttachFailed EventKind = "attach_failed"

	// EventReleaseFailed is a device Close that returned an error.
	EventReleaseFailed EventKind = "release_failed"
)

// Event describes something that happened to a relay.
type Event struct {
	Kind     EventKind
	Relay    string
	Endpoint string
	From     State
	To       State
	Intent   power.Intent
	Err      error
	At       time.Time
}

// Observer receives relay events. Observe is called outside the relay lock
// and may block the calling dispatcher or worker, so it should be quick.
type Observer interface {
	Observe(ev Event)
}

// PowerEmitter delivers power intents without blocking the relay.
type PowerEmitter interface {
	Emit(ev power.Event)
}

// Dispatch results reported to Metrics.
const (
	ResultOK          = "ok"
	ResultError       = "error"
	ResultUnavailable = "unavailable"
	ResultNoDevice    = "no_device"
	ResultClosed      = "closed"
	ResultCanceled    = "canceled"
)

// Metrics records relay activity. A nil Metrics disables collection.
type Metrics interface {
	ObserveDispatch(relay string, op device.Op, result string, d time.Duration)
	ObserveWait(relay string, d time.Duration)
	RecordTransition(relay string, from, to State)
	SetState(relay string, s State)
	SetWaiters(relay string, n int)
	RecordAcquireFailure(relay string, reason string)
	RecordReleaseFailure(relay string)
	RecordPowerIntent(relay string, intent power.Intent)
}
