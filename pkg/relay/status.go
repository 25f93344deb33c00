package relay

import (
	"fmt"
	"strings"
	"time"
)

// StatusType selects the Status format.
type StatusType int

const (
	// StatusInfo is the runtime info form. A relay has none, so it is empty.
	StatusInfo StatusType = iota

	// StatusTable is the construction form: "<endpoint> <idle_ms> <wake_ms>".
	StatusTable
)

func (t StatusType) String() string {
	switch t {
	case StatusInfo:
		return "info"
	case StatusTable:
		return "table"
	default:
		return fmt.Sprintf("StatusType(%d)", int(t))
	}
}

// ParseStatusType parses "info" or "table".
func ParseStatusType(s string) (StatusType, error) {
	switch strings.ToLower(s) {
	case "info":
		return StatusInfo, nil
	case "table", "":
		return StatusTable, nil
	default:
		return 0, fmt.Errorf("unknown status type %q", s)
	}
}

// Status returns the status line of the given type. It fails with
// ErrDeviceUnavailable when no handle is held. It has no side effects.
func (r *Relay) Status(t StatusType) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dev == nil {
		return "", ErrDeviceUnavailable
	}

	switch t {
	case StatusInfo:
		return "", nil
	case StatusTable:
		return fmt.Sprintf("%s %d %d", r.cfg.Endpoint, r.cfg.IdleTimeout.Milliseconds(), r.cfg.WakeTimeout.Milliseconds()), nil
	default:
		return "", fmt.Errorf("unknown status type %d", int(t))
	}
}

// Snapshot is a structured view of a relay.
type Snapshot struct {
	Name               string     `json:"name" yaml:"name"`
	Endpoint           string     `json:"endpoint" yaml:"endpoint"`
	State              State      `json:"state" yaml:"state"`
	IdleTimeoutMs      int64      `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	WakeTimeoutMs      int64      `json:"wake_timeout_ms" yaml:"wake_timeout_ms"`
	Begin              int64      `json:"begin" yaml:"begin"`
	Attached           bool       `json:"attached" yaml:"attached"`
	Device             string     `json:"device,omitempty" yaml:"device,omitempty"`
	Waiters            int        `json:"waiters" yaml:"waiters"`
	InFlight           int        `json:"in_flight" yaml:"in_flight"`
	Pending            Transition `json:"pending,omitempty" yaml:"pending,omitempty"`
	TransitionsEnabled bool       `json:"transitions_enabled" yaml:"transitions_enabled"`
	Closed             bool       `json:"closed" yaml:"closed"`
	Sleeps             uint64     `json:"sleeps" yaml:"sleeps"`
	Wakes              uint64     `json:"wakes" yaml:"wakes"`
	LastTransition     time.Time  `json:"last_transition" yaml:"last_transition"`
}

// Snapshot returns the current relay state.
func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Name:               r.cfg.Name,
		Endpoint:           r.cfg.Endpoint,
		State:              r.state,
		IdleTimeoutMs:      r.cfg.IdleTimeout.Milliseconds(),
		WakeTimeoutMs:      r.cfg.WakeTimeout.Milliseconds(),
		Begin:              r.cfg.Begin,
		Attached:           r.dev != nil,
		Waiters:            r.waiters,
		InFlight:           r.inflight,
		Pending:            r.pendingAction(),
		TransitionsEnabled: r.transitionsEnabled,
		Closed:             r.closed,
		Sleeps:             r.sleeps,
		Wakes:              r.wakes,
		LastTransition:     r.lastTransition,
	}
	if r.dev != nil {
		s.Device = r.dev.Name()
	}
	return s
}
