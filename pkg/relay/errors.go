package relay

import (
	"errors"
	"fmt"
)

// Dispatch errors.
var (
	// ErrDeviceUnavailable is returned when the device could not be attached
	// after a wake, or when status is queried with no handle held.
	//
	// API Mapping: 503 Service Unavailable
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNoDevice is returned when no handle is held and the relay cannot
	// start a wake, e.g. while transitions are suspended.
	//
	// API Mapping: 503 Service Unavailable
	ErrNoDevice = errors.New("no device attached")

	// ErrRelayClosed is returned to callers still waiting when the relay is
	// torn down, and to every dispatch afterwards.
	//
	// API Mapping: 409 Conflict
	ErrRelayClosed = errors.New("relay closed")
)

// ConfigError reports an invalid construction parameter.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid relay config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid relay config: %s=%q: %s", e.Field, e.Value, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
