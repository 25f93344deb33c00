package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the construction parameters of one relay.
type Config struct {
	// Name identifies the relay in logs, metrics and the API. Defaults to Endpoint.
	Name string

	// Endpoint identifies the device to the Provider.
	Endpoint string

	// IdleTimeout is the quiet period after which the device is released.
	IdleTimeout time.Duration

	// WakeTimeout is how long the device needs after a power-up intent
	// before it can be attached.
	WakeTimeout time.Duration

	// Begin is the start of the mapping in bytes. Request offsets are
	// translated by subtracting it.
	Begin int64

	// AcquireTimeout bounds one device attach. Defaults to 30s.
	AcquireTimeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return &ConfigError{Field: "endpoint", Reason: "required"}
	}
	if c.IdleTimeout < 0 {
		return &ConfigError{Field: "idle_timeout", Value: c.IdleTimeout.String(), Reason: "must not be negative"}
	}
	if c.WakeTimeout < 0 {
		return &ConfigError{Field: "wake_timeout", Value: c.WakeTimeout.String(), Reason: "must not be negative"}
	}
	if c.Begin < 0 {
		return &ConfigError{Field: "begin", Value: strconv.FormatInt(c.Begin, 10), Reason: "must not be negative"}
	}
	if c.Name == "" {
		c.Name = c.Endpoint
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	return nil
}

// ParseArgs parses the three positional construction arguments:
//
//	<endpoint> <idle_timeout_ms> <wake_timeout_ms>
//
// Timeouts are unsigned decimal milliseconds.
func ParseArgs(args []string) (Config, error) {
	if len(args) != 3 {
		return Config{}, &ConfigError{
			Field:  "args",
			Value:  strings.Join(args, " "),
			Reason: fmt.Sprintf("expected 3 arguments <endpoint> <idle_ms> <wake_ms>, got %d", len(args)),
		}
	}

	idle, err := parseMillis("idle_timeout_ms", args[1])
	if err != nil {
		return Config{}, err
	}
	wake, err := parseMillis("wake_timeout_ms", args[2])
	if err != nil {
		return Config{}, err
	}

	cfg := Config{Endpoint: args[0], IdleTimeout: idle, WakeTimeout: wake}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTable parses a whitespace-separated table line, the form Status
// returns for StatusTable.
func ParseTable(line string) (Config, error) {
	return ParseArgs(strings.Fields(line))
}

func parseMillis(field, s string) (time.Duration, error) {
	ms, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, &ConfigError{Field: field, Value: s, Reason: "must be an unsigned decimal number of milliseconds"}
	}
	return time.Duration(ms) * time.Millisecond, nil
}
