package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittorelay/internal/bytesize"
	"github.com/marmos91/dittorelay/pkg/journal"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	cfg.API.ApplyDefaults()
	applyWorkersDefaults(&cfg.Workers)
	cfg.Journal.ApplyDefaults()
	applyPowerDefaults(&cfg.Power)
	for i := range cfg.Relays {
		applyRelayDefaults(&cfg.Relays[i])
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Standard OTLP gRPC port
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_space",
			"inuse_space",
			"goroutines",
			"mutex_duration",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyWorkersDefaults(cfg *WorkersConfig) {
	if cfg.Count == 0 {
		cfg.Count = 2
	}
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = time.Minute
	}
}

func applyPowerDefaults(cfg *PowerConfig) {
	if cfg.Log == nil {
		enabled := true
		cfg.Log = &enabled
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
}

// applyRelayDefaults fills per-relay defaults. A missing name falls back to
// the endpoint, as relay.Config does.
func applyRelayDefaults(cfg *RelayConfig) {
	cfg.Device.Type = strings.ToLower(cfg.Device.Type)
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.Name == "" && cfg.Table == "" {
		cfg.Name = cfg.Endpoint
	}
}

// GetDefaultConfig returns a Config with all default values applied and a
// single in-memory relay, suitable as a starting point for `config init`.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Journal: journal.Config{
			Enabled: true,
			Type:    journal.DatabaseTypeSQLite,
		},
		Relays: []RelayConfig{
			{
				Name:          "disk0",
				Endpoint:      "disk0",
				IdleTimeoutMs: 60000,
				WakeTimeoutMs: 5000,
				Device: DeviceConfig{
					Type: DeviceMemory,
					Size: bytesize.ByteSize(64 * bytesize.MiB),
				},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
