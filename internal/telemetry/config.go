package telemetry

import "errors"

// Config holds OpenTelemetry configuration
type Config struct {
	// Enabled indicates whether tracing is enabled
	Enabled bool

	// ServiceName is the name of the service reported to the trace backend
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS on the exporter connection
	Insecure bool

	// SampleRate is the trace sampling rate (0.0 to 1.0)
	SampleRate float64
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "dittorelay",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// Validate checks an enabled configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when tracing is enabled")
	}
	if c.ServiceName == "" {
		return errors.New("telemetry: service name is required")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return errors.New("telemetry: sample rate must be between 0 and 1")
	}
	return nil
}
