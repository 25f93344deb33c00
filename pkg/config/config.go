package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittorelay/internal/bytesize"
	"github.com/marmos91/dittorelay/pkg/api"
	"github.com/marmos91/dittorelay/pkg/journal"
)

// Config represents the dittorelay configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTORELAY_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains REST API server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Workers sizes the queue shared by every relay for deferred transitions
	Workers WorkersConfig `mapstructure:"workers" yaml:"workers"`

	// Journal configures the transition journal database
	Journal journal.Config `mapstructure:"journal" yaml:"journal"`

	// Power configures where power intents are delivered
	Power PowerConfig `mapstructure:"power" yaml:"power"`

	// Relays lists the relays to create at startup
	Relays []RelayConfig `mapstructure:"relays" validate:"dive" yaml:"relays"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use a non-TLS connection
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "alloc_space", "goroutines", "mutex_duration"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig enables Prometheus metrics. When enabled, metrics are
// served on the API server at /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// WorkersConfig sizes the shared work queue.
type WorkersConfig struct {
	// Count is the number of workers.
	// Default: 2
	Count int `mapstructure:"count" validate:"omitempty,min=1,max=256" yaml:"count"`

	// ItemTimeout bounds one deferred transition (device release).
	// Default: 1m
	ItemTimeout time.Duration `mapstructure:"item_timeout" yaml:"item_timeout"`
}

// PowerConfig configures power intent delivery. Every configured target
// receives every intent.
type PowerConfig struct {
	// Log writes each intent to the log.
	// Default: true
	Log *bool `mapstructure:"log" yaml:"log,omitempty"`

	// Command runs a program per intent with RELAY_SWITCH=ON|OFF,
	// RELAY_NAME and RELAY_ENDPOINT in its environment.
	Command CommandConfig `mapstructure:"command" yaml:"command,omitempty"`

	// Webhook POSTs each intent as JSON.
	Webhook WebhookConfig `mapstructure:"webhook" yaml:"webhook,omitempty"`

	// Timeout bounds one delivery.
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogEnabled reports whether intents are logged.
func (c *PowerConfig) LogEnabled() bool {
	return c.Log == nil || *c.Log
}

// CommandConfig is a power hook program.
type CommandConfig struct {
	Path string   `mapstructure:"path" yaml:"path,omitempty"`
	Args []string `mapstructure:"args" yaml:"args,omitempty"`
}

// WebhookConfig is a power hook URL.
type WebhookConfig struct {
	URL     string            `mapstructure:"url" validate:"omitempty,url" yaml:"url,omitempty"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
}

// RelayConfig describes one relay.
//
// The device and timeouts come either from Table, a single
// "<endpoint> <idle_ms> <wake_ms>" line, or from the individual fields.
type RelayConfig struct {
	// Name identifies the relay.
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Table is the positional form. When set, Endpoint and the timeouts
	// must be left empty.
	Table string `mapstructure:"table" yaml:"table,omitempty"`

	// Endpoint identifies the device to its backend: a path for file and
	// badger, "bucket[/prefix]" for s3, a disk name for memory.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// IdleTimeoutMs is the quiet period before the device is released.
	IdleTimeoutMs uint32 `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms,omitempty"`

	// WakeTimeoutMs is the delay between the power-up intent and re-attach.
	WakeTimeoutMs uint32 `mapstructure:"wake_timeout_ms" yaml:"wake_timeout_ms,omitempty"`

	// Begin is the start of the mapping. Supports "1Mi" and friends.
	Begin bytesize.ByteSize `mapstructure:"begin" yaml:"begin,omitempty"`

	// AcquireTimeout bounds one attach.
	// Default: 30s
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout,omitempty"`

	// Device selects and configures the backend.
	Device DeviceConfig `mapstructure:"device" yaml:"device"`
}

// DeviceConfig selects a device backend.
type DeviceConfig struct {
	// Type is one of memory, file, badger, s3.
	Type string `mapstructure:"type" validate:"required,oneof=memory file badger s3" yaml:"type"`

	// Size is the device capacity. Required for memory, badger and s3, and
	// for file when create is set.
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size,omitempty"`

	// Options holds backend-specific settings, decoded per type:
	//   file:   create, sync
	//   badger: sector_size, sync_writes
	//   s3:     chunk_size, region, endpoint, force_path_style,
	//           access_key_id, secret_access_key
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath uses the default location. A missing file yields the
// default configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration and explains how to create one when it is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dittorelay config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dittorelay <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dittorelay config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold database passwords and S3 keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and the config file location.
// Example: DITTORELAY_LOGGING_LEVEL=DEBUG
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DITTORELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reports whether a config file was found and read.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the decode hooks for ByteSize and time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts "1Gi", "500Mi", "100MB" or plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.Of(v)
		case int64:
			return bytesize.Of(v)
		case uint64:
			return bytesize.Of(v)
		case float64:
			// YAML often decodes numbers as float64.
			return bytesize.Of(v)
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts "30s", "5m", "1h" to time.Duration. Raw
// integers are nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/dittorelay, ~/.config/dittorelay,
// or "." when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittorelay")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittorelay")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
