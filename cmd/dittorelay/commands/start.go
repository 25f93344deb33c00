package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/internal/telemetry"
	"github.com/marmos91/dittorelay/pkg/api"
	"github.com/marmos91/dittorelay/pkg/api/handlers"
	"github.com/marmos91/dittorelay/pkg/config"
	"github.com/marmos91/dittorelay/pkg/journal"
	"github.com/marmos91/dittorelay/pkg/metrics"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittorelay/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay server",
	Long: `Start the relay server in the foreground.

Every relay in the configuration attaches its device before the API starts
serving. The server runs until SIGINT or SIGTERM, then releases every held
device and flushes the transition journal.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittorelay/config.yaml.

Examples:
  # Start with the default config
  dittorelay start

  # Start with a custom config file
  dittorelay start --config /etc/dittorelay/config.yaml

  # Start with environment variable overrides
  DITTORELAY_LOGGING_LEVEL=DEBUG dittorelay start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file while running")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittorelay",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("Telemetry shutdown error", logger.KeyError, err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittorelay",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("dittorelay starting", "version", Version, "commit", Commit)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "path", "/metrics")
	}

	queue := workqueue.New(workqueue.Config{Workers: cfg.Workers.Count, ItemTimeout: cfg.Workers.ItemTimeout})
	queue.Start()

	var (
		jrnl       *journal.Journal
		observer   relay.Observer
		apiJournal handlers.Journal
	)
	if cfg.Journal.Enabled {
		jrnl, err = journal.New(&cfg.Journal)
		if err != nil {
			queue.Stop(cfg.ShutdownTimeout)
			return fmt.Errorf("failed to open transition journal: %w", err)
		}
		observer = jrnl
		apiJournal = jrnl
		logger.Info("Transition journal enabled", "type", cfg.Journal.Type)
	}

	emitter := config.BuildEmitter(&cfg.Power)

	reg := registry.NewRegistry(queue, registry.Options{
		Power:    emitter,
		Observer: observer,
		Metrics:  metrics.NewRelayMetrics(),
	})

	shutdown := func() error {
		sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer scancel()

		var errs []error
		if err := reg.CloseAll(sctx); err != nil {
			errs = append(errs, fmt.Errorf("close relays: %w", err))
		}
		queue.Stop(cfg.ShutdownTimeout)
		if err := emitter.Wait(sctx); err != nil {
			errs = append(errs, fmt.Errorf("power notifications: %w", err))
		}
		if jrnl != nil {
			if err := jrnl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close journal: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	if err := config.InitializeRegistry(ctx, cfg, reg, config.NewDevices()); err != nil {
		_ = shutdown()
		return fmt.Errorf("failed to initialize relays: %w", err)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			_ = shutdown()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	if cfg.API.IsEnabled() {
		server := api.NewServer(cfg.API, reg, apiJournal)
		go func() {
			serverDone <- server.Start(ctx)
		}()
	} else {
		logger.Info("API server disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", "relays", reg.CountRelays())

	var serveErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if cfg.API.IsEnabled() {
			serveErr = <-serverDone
		}
	case serveErr = <-serverDone:
		cancel()
	}

	if err := shutdown(); err != nil {
		logger.Error("Shutdown error", logger.KeyError, err)
		return errors.Join(serveErr, err)
	}
	if serveErr != nil {
		logger.Error("Server error", logger.KeyError, serveErr)
		return serveErr
	}

	logger.Info("Server stopped gracefully")
	return nil
}
