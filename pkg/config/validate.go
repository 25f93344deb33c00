package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittorelay/pkg/relay"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first, then the cross-field rules tags cannot
// express: relay names are unique, each relay has either a table line or an
// endpoint, and device options decode for the chosen backend.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Journal.Enabled {
		if err := cfg.Journal.Validate(); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if cfg.Power.Command.Path == "" && len(cfg.Power.Command.Args) > 0 {
		return errors.New("power.command: args given without path")
	}

	seen := make(map[string]int, len(cfg.Relays))
	for i := range cfg.Relays {
		rc := &cfg.Relays[i]

		rcfg, err := rc.RelayConfig()
		if err != nil {
			return fmt.Errorf("relays[%d]: %w", i, err)
		}
		if j, dup := seen[rcfg.Name]; dup {
			return fmt.Errorf("relays[%d]: name %q already used by relays[%d]", i, rcfg.Name, j)
		}
		seen[rcfg.Name] = i

		if err := validateDevice(&rc.Device); err != nil {
			return fmt.Errorf("relays[%d] (%s): %w", i, rcfg.Name, err)
		}
	}

	return nil
}

func validateDevice(cfg *DeviceConfig) error {
	switch cfg.Type {
	case DeviceMemory, DeviceBadger, DeviceS3:
		if cfg.Size == 0 {
			return fmt.Errorf("device.size is required for %s devices", cfg.Type)
		}
	case DeviceFile:
		opts, err := cfg.FileOptions()
		if err != nil {
			return err
		}
		if opts.Create && cfg.Size == 0 {
			return errors.New("device.size is required when options.create is set")
		}
		return nil
	}

	switch cfg.Type {
	case DeviceBadger:
		opts, err := cfg.BadgerOptions()
		if err != nil {
			return err
		}
		if opts.SectorSize > 0 && !cfg.Size.Aligned(opts.SectorSize) {
			return fmt.Errorf("device.size %s is not a multiple of sector_size %s", cfg.Size, opts.SectorSize)
		}
	case DeviceS3:
		if _, err := cfg.S3Options(); err != nil {
			return err
		}
	}
	return nil
}

// formatValidationError turns validator errors into one readable error.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value()))
		case "min", "gte", "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// RelayConfig converts the file form into a validated relay.Config.
func (rc *RelayConfig) RelayConfig() (relay.Config, error) {
	var cfg relay.Config

	if rc.Table != "" {
		if rc.Endpoint != "" || rc.IdleTimeoutMs != 0 || rc.WakeTimeoutMs != 0 {
			return relay.Config{}, errors.New("table and endpoint/timeouts are mutually exclusive")
		}
		parsed, err := relay.ParseTable(rc.Table)
		if err != nil {
			return relay.Config{}, err
		}
		cfg = parsed
	} else {
		cfg = relay.Config{
			Endpoint:    rc.Endpoint,
			IdleTimeout: millis(rc.IdleTimeoutMs),
			WakeTimeout: millis(rc.WakeTimeoutMs),
		}
	}

	if rc.Name != "" {
		cfg.Name = rc.Name
	}
	cfg.Begin = rc.Begin.Int64()
	cfg.AcquireTimeout = rc.AcquireTimeout

	if err := cfg.Validate(); err != nil {
		return relay.Config{}, err
	}
	return cfg, nil
}
