package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittorelay/internal/bytesize"
	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/device/badger"
	"github.com/marmos91/dittorelay/pkg/device/file"
	"github.com/marmos91/dittorelay/pkg/device/memory"
	"github.com/marmos91/dittorelay/pkg/device/s3"
	"github.com/marmos91/dittorelay/pkg/registry"
)

// Device backend types.
const (
	DeviceMemory = "memory"
	DeviceFile   = "file"
	DeviceBadger = "badger"
	DeviceS3     = "s3"
)

// FileOptions are the options of a file device.
type FileOptions struct {
	Create bool `mapstructure:"create"`
	Sync   bool `mapstructure:"sync"`
}

// BadgerOptions are the options of a badger device.
type BadgerOptions struct {
	SectorSize bytesize.ByteSize `mapstructure:"sector_size"`
	SyncWrites bool              `mapstructure:"sync_writes"`
}

// S3Options are the options of an s3 device.
type S3Options struct {
	ChunkSize       bytesize.ByteSize `mapstructure:"chunk_size"`
	Region          string            `mapstructure:"region"`
	Endpoint        string            `mapstructure:"endpoint"`
	ForcePathStyle  bool              `mapstructure:"force_path_style"`
	AccessKeyID     string            `mapstructure:"access_key_id"`
	SecretAccessKey string            `mapstructure:"secret_access_key"`
}

// FileOptions decodes Options for a file device.
func (c *DeviceConfig) FileOptions() (FileOptions, error) {
	var o FileOptions
	return o, decodeOptions(c.Options, &o)
}

// BadgerOptions decodes Options for a badger device.
func (c *DeviceConfig) BadgerOptions() (BadgerOptions, error) {
	var o BadgerOptions
	return o, decodeOptions(c.Options, &o)
}

// S3Options decodes Options for an s3 device.
func (c *DeviceConfig) S3Options() (S3Options, error) {
	var o S3Options
	return o, decodeOptions(c.Options, &o)
}

// decodeOptions decodes a free-form options map into out. Unknown keys are
// rejected so typos surface at load time.
func decodeOptions(in map[string]any, out any) error {
	if len(in) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       configDecodeHooks(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("device.options: %w", err)
	}
	return nil
}

// Devices builds device providers. Memory devices of every relay live in one
// shared pool so tests and demos can power them on and off by name.
type Devices struct {
	Pool *memory.Pool
}

// NewDevices creates a Devices with an empty memory pool.
func NewDevices() *Devices {
	return &Devices{Pool: memory.NewPool()}
}

// Provider builds the provider for one relay. For memory devices the disk
// named by the relay endpoint is created in the pool.
func (d *Devices) Provider(ctx context.Context, rc *RelayConfig, endpoint string) (device.Provider, error) {
	dc := &rc.Device

	switch dc.Type {
	case DeviceMemory:
		if err := d.Pool.Create(endpoint, dc.Size.Int64()); err != nil {
			return nil, err
		}
		return d.Pool, nil

	case DeviceFile:
		opts, err := dc.FileOptions()
		if err != nil {
			return nil, err
		}
		return file.New(file.Config{
			Create: opts.Create,
			Size:   dc.Size.Int64(),
			Sync:   opts.Sync,
		}), nil

	case DeviceBadger:
		opts, err := dc.BadgerOptions()
		if err != nil {
			return nil, err
		}
		return badger.New(badger.Config{
			Size:       dc.Size.Int64(),
			SectorSize: int(opts.SectorSize),
			SyncWrites: opts.SyncWrites,
		})

	case DeviceS3:
		opts, err := dc.S3Options()
		if err != nil {
			return nil, err
		}
		return s3.NewFromConfig(ctx, s3.Config{
			Size:            dc.Size.Int64(),
			ChunkSize:       opts.ChunkSize.Int64(),
			Region:          opts.Region,
			Endpoint:        opts.Endpoint,
			ForcePathStyle:  opts.ForcePathStyle,
			AccessKeyID:     opts.AccessKeyID,
			SecretAccessKey: opts.SecretAccessKey,
		})

	default:
		return nil, fmt.Errorf("unknown device type %q", dc.Type)
	}
}

// InitializeRegistry creates every configured relay in reg. Each relay
// attaches its device before this returns. On failure the relays created so
// far are closed.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg := registry.NewRegistry(queue, registry.Options{})
//	if err := config.InitializeRegistry(ctx, cfg, reg, config.NewDevices()); err != nil {
//	    ...
//	}
func InitializeRegistry(ctx context.Context, cfg *Config, reg *registry.Registry, devices *Devices) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	if devices == nil {
		devices = NewDevices()
	}

	logger.Debug("Initializing relays from configuration", "count", len(cfg.Relays))

	for i := range cfg.Relays {
		rc := &cfg.Relays[i]

		rcfg, err := rc.RelayConfig()
		if err != nil {
			return abortInit(reg, fmt.Errorf("relays[%d]: %w", i, err))
		}

		provider, err := devices.Provider(ctx, rc, rcfg.Endpoint)
		if err != nil {
			return abortInit(reg, fmt.Errorf("relay %q: %w", rcfg.Name, err))
		}

		if _, err := reg.AddRelayWithBackend(ctx, rcfg, provider, rc.Device.Type); err != nil {
			return abortInit(reg, fmt.Errorf("relay %q: %w", rcfg.Name, err))
		}
	}

	logger.Info("Registered relays", "count", reg.CountRelays())
	return nil
}

func abortInit(reg *registry.Registry, err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cerr := reg.CloseAll(ctx); cerr != nil {
		logger.Warn("Failed to close relays after init error", logger.KeyError, cerr)
	}
	return err
}

func millis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
