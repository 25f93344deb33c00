package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/internal/bytesize"
	"github.com/marmos91/dittorelay/pkg/device"
	"github.com/marmos91/dittorelay/pkg/power"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	q := workqueue.New(workqueue.Config{Workers: 1})
	q.Start()
	reg := registry.NewRegistry(q, registry.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.CloseAll(ctx)
		q.Stop(time.Second)
	})
	return reg
}

func memoryRelay(name string) RelayConfig {
	rc := RelayConfig{
		Name:          name,
		Endpoint:      name,
		IdleTimeoutMs: 3600000,
		WakeTimeoutMs: 10,
		Device:        DeviceConfig{Type: DeviceMemory, Size: bytesize.ByteSize(64 * bytesize.KiB)},
	}
	applyRelayDefaults(&rc)
	return rc
}

func TestInitializeRegistry(t *testing.T) {
	imgPath := filepath.Join(t.TempDir(), "disk.img")

	cfg := GetDefaultConfig()
	cfg.Relays = []RelayConfig{
		memoryRelay("mem0"),
		{
			Name:  "img",
			Table: imgPath + " 3600000 10",
			Begin: bytesize.ByteSize(4 * bytesize.KiB),
			Device: DeviceConfig{
				Type:    DeviceFile,
				Size:    bytesize.ByteSize(64 * bytesize.KiB),
				Options: map[string]any{"create": true},
			},
		},
	}
	ApplyDefaults(cfg)
	require.NoError(t, Validate(cfg))

	reg := newRegistry(t)
	devices := NewDevices()
	require.NoError(t, InitializeRegistry(context.Background(), cfg, reg, devices))

	assert.Equal(t, 2, reg.CountRelays())
	assert.Equal(t, DeviceMemory, reg.Backend("mem0"))
	assert.Equal(t, DeviceFile, reg.Backend("img"))

	info, err := os.Stat(imgPath)
	require.NoError(t, err)
	assert.EqualValues(t, 64*1024, info.Size())

	r, err := reg.GetRelay("img")
	require.NoError(t, err)
	assert.EqualValues(t, 4096, r.Config().Begin)

	req := &device.Request{Op: device.OpWrite, Offset: 4096, Length: 4, Data: []byte("ping")}
	require.NoError(t, r.Dispatch(context.Background(), req))

	assert.Equal(t, 1, devices.Pool.Stats("mem0").Attached)
}

func TestInitializeRegistry_FailureClosesCreatedRelays(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Relays = []RelayConfig{
		memoryRelay("ok"),
		{
			Name:     "missing",
			Endpoint: filepath.Join(t.TempDir(), "absent.img"),
			Device:   DeviceConfig{Type: DeviceFile},
		},
	}
	ApplyDefaults(cfg)

	reg := newRegistry(t)
	devices := NewDevices()

	err := InitializeRegistry(context.Background(), cfg, reg, devices)
	require.Error(t, err)
	assert.ErrorIs(t, err, relay.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "missing")

	assert.Equal(t, 0, reg.CountRelays())
	assert.Equal(t, 0, devices.Pool.Stats("ok").Attached)
	assert.Equal(t, 1, devices.Pool.Stats("ok").Releases)
}

func TestInitializeRegistry_DuplicateMemoryDisk(t *testing.T) {
	cfg := GetDefaultConfig()
	a := memoryRelay("a")
	b := memoryRelay("b")
	b.Endpoint = "a"
	cfg.Relays = []RelayConfig{a, b}

	err := InitializeRegistry(context.Background(), cfg, newRegistry(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestBuildNotifier(t *testing.T) {
	off := false

	tests := []struct {
		name string
		cfg  PowerConfig
		want int
	}{
		{name: "default log only", cfg: PowerConfig{}, want: 1},
		{name: "log disabled", cfg: PowerConfig{Log: &off}, want: 0},
		{
			name: "all targets",
			cfg: PowerConfig{
				Command: CommandConfig{Path: "/usr/local/bin/relay-power", Args: []string{"--dry-run"}},
				Webhook: WebhookConfig{URL: "http://localhost:9000/power"},
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			applyPowerDefaults(&tt.cfg)
			m := BuildNotifier(&tt.cfg)
			assert.Len(t, m, tt.want)
		})
	}

	cfg := PowerConfig{Command: CommandConfig{Path: "/bin/true"}}
	applyPowerDefaults(&cfg)
	m := BuildNotifier(&cfg)
	require.Len(t, m, 2)
	assert.IsType(t, power.Log{}, m[0])
	assert.Equal(t, power.Command{Path: "/bin/true"}, m[1])
}

func TestDecodeOptions(t *testing.T) {
	dc := DeviceConfig{
		Type: DeviceS3,
		Size: bytesize.ByteSize(bytesize.GiB),
		Options: map[string]any{
			"chunk_size":       "1Mi",
			"region":           "eu-west-1",
			"force_path_style": "true",
		},
	}

	opts, err := dc.S3Options()
	require.NoError(t, err)
	assert.Equal(t, bytesize.MiB, opts.ChunkSize)
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.True(t, opts.ForcePathStyle)

	dc.Options["bucket"] = "nope"
	_, err = dc.S3Options()
	assert.ErrorContains(t, err, "bucket")
}
