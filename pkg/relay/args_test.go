package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Config
		wantErr string
	}{
		{
			name: "valid",
			args: []string{"/dev/sdb", "1000", "500"},
			want: Config{Name: "/dev/sdb", Endpoint: "/dev/sdb", IdleTimeout: time.Second, WakeTimeout: 500 * time.Millisecond, AcquireTimeout: 30 * time.Second},
		},
		{
			name: "zero timeouts",
			args: []string{"disk0", "0", "0"},
			want: Config{Name: "disk0", Endpoint: "disk0", AcquireTimeout: 30 * time.Second},
		},
		{
			name: "max uint32",
			args: []string{"disk0", "4294967295", "1"},
			want: Config{Name: "disk0", Endpoint: "disk0", IdleTimeout: 4294967295 * time.Millisecond, WakeTimeout: time.Millisecond, AcquireTimeout: 30 * time.Second},
		},
		{name: "too few", args: []string{"disk0", "1000"}, wantErr: "args"},
		{name: "too many", args: []string{"disk0", "1", "2", "3"}, wantErr: "args"},
		{name: "empty", args: nil, wantErr: "args"},
		{name: "non-numeric idle", args: []string{"disk0", "soon", "1"}, wantErr: "idle_timeout_ms"},
		{name: "negative wake", args: []string{"disk0", "1", "-1"}, wantErr: "wake_timeout_ms"},
		{name: "hex idle", args: []string{"disk0", "0x10", "1"}, wantErr: "idle_timeout_ms"},
		{name: "overflow", args: []string{"disk0", "4294967296", "1"}, wantErr: "idle_timeout_ms"},
		{name: "blank endpoint", args: []string{" ", "1", "1"}, wantErr: "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				var cerr *ConfigError
				require.True(t, errors.As(err, &cerr))
				assert.Equal(t, tt.wantErr, cerr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTable(t *testing.T) {
	cfg, err := ParseTable("  disk0\t250   75 ")
	require.NoError(t, err)
	assert.Equal(t, "disk0", cfg.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.IdleTimeout)
	assert.Equal(t, 75*time.Millisecond, cfg.WakeTimeout)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Endpoint: "disk0", Name: "custom", AcquireTimeout: time.Second}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "custom", cfg.Name)
	assert.Equal(t, time.Second, cfg.AcquireTimeout)

	bad := Config{Endpoint: "disk0", Begin: -1}
	assert.True(t, IsConfigError(bad.Validate()))
}

func TestParseStatusType(t *testing.T) {
	for in, want := range map[string]StatusType{"": StatusTable, "table": StatusTable, "INFO": StatusInfo} {
		got, err := ParseStatusType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStatusType("json")
	assert.Error(t, err)
	assert.Equal(t, "info", StatusInfo.String())
}
