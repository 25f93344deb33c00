package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/pkg/device/memory"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

func newTestRegistry(t *testing.T) (*Registry, *memory.Pool) {
	t.Helper()
	q := workqueue.New(workqueue.Config{Workers: 1})
	q.Start()
	t.Cleanup(func() { q.Stop(time.Second) })

	pool := memory.NewPool()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Create(name, 4096))
	}
	return NewRegistry(q, Options{}), pool
}

func cfg(name string) relay.Config {
	return relay.Config{Name: name, Endpoint: name, IdleTimeout: time.Hour, WakeTimeout: time.Second}
}

func TestAddAndGetRelay(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.AddRelayWithBackend(ctx, cfg("b"), pool, "memory")
	require.NoError(t, err)
	assert.Equal(t, "b", r.Name())
	assert.Equal(t, "memory", reg.Backend("b"))

	_, err = reg.AddRelay(ctx, cfg("a"), pool)
	require.NoError(t, err)

	got, err := reg.GetRelay("b")
	require.NoError(t, err)
	assert.Same(t, r, got)

	_, err = reg.GetRelay("zzz")
	assert.ErrorIs(t, err, ErrRelayNotFound)

	names := []string{}
	for _, rl := range reg.ListRelays() {
		names = append(names, rl.Name())
	}
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, 2, reg.CountRelays())

	require.NoError(t, reg.CloseAll(ctx))
	assert.Equal(t, 0, reg.CountRelays())
	assert.Equal(t, 0, pool.Stats("a").Attached)
	assert.Equal(t, 0, pool.Stats("b").Attached)
}

func TestAddRelay_Duplicate(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.AddRelay(ctx, cfg("a"), pool)
	require.NoError(t, err)

	_, err = reg.AddRelay(ctx, cfg("a"), pool)
	assert.ErrorIs(t, err, ErrRelayExists)
	assert.Equal(t, 1, pool.Stats("a").Acquires)

	require.NoError(t, reg.CloseAll(ctx))
}

func TestAddRelay_Failures(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.AddRelay(ctx, relay.Config{Name: "x"}, pool)
	assert.True(t, relay.IsConfigError(err))

	_, err = reg.AddRelay(ctx, cfg("missing"), pool)
	assert.ErrorIs(t, err, relay.ErrDeviceUnavailable)
	assert.Equal(t, 0, reg.CountRelays())

	// A failed construction frees the name.
	require.NoError(t, pool.Create("missing", 512))
	_, err = reg.AddRelay(ctx, cfg("missing"), pool)
	require.NoError(t, err)
	require.NoError(t, reg.CloseAll(ctx))
}

func TestRemoveRelay(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	r, err := reg.AddRelay(ctx, cfg("c"), pool)
	require.NoError(t, err)

	require.NoError(t, reg.RemoveRelay(ctx, "c"))
	assert.ErrorIs(t, reg.RemoveRelay(ctx, "c"), ErrRelayNotFound)
	assert.True(t, r.Snapshot().Closed)
	assert.Equal(t, 1, pool.Stats("c").Releases)
}
