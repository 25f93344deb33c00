//go:build integration

package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittorelay/pkg/power"
	"github.com/marmos91/dittorelay/pkg/relay"
)

// startPostgres runs a PostgreSQL container for the test and returns a
// journal configuration pointing at it.
func startPostgres(t *testing.T) *Config {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("dittorelay_test"),
		tcpostgres.WithUsername("dittorelay_test"),
		tcpostgres.WithPassword("dittorelay_test"),
		testcontainers.WithWaitStrategyAndDeadline(2*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "dittorelay_test",
			User:     "dittorelay_test",
			Password: "dittorelay_test",
		},
	}
}

func TestPostgresJournal(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	j, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, j.Healthcheck(ctx))

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.Observe(relay.Event{Kind: relay.EventTransition, Relay: "archive", Endpoint: "disk0", From: relay.StateActive, To: relay.StateIdle, At: base})
	j.Observe(relay.Event{Kind: relay.EventPowerIntent, Relay: "archive", Endpoint: "disk0", Intent: power.Off, At: base.Add(time.Second)})
	j.Observe(relay.Event{Kind: relay.EventAttachFailed, Relay: "archive", Endpoint: "disk0", Err: errors.New("gone"), At: base.Add(2 * time.Second)})
	j.Observe(relay.Event{Kind: relay.EventTransition, Relay: "scratch", Endpoint: "disk1", At: base})

	// Close drains the writer, so every event is stored afterwards.
	require.NoError(t, j.Close())

	j, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	recs, err := j.List(ctx, "archive", 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, string(relay.EventAttachFailed), recs[0].Kind)
	assert.Equal(t, "gone", recs[0].Error)
	assert.Equal(t, string(relay.EventPowerIntent), recs[1].Kind)
	assert.Equal(t, string(power.Off), recs[1].Intent)
	assert.Equal(t, string(relay.EventTransition), recs[2].Kind)
	assert.Equal(t, string(relay.StateActive), recs[2].From)
	assert.Equal(t, string(relay.StateIdle), recs[2].To)
	assert.True(t, base.Equal(recs[2].At))

	all, err := j.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
