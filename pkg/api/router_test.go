package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/pkg/api/handlers"
	"github.com/marmos91/dittorelay/pkg/device/memory"
	"github.com/marmos91/dittorelay/pkg/journal"
	"github.com/marmos91/dittorelay/pkg/metrics"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

type testEnv struct {
	clock   *clockwork.FakeClock
	pool    *memory.Pool
	reg     *registry.Registry
	journal *journal.Journal
	server  *httptest.Server
}

func newTestEnv(t *testing.T, withJournal bool) *testEnv {
	t.Helper()

	q := workqueue.New(workqueue.Config{Workers: 1})
	q.Start()
	t.Cleanup(func() { q.Stop(time.Second) })

	env := &testEnv{clock: clockwork.NewFakeClock(), pool: memory.NewPool()}
	require.NoError(t, env.pool.Create("disk0", 1<<20))

	opts := registry.Options{Clock: env.clock}
	var j handlers.Journal
	if withJournal {
		var err error
		env.journal, err = journal.New(&journal.Config{SQLite: journal.SQLiteConfig{Path: filepath.Join(t.TempDir(), "j.db")}})
		require.NoError(t, err)
		t.Cleanup(func() { _ = env.journal.Close() })
		opts.Observer = env.journal
		j = env.journal
	}

	env.reg = registry.NewRegistry(q, opts)
	_, err := env.reg.AddRelayWithBackend(context.Background(), relay.Config{
		Name: "r0", Endpoint: "disk0", IdleTimeout: time.Second, WakeTimeout: 100 * time.Millisecond,
	}, env.pool, "memory")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.reg.CloseAll(context.Background()) })

	env.server = httptest.NewServer(NewRouter(env.reg, j, APIConfig{MaxTransfer: 4096}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[handlers.Response](t, resp)
	assert.Equal(t, "healthy", body.Status)

	resp = env.do(t, http.MethodGet, "/health/relays", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.reg.CloseAll(context.Background()))
	resp = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRelayIntrospection(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/api/v1/relays", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]handlers.RelayResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, "r0", list[0].Name)
	assert.Equal(t, "memory", list[0].Backend)
	assert.Equal(t, relay.StateActive, list[0].State)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, handlers.ContentTypeProblemJSON, resp.Header.Get("Content-Type"))

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[handlers.StatusResponse](t, resp)
	assert.Equal(t, handlers.StatusResponse{Type: "table", Status: "disk0 1000 100"}, st)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/status?type=info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", decode[handlers.StatusResponse](t, resp).Status)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/status?type=xml", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/transitions", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "journal disabled")
}

func TestDataPath(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodPut, "/api/v1/relays/r0/data?offset=100", []byte("hello relay"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/data?offset=100&length=11", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello relay", string(got))

	resp = env.do(t, http.MethodPost, "/api/v1/relays/r0/flush", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/relays/r0/discard?offset=100&length=5", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/data?offset=100&length=11", nil)
	got, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "\x00\x00\x00\x00\x00 relay", string(got))

	for _, path := range []string{
		"/api/v1/relays/r0/data?offset=0",                // missing length
		"/api/v1/relays/r0/data?offset=0&length=8192",    // over the transfer limit
		"/api/v1/relays/r0/data?offset=-1&length=1",      // negative offset
		"/api/v1/relays/r0/data?offset=1048576&length=1", // past the end
	} {
		resp = env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	resp = env.do(t, http.MethodPut, "/api/v1/relays/r0/data?offset=0", make([]byte, 8192))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSuspendResume(t *testing.T) {
	env := newTestEnv(t, true)
	r0, err := env.reg.GetRelay("r0")
	require.NoError(t, err)

	// Go idle, then suspend: data requests fail fast instead of waking.
	env.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return !r0.Snapshot().Attached }, 2*time.Second, time.Millisecond)

	resp := env.do(t, http.MethodPost, "/api/v1/relays/r0/suspend", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[handlers.RelayResponse](t, resp).TransitionsEnabled)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/data?offset=0&length=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/relays/r0/resume", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[handlers.RelayResponse](t, resp).TransitionsEnabled)

	require.Eventually(t, func() bool {
		recs, err := env.journal.List(context.Background(), "r0", 0)
		return err == nil && len(recs) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/transitions?limit=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]journal.Record](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/api/v1/relays/r0/transitions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)

	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelayFromPath(t *testing.T) {
	assert.Equal(t, "r0", relayFromPath("/api/v1/relays/r0/data"))
	assert.Equal(t, "r0", relayFromPath("/api/v1/relays/r0"))
	assert.Empty(t, relayFromPath("/health"))
}
