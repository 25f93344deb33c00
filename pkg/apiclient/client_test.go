package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/pkg/api"
	"github.com/marmos91/dittorelay/pkg/device/memory"
	"github.com/marmos91/dittorelay/pkg/registry"
	"github.com/marmos91/dittorelay/pkg/relay"
	"github.com/marmos91/dittorelay/pkg/relay/workqueue"
)

func newTestServer(t *testing.T) (*Client, *memory.Pool) {
	t.Helper()

	q := workqueue.New(workqueue.Config{Workers: 1})
	q.Start()
	t.Cleanup(func() { q.Stop(time.Second) })

	pool := memory.NewPool()
	require.NoError(t, pool.Create("disk0", 1<<16))

	reg := registry.NewRegistry(q, registry.Options{})
	_, err := reg.AddRelayWithBackend(context.Background(), relay.Config{
		Name: "r0", Endpoint: "disk0", IdleTimeout: time.Hour, WakeTimeout: 10 * time.Millisecond,
	}, pool, "memory")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.CloseAll(context.Background()) })

	srv := httptest.NewServer(api.NewRouter(reg, nil, api.APIConfig{MaxTransfer: 4096}))
	t.Cleanup(srv.Close)

	return New(srv.URL + "/"), pool
}

func TestNew(t *testing.T) {
	client := New("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", client.BaseURL())

	short := client.WithTimeout(time.Second)
	assert.Equal(t, time.Second, short.httpClient.Timeout)
	assert.Equal(t, 60*time.Second, client.httpClient.Timeout)
}

func TestRelayIntrospection(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	relays, err := client.ListRelays(ctx)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, "r0", relays[0].Name)
	assert.Equal(t, "memory", relays[0].Backend)
	assert.Equal(t, "ACTIVE", relays[0].State)
	assert.True(t, relays[0].Attached)

	st, err := client.RelayStatus(ctx, "r0", "table")
	require.NoError(t, err)
	assert.Equal(t, "disk0 3600000 10", st.Status)

	_, err = client.GetRelay(ctx, "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
	assert.Contains(t, apiErr.Error(), "relay not found")
}

func TestDataRoundTrip(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, client.Write(ctx, "r0", 100, []byte("hello")))
	require.NoError(t, client.Flush(ctx, "r0"))

	data, err := client.Read(ctx, "r0", 100, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, client.Discard(ctx, "r0", 100, 5))
	data, err = client.Read(ctx, "r0", 100, 5)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5), data)

	_, err = client.Read(ctx, "r0", 1<<16, 1)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsBadRequest())
}

func TestSuspendResume(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	r, err := client.SuspendRelay(ctx, "r0")
	require.NoError(t, err)
	assert.False(t, r.TransitionsEnabled)

	r, err = client.ResumeRelay(ctx, "r0")
	require.NoError(t, err)
	assert.True(t, r.TransitionsEnabled)
}

func TestTransitionsWithoutJournal(t *testing.T) {
	client, _ := newTestServer(t)

	_, err := client.Transitions(context.Background(), "r0", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
}

func TestHealth(t *testing.T) {
	client, _ := newTestServer(t)
	ctx := context.Background()

	h, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	ready, err := client.Ready(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", ready.Status)

	relays, err := client.RelaysHealth(ctx)
	require.NoError(t, err)
	require.Len(t, relays, 1)
	assert.Equal(t, "r0", relays[0].Name)
}

func TestDecodeError_Wrapper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy","error":"no relays configured"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Ready(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsUnavailable())
	assert.Equal(t, "no relays configured", apiErr.Error())
}

func TestDecodeError_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).Flush(context.Background(), "r0")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Error())
}
