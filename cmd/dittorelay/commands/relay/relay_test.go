package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittorelay/pkg/apiclient"
)

func TestRelayList_Rows(t *testing.T) {
	list := RelayList{
		{Name: "r0", State: "ACTIVE", Endpoint: "disk0", Backend: "memory", IdleTimeoutMs: 60000, WakeTimeoutMs: 5000, Attached: true, TransitionsEnabled: true},
		{Name: "r1", State: "IDLE", Endpoint: "disk1", Backend: "file", IdleTimeoutMs: 1000, WakeTimeoutMs: 10, Waiters: 2, Pending: "wake"},
	}

	rows := list.Rows()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Len(t, row, len(list.Headers()))
	}
	assert.Equal(t, "r0", rows[0][0])
	assert.Equal(t, "-", rows[0][8])
	assert.Equal(t, "enabled", rows[0][9])
	assert.Equal(t, "2", rows[1][7])
	assert.Equal(t, "wake", rows[1][8])
	assert.Equal(t, "suspended", rows[1][9])
}

func TestTransitionList_Rows(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	list := TransitionList{
		{Kind: "sleep", From: "ACTIVE", To: "IDLE", Switch: "off", At: at},
		{Kind: "attach_failed", Error: "device unavailable", At: at},
	}

	rows := list.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2026-01-02 03:04:05", "sleep", "ACTIVE", "IDLE", "off", "-"}, rows[0])
	assert.Equal(t, "-", rows[1][2])
	assert.Equal(t, "device unavailable", rows[1][5])
}

func TestRelayDetails(t *testing.T) {
	now := time.Now()
	kv := relayDetails(&apiclient.Relay{
		Name:           "r0",
		State:          "ACTIVE",
		Attached:       true,
		Device:         "disk0",
		LastTransition: now.Add(-time.Minute),
	}, now)

	keys := make(map[string]string, len(kv))
	for _, pair := range kv {
		keys[pair[0]] = pair[1]
	}
	assert.Equal(t, "r0", keys["Name"])
	assert.Equal(t, "disk0", keys["Device"])
	assert.NotContains(t, keys, "Pending")
	assert.Contains(t, keys, "Last transition")
}
