package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Relay is the API view of a relay.
type Relay struct {
	Name               string    `json:"name" yaml:"name"`
	Endpoint           string    `json:"endpoint" yaml:"endpoint"`
	Backend            string    `json:"backend,omitempty" yaml:"backend,omitempty"`
	State              string    `json:"state" yaml:"state"`
	IdleTimeoutMs      int64     `json:"idle_timeout_ms" yaml:"idle_timeout_ms"`
	WakeTimeoutMs      int64     `json:"wake_timeout_ms" yaml:"wake_timeout_ms"`
	Begin              int64     `json:"begin" yaml:"begin"`
	Attached           bool      `json:"attached" yaml:"attached"`
	Device             string    `json:"device,omitempty" yaml:"device,omitempty"`
	Waiters            int       `json:"waiters" yaml:"waiters"`
	InFlight           int       `json:"in_flight" yaml:"in_flight"`
	Pending            string    `json:"pending,omitempty" yaml:"pending,omitempty"`
	TransitionsEnabled bool      `json:"transitions_enabled" yaml:"transitions_enabled"`
	Closed             bool      `json:"closed" yaml:"closed"`
	Sleeps             uint64    `json:"sleeps" yaml:"sleeps"`
	Wakes              uint64    `json:"wakes" yaml:"wakes"`
	LastTransition     time.Time `json:"last_transition" yaml:"last_transition"`
}

// Status is one relay status line.
type Status struct {
	Type   string `json:"type" yaml:"type"`
	Status string `json:"status" yaml:"status"`
}

// Transition is one journaled relay event.
type Transition struct {
	ID       string    `json:"id" yaml:"id"`
	Relay    string    `json:"relay" yaml:"relay"`
	Endpoint string    `json:"endpoint" yaml:"endpoint"`
	Kind     string    `json:"kind" yaml:"kind"`
	From     string    `json:"from,omitempty" yaml:"from,omitempty"`
	To       string    `json:"to,omitempty" yaml:"to,omitempty"`
	Switch   string    `json:"switch,omitempty" yaml:"switch,omitempty"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
	At       time.Time `json:"at" yaml:"at"`
}

// ListRelays returns every relay, sorted by name.
func (c *Client) ListRelays(ctx context.Context) ([]Relay, error) {
	var out []Relay
	if err := c.get(ctx, "/api/v1/relays", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRelay returns one relay.
func (c *Client) GetRelay(ctx context.Context, name string) (*Relay, error) {
	var out Relay
	if err := c.get(ctx, relayPath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RelayStatus returns the status line of the given type ("table" or "info").
func (c *Client) RelayStatus(ctx context.Context, name, statusType string) (*Status, error) {
	var q url.Values
	if statusType != "" {
		q = url.Values{"type": {statusType}}
	}
	var out Status
	if err := c.get(ctx, relayPath(name, "status"), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuspendRelay stops state transitions of a relay.
func (c *Client) SuspendRelay(ctx context.Context, name string) (*Relay, error) {
	var out Relay
	if err := c.post(ctx, relayPath(name, "suspend"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResumeRelay re-enables state transitions of a relay.
func (c *Client) ResumeRelay(ctx context.Context, name string) (*Relay, error) {
	var out Relay
	if err := c.post(ctx, relayPath(name, "resume"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transitions returns up to limit journaled events of a relay, newest
// first. A zero limit uses the server default.
func (c *Client) Transitions(ctx context.Context, name string, limit int) ([]Transition, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []Transition
	if err := c.get(ctx, relayPath(name, "transitions"), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Read reads length bytes at offset through the relay. It blocks through a
// wake when the relay is IDLE.
func (c *Client) Read(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	resp, err := c.send(ctx, request{
		method: http.MethodGet,
		path:   relayPath(name, "data"),
		query:  rangeQuery(offset, length),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) != length {
		return nil, fmt.Errorf("short read: got %d of %d bytes", len(data), length)
	}
	return data, nil
}

// Write writes data at offset through the relay.
func (c *Client) Write(ctx context.Context, name string, offset int64, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   relayPath(name, "data"),
		query:  url.Values{"offset": {strconv.FormatInt(offset, 10)}},
		raw:    data,
	}, nil)
}

// Flush flushes the device behind the relay.
func (c *Client) Flush(ctx context.Context, name string) error {
	return c.post(ctx, relayPath(name, "flush"), nil, nil)
}

// Discard discards a byte range on the device behind the relay.
func (c *Client) Discard(ctx context.Context, name string, offset, length int64) error {
	return c.post(ctx, relayPath(name, "discard"), rangeQuery(offset, length), nil)
}

func rangeQuery(offset, length int64) url.Values {
	return url.Values{
		"offset": {strconv.FormatInt(offset, 10)},
		"length": {strconv.FormatInt(length, 10)},
	}
}
