package apiclient

import (
	"context"
	"encoding/json"
	"time"
)

// HealthResponse is the wrapper returned by the health endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// RelayHealth is the health summary of one relay.
type RelayHealth struct {
	Name     string `json:"name" yaml:"name"`
	State    string `json:"state" yaml:"state"`
	Attached bool   `json:"attached" yaml:"attached"`
	Status   string `json:"status" yaml:"status"`
}

// Health checks liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ready checks readiness: at least one relay and a reachable journal.
func (c *Client) Ready(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health/ready", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RelaysHealth returns the per-relay health summary.
func (c *Client) RelaysHealth(ctx context.Context) ([]RelayHealth, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health/relays", nil, &out); err != nil {
		return nil, err
	}
	var relays []RelayHealth
	if len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, &relays); err != nil {
			return nil, err
		}
	}
	return relays, nil
}
