// Package apiclient provides a REST API client for the dittorelay CLI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is the dittorelay API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client. The timeout must cover a full wake of an
// IDLE relay when data is read or written.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithTimeout returns a copy of the client using timeout per request.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	return &Client{
		baseURL:    c.baseURL,
		httpClient: &http.Client{Timeout: timeout, Transport: c.httpClient.Transport},
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one call. Exactly one of JSON and Raw may be set.
type request struct {
	method string
	path   string
	query  url.Values
	json   any
	raw    []byte
}

// send performs the request and returns the response when the status is
// below 400. The caller closes the body.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	var body io.Reader
	contentType := ""
	switch {
	case r.raw != nil:
		body = bytes.NewReader(r.raw)
		contentType = "application/octet-stream"
	case r.json != nil:
		data, err := json.Marshal(r.json)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// do performs a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, r request, result any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, request{method: http.MethodGet, path: path, query: query}, result)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, result any) error {
	return c.do(ctx, request{method: http.MethodPost, path: path, query: query}, result)
}

// relayPath builds /api/v1/relays/{name}/suffix with name escaped.
func relayPath(name string, suffix ...string) string {
	p := "/api/v1/relays/" + url.PathEscape(name)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}
