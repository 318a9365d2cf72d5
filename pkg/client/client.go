package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is where linkgate-d listens unless configured otherwise.
const DefaultEndpoint = "http://127.0.0.1:1410"

// Client is the linkgate SDK client.
type Client struct {
	endpoint string
	http     *http.Client
	backoff  BackoffStrategy
	retries  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets how many times a 503 from InsertLinks is retried.
// Retrying is safe because insertion is idempotent per pair.
func WithRetries(n int, b BackoffStrategy) Option {
	return func(c *Client) {
		c.retries = n
		if b != nil {
			c.backoff = b
		}
	}
}

// NewClient creates a new linkgate client.
// endpoint defaults to DefaultEndpoint if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
		retries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the base URL the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// WaitReady polls Ping with backoff until the daemon answers or ctx is done.
func (c *Client) WaitReady(ctx context.Context) (Status, error) {
	for attempt := 0; ; attempt++ {
		status, err := c.Ping(ctx)
		if err == nil {
			return status, nil
		}
		if err := sleep(ctx, c.backoff.Next(attempt)); err != nil {
			return Status{}, fmt.Errorf("daemon not ready: %w", err)
		}
	}
}

// Links returns every stored link in engine order.
func (c *Client) Links(ctx context.Context) ([]Link, error) {
	var ls []Link
	if err := c.do(ctx, http.MethodGet, "/v1/links", nil, &ls); err != nil {
		return nil, err
	}
	if ls == nil {
		ls = []Link{}
	}
	return ls, nil
}

// InsertLinks inserts the batch and returns one link per request, in order.
// A 503 means the daemon's lock wait deadline passed before the batch ran,
// so it is retried with backoff.
func (c *Client) InsertLinks(ctx context.Context, objects []InputLink) ([]Link, error) {
	if objects == nil {
		objects = []InputLink{}
	}
	body, err := json.Marshal(insertRequest{Objects: objects})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links: %w", err)
	}

	for attempt := 0; ; attempt++ {
		var ls []Link
		err := c.do(ctx, http.MethodPost, "/v1/links", body, &ls)
		if err == nil {
			return ls, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Temporary() || attempt >= c.retries {
			return nil, err
		}
		if err := sleep(ctx, c.backoff.Next(attempt)); err != nil {
			return nil, err
		}
	}
}

// Query runs a raw GraphQL operation and returns its "data" member.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors GraphQLErrors   `json:"errors"`
	}
	if err := c.do(ctx, http.MethodPost, "/", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return resp.Data, resp.Errors
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = fmt.Sprintf("unexpected_status_%d", resp.StatusCode)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
