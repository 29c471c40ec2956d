// Package client is the resource-managed HTTP client agents use to talk to
// the marketplace. Handles constructed with the same base URL and retry
// policy share one underlying session through a process-wide registry;
// transient failures are retried per policy and everything else propagates
// unchanged.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client is one logical handle on the marketplace. It is safe for
// concurrent use once connected.
type Client struct {
	baseURL string
	policy  RetryPolicy
	key     string

	mu      sync.Mutex
	session *session
	refs    int

	token   string
	agentID string
}

// New builds an unconnected handle. Connect must be called before any
// request; Close releases the handle's references.
func New(baseURL string, policy RetryPolicy) *Client {
	return &Client{
		baseURL: baseURL,
		policy:  policy,
		key:     sessionKey(baseURL, policy),
	}
}

// Connect takes a reference on the shared session, opening it if this is
// the first reference process-wide. Connect may be nested; each call needs
// a matching Close.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = acquireSession(c.key)
	c.refs++
	return nil
}

// Close drops one reference. The shared session is torn down only when the
// last reference across all handles is released.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refs == 0 {
		return fmt.Errorf("client for %s is not connected", c.baseURL)
	}
	c.refs--
	releaseSession(c.key)
	if c.refs == 0 {
		c.session = nil
	}
	return nil
}

// AgentID returns the id this handle registered as, empty before Register.
func (c *Client) AgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

func (c *Client) httpClient() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("client for %s is not connected", c.baseURL)
	}
	return c.session.httpClient, nil
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) setIdentity(agentID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = agentID
	c.token = token
}

// do sends one JSON request with transparent retries. A nil out discards the
// response body.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	httpClient, err := c.httpClient()
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
	}

	maxAttempts := c.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.policy.delay(attempt)):
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("build %s %s request: %w", method, path, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if token := c.bearerToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			if retryableError(err) && ctx.Err() == nil {
				lastErr = err
				continue
			}
			return err
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, path, err)
			}
			return nil
		}

		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
		if !c.policy.retryableStatus(resp.StatusCode) {
			return httpErr
		}
		lastErr = httpErr
	}
	return lastErr
}
