package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxDrainSize = 1 << 20 // 1MB

// connection pooling limits; the pool may run many probes against one host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 32
	defaultMaxConnsPerHost     = 64
	defaultIdleConnTimeout     = 60 * time.Second
)

// ProbeError reports an HTTP probe that got a response with a failing status.
type ProbeError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Probe describes one HTTP request run as a task.
type Probe struct {
	Method  string
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// Check, when set, inspects the body of a non-failing response and
	// returns an error to fail the probe.
	Check func(body []byte, statusCode int) error
}

// Client is an HTTP client wrapper for running probes as cycle tasks.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so each probe can carry its own timeout under the cycle deadline.
// Response bodies are read up to 1MB, either for the probe's check or to be
// discarded so connections can be reused.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new probing [Client] with connection pooling limits.
// Timeouts are applied per request in [Client.Do].
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Do runs the probe. Without a check it returns nil for 2xx and 3xx
// responses and a [ProbeError] otherwise. With a check, the check decides
// for every status code.
//
// A probe timeout is a failure of the probe. Cancellation of the parent
// ctx (the cycle deadline) is surfaced as the context's error so the
// scheduler can count it as a cancellation.
func (c *Client) Do(ctx context.Context, p Probe) error {
	parent := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	method := p.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range p.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if p.Check == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
		if resp.StatusCode >= 400 {
			return &ProbeError{Method: method, URL: p.URL, StatusCode: resp.StatusCode}
		}
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDrainSize))
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := p.Check(body, resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: check failed: %w", method, p.URL, err)
	}
	return nil
}

// Task wraps a probe as a [TaskFunc] bound to this client.
func (c *Client) Task(p Probe) TaskFunc {
	return func(ctx context.Context) error {
		return c.Do(ctx, p)
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times and on a nil client; the client remains
// usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
