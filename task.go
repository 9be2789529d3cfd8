package pollpool

import (
	"context"
	"errors"
	"net/url"
	"time"
)

const defaultTaskTimeout = 10 * time.Second

// Task is a unit of work run once per cycle by the worker pool.
//
// A Task is either a plain function created with [NewTask] or an HTTP probe
// created with [NewHTTPTask]. Tasks are immutable after creation; getters
// return copies of mutable data.
//
// A task counts as succeeded when it returns nil before the cycle deadline,
// failed when it returns an error before the deadline, and cancelled when it
// is still queued or running when the deadline passes.
type Task struct {
	name string
	run  func(ctx context.Context) error

	// HTTP probe fields; url is empty for plain tasks.
	url     string
	method  string
	headers map[string]string
	timeout time.Duration
	check   ResponseCheck
}

// Name returns the task's name, used in logs and cycle reports.
func (t Task) Name() string {
	return t.name
}

// URL returns the probe URL, or "" for plain tasks.
func (t Task) URL() string {
	return t.url
}

// Method returns the probe's HTTP method. Empty means GET.
func (t Task) Method() string {
	return t.method
}

// Headers returns a copy of the probe's custom HTTP headers.
func (t Task) Headers() map[string]string {
	return copyMap(t.headers)
}

// Timeout returns the probe's request timeout.
// Defaults to 10 seconds if not explicitly set via [WithTimeout].
func (t Task) Timeout() time.Duration {
	return t.timeout
}

// Check returns the probe's [ResponseCheck], or nil.
func (t Task) Check() ResponseCheck {
	return t.check
}

// IsHTTP reports whether the task is an HTTP probe.
func (t Task) IsHTTP() bool {
	return t.url != ""
}

// NewTask creates a [Task] that runs fn every cycle.
//
// fn receives a context that is cancelled at the cycle deadline and should
// return promptly once it is done.
//
// Returns an error if the name is empty or fn is nil.
//
// Example:
//
//	task, err := pollpool.NewTask("refresh-cache", func(ctx context.Context) error {
//	    return cache.Refresh(ctx)
//	})
func NewTask(name string, fn func(ctx context.Context) error) (Task, error) {
	if name == "" {
		return Task{}, errors.New("task name cannot be empty")
	}
	if fn == nil {
		return Task{}, errors.New("task function cannot be nil")
	}
	return Task{name: name, run: fn}, nil
}

// NewHTTPTask creates a [Task] that sends an HTTP request every cycle.
//
// The rawURL parameter must be a valid URL with a scheme (http:// or https://).
// A 2xx or 3xx response is a success; anything else, a transport error, or a
// request timeout is a failure. A [ResponseCheck] set with [WithCheck]
// replaces the status rule and judges every response.
//
// Returns an error if the name is empty, the URL is invalid, or an option
// fails.
//
// Example:
//
//	task, err := pollpool.NewHTTPTask("api", "https://api.example.com/health",
//	    pollpool.WithTimeout(5 * time.Second),
//	    pollpool.WithCheck(pollpool.ExpectJSONField("status")),
//	)
func NewHTTPTask(name, rawURL string, opts ...TaskOption) (Task, error) {
	if name == "" {
		return Task{}, errors.New("task name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Task{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Task{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &taskConfig{
		headers: make(map[string]string),
		timeout: defaultTaskTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Task{}, err
		}
	}

	return Task{
		name:    name,
		url:     rawURL,
		method:  cfg.method,
		headers: cfg.headers,
		timeout: cfg.timeout,
		check:   cfg.check,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
