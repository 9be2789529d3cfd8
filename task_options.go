package pollpool

import (
	"errors"
	"net/http"
	"time"
)

// taskConfig holds mutable state during HTTP task construction.
type taskConfig struct {
	headers map[string]string
	timeout time.Duration
	method  string
	check   ResponseCheck
}

// TaskOption configures an HTTP [Task] during construction with [NewHTTPTask].
//
// Options return an error if validation fails.
//
// Built-in options: [WithHeaders], [WithTimeout], [WithMethod], [WithCheck].
type TaskOption func(*taskConfig) error

// WithHeaders adds custom HTTP headers to every request of this task.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	task, err := pollpool.NewHTTPTask("api", url,
//	    pollpool.WithHeaders("Authorization", "Bearer token123"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) TaskOption {
	return func(cfg *taskConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the request timeout for this task.
//
// A request that exceeds its own timeout is a failure, not a cancellation:
// only the cycle deadline cancels tasks. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) TaskOption {
	return func(cfg *taskConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the HTTP method. Supported methods are GET (default),
// HEAD, and POST.
//
// Returns an error if the method is not GET, HEAD, or POST.
func WithMethod(method string) TaskOption {
	return func(cfg *taskConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithCheck sets a [ResponseCheck] run against every response, whatever its
// status code. A check error fails the task.
//
// Example:
//
//	task, err := pollpool.NewHTTPTask("api", url,
//	    pollpool.WithCheck(pollpool.ExpectBodyContains("healthy")),
//	)
func WithCheck(c ResponseCheck) TaskOption {
	return func(cfg *taskConfig) error {
		cfg.check = c
		return nil
	}
}
