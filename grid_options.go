package pollpool

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// gridConfig holds configuration during task grid construction.
type gridConfig struct {
	urlTemplate string
	dimensions  map[string][]string
	headers     map[string]string
	timeout     time.Duration
	method      string
	check       ResponseCheck
}

// GridOption configures task grid generation with [NewTaskGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template, with dimension keys as variables.
//
// Example:
//
//	WithURLTemplate("https://api.example.com/health?env={{.env}}&region={{.region}}")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values whose cartesian product
// generates the tasks.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridHeaders adds HTTP headers to all generated tasks.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
func WithGridHeaders(keyValues ...string) GridOption {
	return func(cfg *gridConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithGridHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithGridTimeout sets the request timeout for all generated tasks.
// Zero keeps the task default.
func WithGridTimeout(d time.Duration) GridOption {
	return func(cfg *gridConfig) error {
		if d < 0 {
			return errors.New("timeout cannot be negative")
		}
		cfg.timeout = d
		return nil
	}
}

// WithGridMethod sets the HTTP method for all generated tasks.
//
// Returns an error if the method is not GET, HEAD, or POST.
func WithGridMethod(method string) GridOption {
	return func(cfg *gridConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithGridCheck sets a [ResponseCheck] for all generated tasks.
func WithGridCheck(c ResponseCheck) GridOption {
	return func(cfg *gridConfig) error {
		cfg.check = c
		return nil
	}
}
