package pollpool

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// runnerConfig holds mutable state during Runner construction.
type runnerConfig struct {
	tasks            []Task
	interval         time.Duration
	sizer            SizerConfig
	initialPoolSize  int
	port             int
	serve            bool
	logger           *slog.Logger
	history          int
	sqlitePath       string
	registry         *prom.Registry
	metricsNamespace string
	tracerProvider   trace.TracerProvider
	cycleCallbacks   []func(CycleReport)
}

// Option configures a [Runner] during construction with [New].
//
// Options are applied in order; later options win. Options return an error
// if validation fails.
type Option func(*runnerConfig) error

// WithTask adds a single [Task] to every cycle.
func WithTask(t Task) Option {
	return func(cfg *runnerConfig) error {
		cfg.tasks = append(cfg.tasks, t)
		return nil
	}
}

// WithTasks adds multiple tasks to every cycle.
//
// Example:
//
//	r, err := pollpool.New(
//	    pollpool.WithTasks(api, db, cache),
//	)
func WithTasks(tasks ...Task) Option {
	return func(cfg *runnerConfig) error {
		cfg.tasks = append(cfg.tasks, tasks...)
		return nil
	}
}

// WithInterval sets the time between cycle starts, which is also each
// cycle's deadline. Defaults to 10 seconds.
//
// Cycle outcomes carry the interval in whole milliseconds, so it returns an
// error if the duration is below 1ms or not a whole number of milliseconds.
func WithInterval(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d < time.Millisecond {
			return fmt.Errorf("interval must be at least 1ms, got %s", d)
		}
		if d%time.Millisecond != 0 {
			return fmt.Errorf("interval must be a whole number of milliseconds, got %s", d)
		}
		cfg.interval = d
		return nil
	}
}

// WithPool sets the pool bounds and the size of the first cycle.
//
// The initial size is clamped into [minSize, maxSize]. Defaults are 1, 32 and 4.
//
// Returns an error if minSize is below 1 or maxSize is below minSize.
func WithPool(minSize, maxSize, initial int) Option {
	return func(cfg *runnerConfig) error {
		if minSize < 1 {
			return errors.New("pool min must be at least 1")
		}
		if maxSize < minSize {
			return errors.New("pool max must be at least pool min")
		}
		cfg.sizer.Min = minSize
		cfg.sizer.Max = maxSize
		cfg.initialPoolSize = initial
		return nil
	}
}

// WithSizer replaces the sizing policy, including its pool bounds.
//
// The config is validated by [New].
func WithSizer(c SizerConfig) Option {
	return func(cfg *runnerConfig) error {
		cfg.sizer = c
		return nil
	}
}

// WithPort sets the HTTP port for the API server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *runnerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithoutServer disables the HTTP API server. Cycles still run, are stored
// and reach callbacks.
func WithoutServer() Option {
	return func(cfg *runnerConfig) error {
		cfg.serve = false
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *runnerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHistory sets how many cycle records are kept. Defaults to 256.
//
// Returns an error if n is not positive.
func WithHistory(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 1 {
			return errors.New("history must be positive")
		}
		cfg.history = n
		return nil
	}
}

// WithSQLite persists cycle records to a SQLite database at path instead of
// keeping them in memory. The history limit still applies.
//
// Returns an error if path is empty.
func WithSQLite(path string) Option {
	return func(cfg *runnerConfig) error {
		if path == "" {
			return errors.New("sqlite path cannot be empty")
		}
		cfg.sqlitePath = path
		return nil
	}
}

// WithRegistry registers the runner's metrics on reg and serves reg at
// /metrics. By default a private registry with Go and process collectors
// is used.
//
// Returns an error if reg is nil.
func WithRegistry(reg *prom.Registry) Option {
	return func(cfg *runnerConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithMetricsNamespace sets the Prometheus metric prefix. Defaults to
// "pollpool".
func WithMetricsNamespace(ns string) Option {
	return func(cfg *runnerConfig) error {
		cfg.metricsNamespace = ns
		return nil
	}
}

// WithTracerProvider records a span per cycle on tp. The caller owns tp
// and its shutdown. By default no spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *runnerConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithCycleCallback registers a function called after every completed cycle.
//
// The callback receives a [CycleReport] with the outcome, the sizing
// decision and per-task results. Multiple callbacks run in registration
// order.
//
// Callbacks must be non-blocking: they run synchronously on the cycle loop,
// after the sizing decision and before the next cycle starts, so a slow
// callback delays the next cycle.
// Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithCycleCallback(cb func(CycleReport)) Option {
	return func(cfg *runnerConfig) error {
		if cb == nil {
			return nil
		}
		cfg.cycleCallbacks = append(cfg.cycleCallbacks, cb)
		return nil
	}
}
