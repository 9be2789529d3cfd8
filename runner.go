package pollpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/pollpool/internal/metrics"
	"github.com/jpalmerr/pollpool/internal/poller"
	"github.com/jpalmerr/pollpool/internal/server"
	"github.com/jpalmerr/pollpool/internal/store"
	"github.com/jpalmerr/pollpool/internal/telemetry"
)

const (
	defaultInterval = 10 * time.Second
	defaultPort     = 8080
)

// Runner runs tasks in cycles on a worker pool it resizes between cycles.
//
// Every cycle runs each task once, bounded by the current pool size and a
// deadline equal to the interval. When the cycle settles, its
// [CycleOutcome] is compared with the previous one and a [Controller]
// picks the pool size for the next cycle. Cycles are stored, exported as
// Prometheus metrics and traces, and served over HTTP.
//
// The typical lifecycle is:
//
//	r, err := pollpool.New(pollpool.WithTasks(tasks...))
//	if err != nil {
//	    slog.Error("failed to create runner", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	r.Start(ctx) // blocks until context cancelled
type Runner struct {
	tasks            []Task
	interval         time.Duration
	port             int
	serve            bool
	logger           *slog.Logger
	history          int
	sqlitePath       string
	registry         *prom.Registry
	metricsNamespace string
	tracerProvider   trace.TracerProvider
	cycleCallbacks   []func(CycleReport)

	controller *Controller
}

// New creates a [Runner] with the given options.
//
// At least one task must be configured via [WithTask] or [WithTasks], and
// task names must be unique. Other options have defaults:
//   - Interval: 10 seconds
//   - Pool: min 1, max 32, initial 4
//   - Port: 8080
//   - History: 256 cycles in memory
//
// Returns an error if no tasks are configured or if any option is invalid.
func New(opts ...Option) (*Runner, error) {
	cfg := &runnerConfig{
		interval:        defaultInterval,
		sizer:           DefaultSizerConfig(),
		initialPoolSize: defaultInitialSize,
		port:            defaultPort,
		serve:           true,
		history:         store.DefaultHistory,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}

	seen := make(map[string]bool, len(cfg.tasks))
	for _, t := range cfg.tasks {
		if t.name == "" || (t.run == nil && t.url == "") {
			return nil, errors.New("tasks must be created with NewTask or NewHTTPTask")
		}
		if seen[t.name] {
			return nil, fmt.Errorf("duplicate task name: %q", t.name)
		}
		seen[t.name] = true
	}

	sizer, err := NewSizer(cfg.sizer)
	if err != nil {
		return nil, fmt.Errorf("invalid pool configuration: %w", err)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.registry
	if registry == nil {
		registry = prom.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Runner{
		tasks:            cfg.tasks,
		interval:         cfg.interval,
		port:             cfg.port,
		serve:            cfg.serve,
		logger:           logger,
		history:          cfg.history,
		sqlitePath:       cfg.sqlitePath,
		registry:         registry,
		metricsNamespace: cfg.metricsNamespace,
		tracerProvider:   cfg.tracerProvider,
		cycleCallbacks:   cfg.cycleCallbacks,
		controller:       NewController(sizer, cfg.initialPoolSize, logger),
	}, nil
}

// cycleSinks are the per-run destinations of every completed cycle.
type cycleSinks struct {
	store   store.Store
	metrics *metrics.Exporter
	tracer  *telemetry.Tracer
}

// Start runs cycles and serves the HTTP API until ctx is cancelled.
//
// The first cycle runs immediately, then one per interval. Start is a
// blocking call. Returns nil on graceful shutdown, or an error if the store
// cannot be opened, the metrics cannot be registered, or the HTTP server
// fails to start.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("pollpool starting",
		"task_count", len(r.tasks),
		"interval", r.interval.String(),
		"pool_size", r.controller.PoolSize(),
	)

	if ctx.Err() != nil {
		return nil
	}

	st, err := r.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			r.logger.Error("failed to close store", "error", err)
		}
	}()

	exporter, err := metrics.NewExporter(r.metricsNamespace, r.registry, metrics.Options{})
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	exporter.SetPoolSize(r.controller.PoolSize())

	sinks := cycleSinks{
		store:   st,
		metrics: exporter,
		tracer:  telemetry.NewTracer(r.tracerProvider),
	}

	g, gctx := errgroup.WithContext(ctx)

	if r.serve {
		httpServer := server.NewServer(st, poolReporter{r}, r.registry, r.port, r.logger)
		if err := httpServer.Start(gctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		r.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", r.port))

		// handlers drain before the deferred store close
		g.Go(func() error {
			httpServer.Wait()
			return nil
		})
	}

	client := poller.NewClient()
	defer client.Close()

	scheduler := poller.NewScheduler(r.toPollerTasks(client), r.interval, r.controller, r.logger)
	// the decision for a cycle is in place before the next one reads its size
	scheduler.OnCycle(func(result poller.CycleResult) {
		r.handleCycle(gctx, result, sinks)
	})
	scheduler.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	err = g.Wait()
	r.logger.Info("pollpool stopped")
	return err
}

func (r *Runner) openStore() (store.Store, error) {
	if r.sqlitePath == "" {
		return store.NewMemoryStore(r.history), nil
	}
	st, err := store.OpenSQLite(r.sqlitePath, r.history)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// handleCycle closes the loop for one settled cycle: outcome, decision,
// store, metrics, span and callbacks, in that order.
func (r *Runner) handleCycle(ctx context.Context, result poller.CycleResult, sinks cycleSinks) {
	outcome, err := NewCycleOutcome(snapshotFromResult(result))
	if err != nil {
		r.logger.Error("discarding invalid cycle", "cycle_id", result.ID, "error", err)
		return
	}

	decision := r.controller.Observe(outcome)

	// the record outlives shutdown of the run context
	if err := sinks.store.Append(context.WithoutCancel(ctx), toRecord(result, outcome, decision)); err != nil {
		r.logger.Error("failed to store cycle", "cycle_id", result.ID, "error", err)
	}

	sinks.metrics.RecordCycle(metrics.Cycle{
		NextPoolSize: decision.To,
		Duration:     outcome.Duration(),
		Failed:       outcome.Failed(),
		Cancelled:    outcome.Cancelled(),
		Succeeded:    outcome.Succeeded(),
		Weight:       decision.Weight,
		HasWeight:    decision.HasWeight,
		Triggered:    decision.Triggered,
		Trigger:      decision.Trigger.String(),
		Action:       decision.Action.String(),
	})

	sinks.tracer.RecordCycle(ctx, telemetry.CycleSpan{
		ID:           result.ID,
		Start:        result.Started,
		End:          result.Started.Add(outcome.Duration()),
		PoolSize:     outcome.PoolSize(),
		NextPoolSize: decision.To,
		Failed:       outcome.Failed(),
		Cancelled:    outcome.Cancelled(),
		Succeeded:    outcome.Succeeded(),
		Weight:       decision.Weight,
		HasWeight:    decision.HasWeight,
		Triggered:    decision.Triggered,
		Trigger:      decision.Trigger.String(),
		Action:       decision.Action.String(),
		Reason:       decision.Reason,
	})

	if len(r.cycleCallbacks) > 0 {
		report := CycleReport{
			ID:        result.ID,
			StartedAt: result.Started,
			Outcome:   outcome,
			Decision:  decision,
		}
		for _, cb := range r.cycleCallbacks {
			// each callback gets its own task slice
			report.Tasks = toTaskReports(result.Tasks)
			invokeCallbackSafe(cb, report, r.logger)
		}
	}

	// DEBUG for clean cycles to reduce noise
	logAttrs := []any{
		"cycle_id", result.ID,
		"outcome", outcome.String(),
		"next_pool_size", decision.To,
	}
	if outcome.Failed() > 0 || outcome.Cancelled() > 0 {
		r.logger.Warn("cycle completed with failures", logAttrs...)
		for _, t := range result.Tasks {
			if t.Error != nil {
				r.logger.Debug("task did not succeed", "cycle_id", result.ID, "task", t.Name, "status", t.Status, "error", t.Error.Error())
			}
		}
	} else {
		r.logger.Debug("cycle completed", logAttrs...)
	}
}

// toPollerTasks converts tasks to the scheduler's format, binding HTTP
// probes to client.
func (r *Runner) toPollerTasks(client *poller.Client) []poller.TaskInfo {
	result := make([]poller.TaskInfo, len(r.tasks))
	for i, t := range r.tasks {
		run := poller.TaskFunc(t.run)
		if t.IsHTTP() {
			run = client.Task(poller.Probe{
				Method:  t.method,
				URL:     t.url,
				Headers: copyMap(t.headers),
				Timeout: t.timeout,
				Check:   t.check,
			})
		}
		result[i] = poller.TaskInfo{Name: t.name, Run: run}
	}
	return result
}

// Tasks returns a copy of the configured tasks.
func (r *Runner) Tasks() []Task {
	cp := make([]Task, len(r.tasks))
	copy(cp, r.tasks)
	return cp
}

// Interval returns the configured interval between cycle starts.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Port returns the configured HTTP port.
func (r *Runner) Port() int {
	return r.port
}

// PoolSize returns the pool size the next cycle will run with.
func (r *Runner) PoolSize() int {
	return r.controller.PoolSize()
}

// LastDecision returns the most recent sizing decision, or nil before the
// first cycle completes.
func (r *Runner) LastDecision() *Decision {
	return r.controller.LastDecision()
}

// poolReporter serves the controller's state at /api/pool.
type poolReporter struct{ r *Runner }

func (p poolReporter) PoolState() server.PoolState {
	c := p.r.controller
	bounds := c.sizer.Config()
	state := server.PoolState{
		Size: c.PoolSize(),
		Min:  bounds.Min,
		Max:  bounds.Max,
	}

	if baseline := c.Baseline(); baseline != nil {
		rec := outcomeRecord(*baseline)
		state.Baseline = &rec
	}
	if d := c.LastDecision(); d != nil {
		state.LastDecision = &server.Decision{
			Action:    d.Action.String(),
			From:      d.From,
			To:        d.To,
			Triggered: d.Triggered,
			Trigger:   d.Trigger.String(),
			Reason:    d.Reason,
			Weight:    weightPtr(*d),
		}
	}
	return state
}

// snapshotFromResult converts a scheduler result into the outcome input.
func snapshotFromResult(cr poller.CycleResult) Snapshot {
	return Snapshot{
		Failed:     cr.Failed,
		Cancelled:  cr.Cancelled,
		Succeeded:  cr.Succeeded,
		StartedAt:  cr.StartedAt,
		EndedAt:    cr.EndedAt,
		PoolSize:   cr.PoolSize,
		IntervalMs: cr.Interval.Milliseconds(),
	}
}

// outcomeRecord converts an outcome alone into a store record; decision
// fields are left empty.
func outcomeRecord(o CycleOutcome) store.CycleRecord {
	rec := store.CycleRecord{
		DurationMs: o.DurationMs(),
		PoolSize:   o.PoolSize(),
		IntervalMs: o.Interval().Milliseconds(),
		Failed:     o.Failed(),
		Cancelled:  o.Cancelled(),
		Succeeded:  o.Succeeded(),
		Bucket:     fmt.Sprintf("%016x", o.BucketKey()),
	}
	if w, err := o.Weight(); err == nil {
		rec.Weight = &w
	}
	return rec
}

// toRecord converts a settled cycle and its decision into a store record.
func toRecord(cr poller.CycleResult, o CycleOutcome, d Decision) store.CycleRecord {
	rec := outcomeRecord(o)
	rec.ID = cr.ID
	rec.StartedAt = cr.Started
	rec.Triggered = d.Triggered
	rec.Trigger = d.Trigger.String()
	rec.Action = d.Action.String()
	rec.Reason = d.Reason
	rec.NextPoolSize = d.To
	return rec
}

func weightPtr(d Decision) *float64 {
	if !d.HasWeight {
		return nil
	}
	w := d.Weight
	return &w
}

// toTaskReports copies scheduler task results into the public type.
func toTaskReports(results []poller.TaskResult) []TaskReport {
	reports := make([]TaskReport, len(results))
	for i, tr := range results {
		reports[i] = TaskReport{
			Name:    tr.Name,
			Status:  TaskStatus(tr.Status),
			Latency: tr.Latency,
			Error:   tr.Error,
		}
	}
	return reports
}

// invokeCallbackSafe calls a cycle callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(CycleReport), report CycleReport, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("cycle callback panicked",
				"panic", rec,
				"cycle_id", report.ID,
			)
		}
	}()
	cb(report)
}
