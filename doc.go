// Package pollpool runs periodic work on a worker pool that sizes itself
// from the outcome of each cycle.
//
// Every cycle runs each configured task once. The cycle's deadline is the
// interval: tasks still queued or running when it passes are cancelled.
// Once a cycle settles, its [CycleOutcome] scores it with a weight,
//
//	weight = (total-cancelled)/total + (interval-duration)/interval
//
// and compares it with the previous cycle to decide whether the last pool
// size change needs to be re-evaluated ([CycleOutcome.TriggerRecalculate]).
// A [Sizer] turns that into a grow, shrink or hold [Decision] and a
// [Controller] publishes the new size for the next cycle.
//
// # Quick Start
//
//	api, _ := pollpool.NewHTTPTask("api", "https://api.example.com/health")
//	r, _ := pollpool.New(
//	    pollpool.WithTasks(api),
//	    pollpool.WithInterval(5 * time.Second),
//	    pollpool.WithPool(1, 16, 4),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	r.Start(ctx) // blocks until context is cancelled
//
// # Tasks
//
// Plain tasks wrap a function with [NewTask]. HTTP probes are created with
// [NewHTTPTask] and succeed on 2xx and 3xx responses; a [ResponseCheck] such
// as [ExpectJSONField] or [ExpectBodyContains] can narrow that further.
// [NewTaskGrid] expands a URL template over dimension values into one
// probe per combination.
//
// # Architecture
//
//   - internal/poller: Cycle scheduler with deadline-bound worker pool and HTTP probe client
//   - internal/store: Cycle history in memory or SQLite, with pub/sub for live updates
//   - internal/server: JSON API, Server-Sent Events and Prometheus endpoint
//   - internal/metrics: Prometheus collectors for cycles and pool size
//   - internal/telemetry: OpenTelemetry span per cycle
//
// The internal packages are not part of the public API and may change
// without notice.
package pollpool
