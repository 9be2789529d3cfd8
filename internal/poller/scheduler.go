package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TaskFunc is one unit of polled work. It must honour ctx: the context is
// cancelled when the cycle's interval runs out.
type TaskFunc func(ctx context.Context) error

// TaskInfo is the poller-internal representation of a task, decoupled from
// the public pollpool.Task type to avoid circular dependencies.
type TaskInfo struct {
	// Name identifies the task in logs and results.
	Name string

	// Run performs the work.
	Run TaskFunc
}

// TaskStatus is how a task settled within its cycle.
type TaskStatus string

const (
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// TaskResult holds the settled outcome of one task in one cycle.
type TaskResult struct {
	Name    string
	Status  TaskStatus
	Latency time.Duration
	Error   error
}

// CycleResult is the raw tally of one cycle, read after every worker exited.
type CycleResult struct {
	// ID uniquely identifies the cycle.
	ID string

	// Started is the wall-clock start time, for display.
	Started time.Time

	// StartedAt and EndedAt are monotonic nanosecond offsets from the
	// scheduler's epoch.
	StartedAt int64
	EndedAt   int64

	// PoolSize is the number of workers the cycle ran with.
	PoolSize int

	// Interval is the nominal interval, which is also the cycle deadline.
	Interval time.Duration

	Failed    int
	Cancelled int
	Succeeded int

	// Tasks holds one result per task, in task order.
	Tasks []TaskResult
}

// PoolSizer supplies the worker count for the next cycle.
type PoolSizer interface {
	PoolSize() int
}

// Scheduler runs every task once per interval on a pool of workers.
//
// Each cycle gets a context whose deadline is the interval. Tasks still
// queued or running when it expires are counted as cancelled. The worker
// count is read from the [PoolSizer] at the start of every cycle. A hook
// registered with [Scheduler.OnCycle] runs before that read, so a resize it
// makes takes effect on the next cycle.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	tasks    []TaskInfo
	interval time.Duration
	sizer    PoolSizer
	observer func(CycleResult)
	results  chan CycleResult
	logger   *slog.Logger
	epoch    time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a cycle [Scheduler].
//
// Parameters:
//   - tasks: work to run every cycle
//   - interval: time between cycle starts, also each cycle's deadline
//   - sizer: source of the worker count for each cycle
//   - logger: logger for scheduler events (panic recovery, etc.)
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(tasks []TaskInfo, interval time.Duration, sizer PoolSizer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		interval: interval,
		sizer:    sizer,
		results:  make(chan CycleResult, 1),
		logger:   logger,
		epoch:    time.Now(),
	}
}

// Results returns a receive-only channel of completed cycles.
//
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan CycleResult {
	return s.results
}

// OnCycle registers fn to run on the loop goroutine after every completed
// cycle, before the next cycle reads its pool size. Cycles handed to fn are
// not sent on [Scheduler.Results].
//
// OnCycle must be called before Start; later calls have no effect on a
// running loop.
func (s *Scheduler) OnCycle(fn func(CycleResult)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Start begins the cycle loop in a background goroutine.
//
// The first cycle runs immediately, then one per interval. If a cycle is
// still running when a tick is due, that tick is skipped.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; if Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	loopCtx := s.ctx // capture under lock to avoid race
	observer := s.observer
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		s.emit(loopCtx, observer, s.RunCycle(loopCtx))

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.emit(loopCtx, observer, s.RunCycle(loopCtx))
			}
		}
	}()
}

// Stop halts the scheduler and waits for the running cycle to settle.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}

func (s *Scheduler) emit(ctx context.Context, observer func(CycleResult), result CycleResult) {
	if ctx.Err() != nil {
		// partial cycle cut short by shutdown
		return
	}
	if observer != nil {
		observer(result)
		return
	}
	select {
	case s.results <- result:
	case <-ctx.Done():
	}
}

// now returns the monotonic clock reading in nanoseconds.
func (s *Scheduler) now() int64 {
	return time.Since(s.epoch).Nanoseconds()
}

// RunCycle runs every task once and returns the settled tally.
//
// It blocks until all workers have exited, so the counts it returns are
// final.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	poolSize := s.sizer.PoolSize()
	if poolSize < 1 {
		poolSize = 1
	}

	result := CycleResult{
		ID:       uuid.NewString(),
		Started:  time.Now(),
		PoolSize: poolSize,
		Interval: s.interval,
		Tasks:    make([]TaskResult, len(s.tasks)),
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	var failed, cancelled, succeeded atomic.Int64

	jobs := make(chan int, len(s.tasks))
	for i := range s.tasks {
		jobs <- i
	}
	close(jobs)

	result.StartedAt = s.now()

	var wg sync.WaitGroup
	for w := 0; w < poolSize; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				task := s.tasks[i]
				tr := TaskResult{Name: task.Name}

				if cycleCtx.Err() != nil {
					tr.Status = StatusCancelled
					tr.Error = cycleCtx.Err()
					cancelled.Add(1)
					result.Tasks[i] = tr
					continue
				}

				start := time.Now()
				err := s.safeRun(cycleCtx, task)
				tr.Latency = time.Since(start)
				tr.Error = err

				switch {
				case cycleCtx.Err() != nil:
					tr.Status = StatusCancelled
					if tr.Error == nil {
						tr.Error = cycleCtx.Err()
					}
					cancelled.Add(1)
				case err != nil:
					tr.Status = StatusFailed
					failed.Add(1)
				default:
					tr.Status = StatusSucceeded
					succeeded.Add(1)
				}
				result.Tasks[i] = tr
			}
		}()
	}
	wg.Wait()

	result.EndedAt = s.now()
	result.Failed = int(failed.Load())
	result.Cancelled = int(cancelled.Load())
	result.Succeeded = int(succeeded.Load())
	return result
}

// safeRun calls the task with panic recovery.
// A panic is logged with its stack and a correlation ID and counts as a
// failure.
func (s *Scheduler) safeRun(ctx context.Context, task TaskInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("task panic",
				"task", task.Name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("task panic (correlation_id: %s)", correlationID)
		}
	}()
	return task.Run(ctx)
}
