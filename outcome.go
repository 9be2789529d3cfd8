package pollpool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Construction and scoring errors returned by [NewCycleOutcome] and
// [CycleOutcome.Weight]. Callers should test with [errors.Is].
var (
	ErrNegativeCount    = errors.New("cycle counts must not be negative")
	ErrNegativeDuration = errors.New("cycle ended before it started")
	ErrInvalidPoolSize  = errors.New("pool size must be at least 1")
	ErrInvalidInterval  = errors.New("nominal interval must be positive")
	ErrEmptyCycle       = errors.New("cycle has no settled tasks")
)

// Snapshot is the raw tally of one polling cycle, taken once every task in
// the cycle has settled. It is the input to [NewCycleOutcome].
type Snapshot struct {
	// Failed, Cancelled and Succeeded count settled tasks by outcome.
	Failed    int
	Cancelled int
	Succeeded int

	// StartedAt and EndedAt are monotonic timestamps in nanoseconds, read
	// from the same clock.
	StartedAt int64
	EndedAt   int64

	// PoolSize is the number of workers active during the cycle.
	PoolSize int

	// IntervalMs is the configured target period between cycle starts.
	IntervalMs int64
}

// CycleOutcome is the immutable result of one polling cycle.
//
// A CycleOutcome is built once via [NewCycleOutcome] and never mutated. It
// carries the settled task counts, timing, and the pool size and interval
// that were in effect, and derives the weight score and the recalculation
// trigger from them. Comparisons are always pairwise: the current outcome
// against the immediately previous one.
//
// CycleOutcome values are comparable with ==, which compares every field.
// [CycleOutcome.BucketKey] is a separate, lossy key for caching layers and
// must not be used as equality.
type CycleOutcome struct {
	failed    int
	cancelled int
	succeeded int
	total     int
	startedAt int64
	endedAt   int64
	duration  int64 // ns
	poolSize  int
	interval  int64 // ns
}

// NewCycleOutcome validates a [Snapshot] and freezes it into a [CycleOutcome].
//
// Invalid input is rejected, never clamped. The returned error wraps one of
// [ErrNegativeCount], [ErrNegativeDuration], [ErrInvalidPoolSize] or
// [ErrInvalidInterval].
func NewCycleOutcome(s Snapshot) (CycleOutcome, error) {
	if s.Failed < 0 || s.Cancelled < 0 || s.Succeeded < 0 {
		return CycleOutcome{}, fmt.Errorf("%w: failed=%d cancelled=%d succeeded=%d",
			ErrNegativeCount, s.Failed, s.Cancelled, s.Succeeded)
	}
	if s.EndedAt < s.StartedAt {
		return CycleOutcome{}, fmt.Errorf("%w: started=%d ended=%d", ErrNegativeDuration, s.StartedAt, s.EndedAt)
	}
	if s.PoolSize < 1 {
		return CycleOutcome{}, fmt.Errorf("%w: got %d", ErrInvalidPoolSize, s.PoolSize)
	}
	if s.IntervalMs <= 0 {
		return CycleOutcome{}, fmt.Errorf("%w: got %dms", ErrInvalidInterval, s.IntervalMs)
	}

	return CycleOutcome{
		failed:    s.Failed,
		cancelled: s.Cancelled,
		succeeded: s.Succeeded,
		total:     s.Failed + s.Cancelled + s.Succeeded,
		startedAt: s.StartedAt,
		endedAt:   s.EndedAt,
		duration:  s.EndedAt - s.StartedAt,
		poolSize:  s.PoolSize,
		interval:  (time.Duration(s.IntervalMs) * time.Millisecond).Nanoseconds(),
	}, nil
}

// PoolSize returns the number of workers that ran the cycle.
func (c CycleOutcome) PoolSize() int { return c.poolSize }

// Total returns failed + cancelled + succeeded.
func (c CycleOutcome) Total() int { return c.total }

// Failed returns the number of tasks that returned an error.
func (c CycleOutcome) Failed() int { return c.failed }

// Cancelled returns the number of tasks cut off by the cycle deadline.
func (c CycleOutcome) Cancelled() int { return c.cancelled }

// Succeeded returns the number of tasks that completed without error.
func (c CycleOutcome) Succeeded() int { return c.succeeded }

// StartedAt returns the monotonic start timestamp in nanoseconds.
func (c CycleOutcome) StartedAt() int64 { return c.startedAt }

// EndedAt returns the monotonic end timestamp in nanoseconds.
func (c CycleOutcome) EndedAt() int64 { return c.endedAt }

// Duration returns how long the cycle took.
func (c CycleOutcome) Duration() time.Duration { return time.Duration(c.duration) }

// DurationMs returns the cycle duration truncated to milliseconds.
// It is meant for display; scoring uses the nanosecond duration.
func (c CycleOutcome) DurationMs() int64 { return time.Duration(c.duration).Milliseconds() }

// Interval returns the nominal interval the cycle was scheduled with.
func (c CycleOutcome) Interval() time.Duration { return time.Duration(c.interval) }

// Weight scores the cycle as
//
//	(total - cancelled) / total  +  (interval - duration) / interval
//
// The first term is the fraction of work that was not cancelled. The second
// is the slack left in the interval: positive when the cycle finished early,
// negative when it overran. The sum is at most 2 but has no lower bound:
// overrunning cycles are not clamped to 0.
//
// Returns [ErrEmptyCycle] when no task settled, instead of NaN.
func (c CycleOutcome) Weight() (float64, error) {
	if c.total == 0 {
		return 0, ErrEmptyCycle
	}
	return (float64(c.total)-float64(c.cancelled))/float64(c.total) + c.Slack(), nil
}

// Slack returns the second term of [CycleOutcome.Weight] on its own:
// (interval - duration) / interval.
func (c CycleOutcome) Slack() float64 {
	return (float64(c.interval) - float64(c.duration)) / float64(c.interval)
}

// TriggerReason names the rule that decided a recalculation query.
type TriggerReason string

const (
	// ReasonNoBaseline means there was no previous outcome to compare with.
	ReasonNoBaseline TriggerReason = "no_baseline"

	// ReasonPoolGrowth means the pool grew since the previous cycle.
	ReasonPoolGrowth TriggerReason = "pool_growth"

	// ReasonRisingCancellations means cancellations rose cycle over cycle.
	ReasonRisingCancellations TriggerReason = "rising_cancellations"

	// ReasonNone means no rule fired.
	ReasonNone TriggerReason = "none"
)

// String implements fmt.Stringer.
func (r TriggerReason) String() string { return string(r) }

// TriggerRecalculate reports whether the pool size should be recalculated,
// comparing this cycle against previous. A nil previous never triggers.
//
// It is a pure function of the two outcomes.
func (c CycleOutcome) TriggerRecalculate(previous *CycleOutcome) bool {
	trigger, _ := c.Recalculation(previous)
	return trigger
}

// Recalculation is [CycleOutcome.TriggerRecalculate] plus the rule that
// decided it. Rules are evaluated in order and the first match wins:
//
//  1. no previous outcome: false
//  2. previous pool smaller than this pool: true
//  3. both cycles had cancellations and they increased: true
//  4. otherwise: false
func (c CycleOutcome) Recalculation(previous *CycleOutcome) (bool, TriggerReason) {
	if previous == nil {
		return false, ReasonNoBaseline
	}
	if previous.poolSize < c.poolSize {
		return true, ReasonPoolGrowth
	}
	if c.cancelled > 0 && previous.cancelled > 0 && c.cancelled > previous.cancelled {
		return true, ReasonRisingCancellations
	}
	return false, ReasonNone
}

// BucketKey returns a coarse key for bucketing outcomes in caches.
//
// The key hashes ((succeeded + failed) / duration in seconds) * 2^poolSize.
// Outcomes that share a key are not necessarily equal in any field; compare
// CycleOutcome values with == for equality.
func (c CycleOutcome) BucketKey() uint64 {
	var throughput float64
	if c.duration > 0 {
		throughput = float64(c.succeeded+c.failed) / time.Duration(c.duration).Seconds()
	}
	v := throughput * math.Pow(2, float64(c.poolSize))

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return xxhash.Sum64(buf[:])
}

// String returns a one-line diagnostic summary.
func (c CycleOutcome) String() string {
	return fmt.Sprintf("[failed: %d, cancelled: %d, success: %d] took %dms in a pool of %d workers",
		c.failed, c.cancelled, c.succeeded, c.DurationMs(), c.poolSize)
}
