package pollpool

import "time"

// TaskStatus is how a task settled within its cycle.
//
// TaskStatus is a string type so it serializes and logs readably while
// keeping type safety through the defined constants.
type TaskStatus string

const (
	// TaskSucceeded indicates the task returned without error before the
	// cycle deadline.
	TaskSucceeded TaskStatus = "succeeded"

	// TaskFailed indicates the task returned an error before the deadline.
	TaskFailed TaskStatus = "failed"

	// TaskCancelled indicates the task was still queued or running when the
	// cycle deadline passed, or finished only after it.
	TaskCancelled TaskStatus = "cancelled"
)

// String implements fmt.Stringer.
func (s TaskStatus) String() string {
	return string(s)
}

// TaskReport holds how a single task settled in a cycle.
type TaskReport struct {
	// Name is the task name.
	Name string

	// Status is how the task settled.
	Status TaskStatus

	// Latency is the time the task ran for. Zero for tasks cancelled while
	// still queued.
	Latency time.Duration

	// Error is the task's error, if any.
	Error error
}

// CycleReport describes one completed cycle and the sizing decision it led to.
//
// CycleReport is delivered to callbacks registered with [WithCycleCallback].
// Its Tasks slice is a copy owned by the receiver.
type CycleReport struct {
	// ID uniquely identifies the cycle.
	ID string

	// StartedAt is the wall-clock start of the cycle.
	StartedAt time.Time

	// Outcome is the settled tally of the cycle.
	Outcome CycleOutcome

	// Decision is the pool sizing decision taken after the cycle.
	Decision Decision

	// Tasks holds one report per task, in task order.
	Tasks []TaskReport
}
