package pollpool

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Controller closes the sizing loop between cycles.
//
// It keeps the last non-empty [CycleOutcome] as the baseline for the next
// comparison, asks its [Sizer] for a [Decision], and publishes the resulting
// pool size for the scheduler to read before the next cycle. Empty cycles
// produce a hold decision and leave the baseline untouched.
//
// Controller is safe for concurrent use.
type Controller struct {
	sizer  *Sizer
	logger *slog.Logger

	poolSize atomic.Int64

	mu       sync.Mutex
	baseline *CycleOutcome
	last     *Decision
}

// NewController creates a [Controller] starting at initial workers, clamped
// to the sizer's bounds. A nil logger falls back to [slog.Default].
func NewController(sizer *Sizer, initial int, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{sizer: sizer, logger: logger}
	c.poolSize.Store(int64(sizer.Clamp(initial)))
	return c
}

// PoolSize returns the pool size the next cycle should run with.
func (c *Controller) PoolSize() int {
	return int(c.poolSize.Load())
}

// Baseline returns a copy of the outcome the next cycle will be compared
// against, or nil before the first non-empty cycle.
func (c *Controller) Baseline() *CycleOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseline == nil {
		return nil
	}
	cp := *c.baseline
	return &cp
}

// LastDecision returns the most recent decision, or nil before any cycle.
func (c *Controller) LastDecision() *Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

// Observe feeds a completed cycle into the loop and returns the decision.
func (c *Controller) Observe(current CycleOutcome) Decision {
	c.mu.Lock()
	decision := c.sizer.Next(current, c.baseline)
	if current.Total() > 0 {
		cp := current
		c.baseline = &cp
	}
	c.last = &decision
	c.poolSize.Store(int64(decision.To))
	c.mu.Unlock()

	if decision.Triggered {
		c.logger.Debug("recalculation triggered",
			"reason", decision.Trigger.String(),
			"pool_size", current.PoolSize(),
			"cancelled", current.Cancelled(),
		)
	}
	if decision.Action != ActionHold {
		c.logger.Info("pool resized",
			"action", decision.Action.String(),
			"from", decision.From,
			"to", decision.To,
			"reason", decision.Reason,
			"weight", decision.Weight,
		)
	}
	return decision
}
