package pollpool

import (
	"errors"
	"fmt"
)

const (
	defaultMinPoolSize = 1
	defaultMaxPoolSize = 32
	defaultStep        = 1
	defaultShrinkSlack = 0.5
	defaultTolerance   = 0.05
	defaultInitialSize = 4
)

// decision reasons
const (
	reasonEmptyCycle    = "empty_cycle"
	reasonGrowthUndone  = "growth_not_warranted"
	reasonGrowthKept    = "growth_confirmed"
	reasonOverrun       = "cancellations"
	reasonIdle          = "idle_slack"
	reasonSteady        = "steady"
	reasonRisingCancels = "rising_cancellations"
)

// Action is what a [Sizer] wants done to the pool before the next cycle.
type Action string

const (
	ActionGrow   Action = "grow"
	ActionShrink Action = "shrink"
	ActionHold   Action = "hold"
)

// String implements fmt.Stringer.
func (a Action) String() string { return string(a) }

// Decision is the outcome of one sizing step.
type Decision struct {
	// Action is grow, shrink or hold.
	Action Action

	// From is the pool size the cycle ran with; To is the size for the next one.
	From int
	To   int

	// Triggered reports whether [CycleOutcome.TriggerRecalculate] fired.
	Triggered bool

	// Trigger is the rule that decided the trigger query.
	Trigger TriggerReason

	// Reason explains the chosen action, e.g. "growth_confirmed".
	Reason string

	// Weight is the cycle weight. HasWeight is false for empty cycles.
	Weight    float64
	HasWeight bool
}

// SizerConfig bounds and tunes a [Sizer].
type SizerConfig struct {
	// Min and Max bound the pool size. Every decision is clamped to them.
	Min int
	Max int

	// Step is how many workers a single grow or shrink adds or removes.
	Step int

	// ShrinkSlack is the slack term (interval-duration)/interval above which a
	// cycle without cancellations is considered over-provisioned.
	ShrinkSlack float64

	// Tolerance is how much weight a growth step may lose and still be kept.
	Tolerance float64
}

// DefaultSizerConfig returns the bounds used when none are configured.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Min:         defaultMinPoolSize,
		Max:         defaultMaxPoolSize,
		Step:        defaultStep,
		ShrinkSlack: defaultShrinkSlack,
		Tolerance:   defaultTolerance,
	}
}

// Validate reports the first invalid field.
func (c SizerConfig) Validate() error {
	if c.Min < 1 {
		return fmt.Errorf("pool min must be at least 1, got %d", c.Min)
	}
	if c.Max < c.Min {
		return fmt.Errorf("pool max (%d) must not be below min (%d)", c.Max, c.Min)
	}
	if c.Step < 1 {
		return fmt.Errorf("pool step must be at least 1, got %d", c.Step)
	}
	if c.ShrinkSlack <= 0 || c.ShrinkSlack >= 1 {
		return fmt.Errorf("shrink slack must be in (0, 1), got %g", c.ShrinkSlack)
	}
	if c.Tolerance < 0 {
		return errors.New("tolerance must not be negative")
	}
	return nil
}

// Sizer is a hill climber over the cycle weight.
//
// The trigger from [CycleOutcome.Recalculation] decides when the last move
// has to be re-evaluated; the rest of the time the sizer probes upward on
// cancellations and downward on idle slack. A Sizer has no state of its own:
// the previous outcome is passed in on every call.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer returns a [Sizer] after validating cfg.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sizer{cfg: cfg}, nil
}

// Config returns the sizer's bounds.
func (s *Sizer) Config() SizerConfig { return s.cfg }

// Clamp limits n to the configured bounds.
func (s *Sizer) Clamp(n int) int {
	if n < s.cfg.Min {
		return s.cfg.Min
	}
	if n > s.cfg.Max {
		return s.cfg.Max
	}
	return n
}

// Next decides the pool size for the cycle after current.
func (s *Sizer) Next(current CycleOutcome, previous *CycleOutcome) Decision {
	d := Decision{From: current.PoolSize()}

	weight, err := current.Weight()
	if err != nil {
		// empty cycles carry no signal
		d.Trigger = ReasonNone
		d.Reason = reasonEmptyCycle
		return s.finish(d, current.PoolSize())
	}
	d.Weight, d.HasWeight = weight, true
	d.Triggered, d.Trigger = current.Recalculation(previous)

	if d.Triggered {
		switch d.Trigger {
		case ReasonPoolGrowth:
			prevWeight, err := previous.Weight()
			if err != nil || weight >= prevWeight-s.cfg.Tolerance {
				d.Reason = reasonGrowthKept
				return s.finish(d, current.PoolSize())
			}
			d.Reason = reasonGrowthUndone
			return s.finish(d, previous.PoolSize())
		case ReasonRisingCancellations:
			d.Reason = reasonRisingCancels
			return s.finish(d, current.PoolSize()+s.cfg.Step)
		}
	}

	switch {
	case current.Cancelled() > 0:
		d.Reason = reasonOverrun
		return s.finish(d, current.PoolSize()+s.cfg.Step)
	case current.Slack() > s.cfg.ShrinkSlack && current.PoolSize() > s.cfg.Min:
		d.Reason = reasonIdle
		return s.finish(d, current.PoolSize()-s.cfg.Step)
	default:
		d.Reason = reasonSteady
		return s.finish(d, current.PoolSize())
	}
}

func (s *Sizer) finish(d Decision, target int) Decision {
	d.To = s.Clamp(target)
	switch {
	case d.To > d.From:
		d.Action = ActionGrow
	case d.To < d.From:
		d.Action = ActionShrink
	default:
		d.Action = ActionHold
	}
	return d
}
