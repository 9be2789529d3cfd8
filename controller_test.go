package pollpool

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewController_ClampsInitial(t *testing.T) {
	s := newTestSizer(t, func(c *SizerConfig) { c.Min = 2; c.Max = 6 })

	tests := []struct {
		initial int
		want    int
	}{
		{0, 2},
		{4, 4},
		{50, 6},
	}
	for _, tt := range tests {
		c := NewController(s, tt.initial, discardLogger())
		if got := c.PoolSize(); got != tt.want {
			t.Errorf("NewController(initial=%d).PoolSize() = %d, want %d", tt.initial, got, tt.want)
		}
	}
}

func TestController_InitialState(t *testing.T) {
	c := NewController(newTestSizer(t, nil), 4, nil)

	if c.Baseline() != nil {
		t.Error("Baseline() should be nil before any cycle")
	}
	if c.LastDecision() != nil {
		t.Error("LastDecision() should be nil before any cycle")
	}
}

func TestController_Observe_UpdatesPoolAndBaseline(t *testing.T) {
	c := NewController(newTestSizer(t, nil), 4, discardLogger())

	first := mustOutcome(t, 0, 2, 8, 1000, 4, 1000)
	d := c.Observe(first)

	if d.Action != ActionGrow || d.To != 5 {
		t.Fatalf("Observe() = %s to %d, want grow to 5", d.Action, d.To)
	}
	if c.PoolSize() != 5 {
		t.Errorf("PoolSize() = %d, want 5", c.PoolSize())
	}
	if b := c.Baseline(); b == nil || *b != first {
		t.Errorf("Baseline() = %v, want %v", b, first)
	}
	if last := c.LastDecision(); last == nil || *last != d {
		t.Errorf("LastDecision() = %+v, want %+v", last, d)
	}

	// the grown pool is compared against the first cycle
	second := mustOutcome(t, 0, 0, 10, 800, 5, 1000)
	d = c.Observe(second)
	if !d.Triggered || d.Trigger != ReasonPoolGrowth {
		t.Errorf("second Observe() trigger = %v/%s, want pool growth", d.Triggered, d.Trigger)
	}
	if d.Reason != reasonGrowthKept {
		t.Errorf("second Observe() reason = %s, want %s", d.Reason, reasonGrowthKept)
	}
	if b := c.Baseline(); b == nil || *b != second {
		t.Errorf("Baseline() = %v, want %v", b, second)
	}
}

func TestController_Observe_EmptyCycleKeepsBaseline(t *testing.T) {
	c := NewController(newTestSizer(t, nil), 4, discardLogger())

	busy := mustOutcome(t, 0, 0, 10, 900, 4, 1000)
	c.Observe(busy)

	empty := mustOutcome(t, 0, 0, 0, 5, 4, 1000)
	d := c.Observe(empty)

	if d.Action != ActionHold || d.Reason != reasonEmptyCycle {
		t.Errorf("Observe(empty) = %s/%s, want hold/%s", d.Action, d.Reason, reasonEmptyCycle)
	}
	if d.HasWeight {
		t.Error("empty cycle decision should not carry a weight")
	}
	if b := c.Baseline(); b == nil || *b != busy {
		t.Errorf("Baseline() = %v, want the last non-empty cycle", b)
	}
	if c.PoolSize() != 4 {
		t.Errorf("PoolSize() = %d, want 4", c.PoolSize())
	}
}

func TestController_CopiesAreIndependent(t *testing.T) {
	c := NewController(newTestSizer(t, nil), 4, discardLogger())
	c.Observe(mustOutcome(t, 0, 1, 9, 1000, 4, 1000))

	d := c.LastDecision()
	d.To = 99
	if c.LastDecision().To == 99 {
		t.Error("LastDecision() returned shared state")
	}
}

func TestController_LogsResize(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewController(newTestSizer(t, nil), 4, logger)

	c.Observe(mustOutcome(t, 0, 0, 10, 900, 4, 1000))
	if strings.Contains(buf.String(), "pool resized") {
		t.Error("hold decision should not log a resize")
	}

	c.Observe(mustOutcome(t, 0, 3, 7, 1000, 4, 1000))
	out := buf.String()
	if !strings.Contains(out, "pool resized") {
		t.Fatalf("expected resize log, got: %s", out)
	}
	if !strings.Contains(out, "action=grow") || !strings.Contains(out, "to=5") {
		t.Errorf("resize log missing fields: %s", out)
	}
}

func TestController_ConcurrentReads(t *testing.T) {
	c := NewController(newTestSizer(t, nil), 4, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.PoolSize()
				_ = c.Baseline()
				_ = c.LastDecision()
			}
		}()
	}

	for i := 0; i < 50; i++ {
		c.Observe(mustOutcome(t, 0, i%3, 5, int64(200+i*10), c.PoolSize(), 1000))
	}
	wg.Wait()
}
