package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestExporter_RecordCycle(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewExporter("", reg, Options{})
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	exporter.RecordCycle(Cycle{
		NextPoolSize: 7,
		Duration:     900 * time.Millisecond,
		Failed:       1,
		Cancelled:    2,
		Succeeded:    7,
		Weight:       0.9,
		HasWeight:    true,
		Triggered:    true,
		Trigger:      "rising_cancellations",
		Action:       "grow",
	})

	if got := testutil.ToFloat64(exporter.poolSize); got != 7 {
		t.Errorf("pool_size = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.cycleWeight); got != 0.9 {
		t.Errorf("cycle_weight = %v, want 0.9", got)
	}
	if got := testutil.ToFloat64(exporter.tasksTotal.WithLabelValues(OutcomeCancelled)); got != 2 {
		t.Errorf("tasks_total{cancelled} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.tasksTotal.WithLabelValues(OutcomeSucceeded)); got != 7 {
		t.Errorf("tasks_total{succeeded} = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.recalculations.WithLabelValues("rising_cancellations")); got != 1 {
		t.Errorf("recalculations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.resizes.WithLabelValues("grow")); got != 1 {
		t.Errorf("resizes_total{grow} = %v, want 1", got)
	}

	count, err := histogramSampleCount(exporter.cycleDuration)
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("cycle_duration sample count = %d, want 1", count)
	}
}

// TestExporter_EmptyCycleKeepsWeight verifies that an empty cycle does not
// overwrite the last weight and is counted separately.
func TestExporter_EmptyCycleKeepsWeight(t *testing.T) {
	exporter, err := NewExporter("pp", prom.NewRegistry(), Options{})
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	exporter.RecordCycle(Cycle{NextPoolSize: 2, Weight: 1.5, HasWeight: true, Succeeded: 1, Action: "hold"})
	exporter.RecordCycle(Cycle{NextPoolSize: 2, Action: "hold"})

	if got := testutil.ToFloat64(exporter.cycleWeight); got != 1.5 {
		t.Errorf("cycle_weight = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(exporter.emptyCyclesTotal); got != 1 {
		t.Errorf("empty_cycles_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.resizes.WithLabelValues("hold")); got != 2 {
		t.Errorf("resizes_total{hold} = %v, want 2", got)
	}
}

func TestExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewExporter("pollpool", reg, Options{})
	if err != nil {
		t.Fatalf("first NewExporter failed: %v", err)
	}
	second, err := NewExporter("pollpool", reg, Options{})
	if err != nil {
		t.Fatalf("second NewExporter failed: %v", err)
	}

	first.SetPoolSize(3)
	if got := testutil.ToFloat64(second.poolSize); got != 3 {
		t.Errorf("shared pool_size = %v, want 3", got)
	}
}

func TestExporter_NilSafe(t *testing.T) {
	var exporter *Exporter
	exporter.SetPoolSize(1)
	exporter.RecordCycle(Cycle{})
}

func histogramSampleCount(h prom.Histogram) (uint64, error) {
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		return 0, err
	}
	return m.GetHistogram().GetSampleCount(), nil
}
