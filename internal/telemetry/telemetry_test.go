package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.TracerProvider() == nil {
		t.Fatal("TracerProvider() = nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "jaeger"})
	if err == nil || !strings.Contains(err.Error(), "unknown trace exporter") {
		t.Fatalf("NewProvider() error = %v, want unknown exporter", err)
	}
}

func TestNewProvider_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	now := time.Now()
	NewTracer(p.TracerProvider()).RecordCycle(context.Background(), CycleSpan{
		ID: "c1", Start: now.Add(-time.Second), End: now, PoolSize: 2, Succeeded: 3,
	})

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !strings.Contains(buf.String(), TraceCycle) {
		t.Errorf("stdout exporter output missing span name %q", TraceCycle)
	}
}

func TestTracer_RecordCycle(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	NewTracer(tp).RecordCycle(context.Background(), CycleSpan{
		ID:           "c1",
		Start:        start,
		End:          start.Add(900 * time.Millisecond),
		PoolSize:     6,
		NextPoolSize: 7,
		Cancelled:    5,
		Succeeded:    5,
		Weight:       0.6,
		HasWeight:    true,
		Triggered:    true,
		Trigger:      "rising_cancellations",
		Action:       "grow",
	})

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != TraceCycle {
		t.Errorf("span name = %q, want %q", span.Name, TraceCycle)
	}
	if got := span.EndTime.Sub(span.StartTime); got != 900*time.Millisecond {
		t.Errorf("span duration = %v, want 900ms", got)
	}
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}

	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if v := attrs[AttrNextPoolSize]; v.AsInt64() != 7 {
		t.Errorf("%s = %v, want 7", AttrNextPoolSize, v.AsInt64())
	}
	if v := attrs[AttrWeight]; v.AsFloat64() != 0.6 {
		t.Errorf("%s = %v, want 0.6", AttrWeight, v.AsFloat64())
	}
	if v := attrs[AttrTrigger]; v.AsString() != "rising_cancellations" {
		t.Errorf("%s = %q, want rising_cancellations", AttrTrigger, v.AsString())
	}
}

func TestTracer_NilProvider(t *testing.T) {
	NewTracer(nil).RecordCycle(context.Background(), CycleSpan{ID: "noop"})
}
