package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Trace operation names
	TraceCycle = "pollpool.cycle"

	// Attribute keys
	AttrCycleID      = "pollpool.cycle.id"
	AttrPoolSize     = "pollpool.pool.size"
	AttrNextPoolSize = "pollpool.pool.next_size"
	AttrFailed       = "pollpool.tasks.failed"
	AttrCancelled    = "pollpool.tasks.cancelled"
	AttrSucceeded    = "pollpool.tasks.succeeded"
	AttrWeight       = "pollpool.cycle.weight"
	AttrTriggered    = "pollpool.recalculation.triggered"
	AttrTrigger      = "pollpool.recalculation.reason"
	AttrAction       = "pollpool.scaling.action"
	AttrReason       = "pollpool.scaling.reason"
)

// CycleSpan describes a finished cycle to be recorded as a span.
type CycleSpan struct {
	ID           string
	Start        time.Time
	End          time.Time
	PoolSize     int
	NextPoolSize int
	Failed       int
	Cancelled    int
	Succeeded    int
	Weight       float64
	HasWeight    bool
	Triggered    bool
	Trigger      string
	Action       string
	Reason       string
}

// Tracer records cycle spans.
type Tracer struct {
	tracer oteltrace.Tracer
}

// NewTracer creates a [Tracer] from tp. A nil tp records nothing.
func NewTracer(tp oteltrace.TracerProvider) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer("github.com/jpalmerr/pollpool")}
}

// RecordCycle emits one span covering the cycle, with its tally and the
// sizing decision as attributes. Cycles with failed or cancelled tasks get
// an error status.
func (t *Tracer) RecordCycle(ctx context.Context, c CycleSpan) {
	_, span := t.tracer.Start(ctx, TraceCycle,
		oteltrace.WithTimestamp(c.Start),
		oteltrace.WithAttributes(
			attribute.String(AttrCycleID, c.ID),
			attribute.Int(AttrPoolSize, c.PoolSize),
			attribute.Int(AttrNextPoolSize, c.NextPoolSize),
			attribute.Int(AttrFailed, c.Failed),
			attribute.Int(AttrCancelled, c.Cancelled),
			attribute.Int(AttrSucceeded, c.Succeeded),
			attribute.Bool(AttrTriggered, c.Triggered),
			attribute.String(AttrTrigger, c.Trigger),
			attribute.String(AttrAction, c.Action),
			attribute.String(AttrReason, c.Reason),
		),
	)
	if c.HasWeight {
		span.SetAttributes(attribute.Float64(AttrWeight, c.Weight))
	}

	if c.Failed > 0 || c.Cancelled > 0 {
		span.SetStatus(codes.Error, "cycle had failed or cancelled tasks")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(oteltrace.WithTimestamp(c.End))
}
