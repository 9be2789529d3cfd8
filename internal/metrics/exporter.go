// Package metrics exports cycle and pool sizing metrics to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric when none is configured.
const DefaultNamespace = "pollpool"

// Task outcome label values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Options controls collector configuration.
type Options struct {
	DurationBuckets []float64
}

// Cycle is the subset of a completed cycle the exporter records.
type Cycle struct {
	NextPoolSize int
	Duration     time.Duration
	Failed       int
	Cancelled    int
	Succeeded    int
	Weight       float64
	HasWeight    bool
	Triggered    bool
	Trigger      string
	Action       string
}

// Exporter records cycles into Prometheus collectors.
type Exporter struct {
	poolSize         prom.Gauge
	cycleWeight      prom.Gauge
	cycleDuration    prom.Histogram
	tasksTotal       *prom.CounterVec
	recalculations   *prom.CounterVec
	resizes          *prom.CounterVec
	emptyCyclesTotal prom.Counter
}

// NewExporter creates and registers the collectors on reg.
//
// Registering twice on the same registry reuses the existing collectors.
// A nil reg uses [prom.DefaultRegisterer].
func NewExporter(namespace string, reg prom.Registerer, opts Options) (*Exporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.01, 2, 12)
	}

	poolSize := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pool_size",
		Help:      "Worker pool size chosen for the next cycle.",
	})
	cycleWeight := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "cycle_weight",
		Help:      "Weight score of the last non-empty cycle.",
	})
	cycleDuration := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Polling cycle duration in seconds.",
		Buckets:   buckets,
	})
	tasksTotal := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Settled tasks by outcome.",
	}, []string{"outcome"})
	recalculations := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "recalculations_total",
		Help:      "Triggered pool size recalculations by reason.",
	}, []string{"reason"})
	resizes := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "resizes_total",
		Help:      "Pool resize decisions by action.",
	}, []string{"action"})
	emptyCycles := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "empty_cycles_total",
		Help:      "Cycles in which no task settled.",
	})

	var err error
	if poolSize, err = registerCollector(reg, poolSize); err != nil {
		return nil, err
	}
	if cycleWeight, err = registerCollector(reg, cycleWeight); err != nil {
		return nil, err
	}
	if cycleDuration, err = registerCollector(reg, cycleDuration); err != nil {
		return nil, err
	}
	if tasksTotal, err = registerCollector(reg, tasksTotal); err != nil {
		return nil, err
	}
	if recalculations, err = registerCollector(reg, recalculations); err != nil {
		return nil, err
	}
	if resizes, err = registerCollector(reg, resizes); err != nil {
		return nil, err
	}
	if emptyCycles, err = registerCollector(reg, emptyCycles); err != nil {
		return nil, err
	}

	return &Exporter{
		poolSize:         poolSize,
		cycleWeight:      cycleWeight,
		cycleDuration:    cycleDuration,
		tasksTotal:       tasksTotal,
		recalculations:   recalculations,
		resizes:          resizes,
		emptyCyclesTotal: emptyCycles,
	}, nil
}

// SetPoolSize records the current pool size, e.g. before the first cycle.
func (e *Exporter) SetPoolSize(n int) {
	if e == nil {
		return
	}
	e.poolSize.Set(float64(n))
}

// RecordCycle records one completed cycle and its decision.
func (e *Exporter) RecordCycle(c Cycle) {
	if e == nil {
		return
	}
	e.poolSize.Set(float64(c.NextPoolSize))
	e.cycleDuration.Observe(c.Duration.Seconds())
	e.tasksTotal.WithLabelValues(OutcomeSucceeded).Add(float64(c.Succeeded))
	e.tasksTotal.WithLabelValues(OutcomeFailed).Add(float64(c.Failed))
	e.tasksTotal.WithLabelValues(OutcomeCancelled).Add(float64(c.Cancelled))

	if c.HasWeight {
		e.cycleWeight.Set(c.Weight)
	} else {
		e.emptyCyclesTotal.Inc()
	}
	if c.Triggered {
		e.recalculations.WithLabelValues(normalizeLabel(c.Trigger, "unknown")).Inc()
	}
	e.resizes.WithLabelValues(normalizeLabel(c.Action, "hold")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("collector type mismatch: %T", are.ExistingCollector)
			}
			return existing, nil
		}
		var zero T
		return zero, err
	}
	return c, nil
}
