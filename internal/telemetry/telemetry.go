// Package telemetry wires OpenTelemetry tracing for polling cycles.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter types.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config configures tracing.
type Config struct {
	Enabled     bool
	ServiceName string

	// Exporter is "stdout" or "otlp".
	Exporter string

	// Endpoint is the OTLP/HTTP collector host:port (otlp only).
	Endpoint string

	// Insecure disables TLS for the OTLP exporter.
	Insecure bool

	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer
}

// Provider owns the tracer provider and its exporter.
type Provider struct {
	tp       oteltrace.TracerProvider
	shutdown func(context.Context) error
}

// NewProvider builds a tracer provider from cfg. A disabled config yields a
// no-op provider, so callers never need to nil-check.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tp:       noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pollpool"
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "", ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP:
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q (expected %q or %q)", cfg.Exporter, ExporterStdout, ExporterOTLP)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", cfg.Exporter, err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp, shutdown: tp.Shutdown}, nil
}

// TracerProvider returns the underlying provider.
func (p *Provider) TracerProvider() oteltrace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
