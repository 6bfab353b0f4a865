// Package observability provides OpenTelemetry-based tracing and metrics
// with backend-agnostic configuration.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tnoop "go.opentelemetry.io/otel/trace/noop"
)

// Config configures the observability stack.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter is the pluggable span exporter (OTLP, stdout, ...).
	// Nil disables tracing.
	TraceExporter sdktrace.SpanExporter

	// MetricReader is the pluggable metric reader. Nil disables metrics.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry holds the initialized providers and the ledger instruments.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Metrics        *Metrics

	shutdown []func(context.Context) error
}

// Init initializes OpenTelemetry with graceful degradation: when no
// exporter or reader is configured, the corresponding provider is a no-op
// and instrumented code paths cost nothing.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tel := &Telemetry{}

	if cfg.TraceExporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(cfg.TraceExporter),
			sdktrace.WithResource(res),
		)
		tel.TracerProvider = tp
		tel.shutdown = append(tel.shutdown, tp.Shutdown)
		otel.SetTracerProvider(tp)
		logger.Info("tracing initialized", "service", cfg.ServiceName)
	} else {
		tel.TracerProvider = tnoop.NewTracerProvider()
		logger.Info("tracing disabled (no exporter configured)")
	}

	if cfg.MetricReader != nil {
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(cfg.MetricReader),
			sdkmetric.WithResource(res),
		)
		tel.MeterProvider = mp
		tel.shutdown = append(tel.shutdown, mp.Shutdown)
		otel.SetMeterProvider(mp)
		logger.Info("metrics initialized", "service", cfg.ServiceName)
	} else {
		tel.MeterProvider = mnoop.NewMeterProvider()
		logger.Info("metrics disabled (no reader configured)")
	}

	metrics, err := NewMetrics(tel.MeterProvider.Meter("github.com/corebank/ledger"))
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}
	tel.Metrics = metrics

	return tel, nil
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopMetrics returns metric instruments backed by a no-op meter, for tests
// and for components constructed without telemetry.
func NopMetrics() *Metrics {
	m, err := NewMetrics(mnoop.NewMeterProvider().Meter("nop"))
	if err != nil {
		panic(err) // no-op instruments cannot fail to build
	}
	return m
}
