// Package telemetry sets up OpenTelemetry for the service: an OTLP
// trace pipeline for the request path, W3C trace-context propagation,
// and an optional bridge exporting otel instruments through
// Prometheus.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName scopes every tracer this service creates.
const instrumentationName = "imgguard"

// Config holds telemetry configuration
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Version string `yaml:"version"`

	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Endpoint     string            `yaml:"endpoint"`
	Headers      map[string]string `yaml:"headers"`
	SampleRate   float64           `yaml:"sampleRate"`
	MaxBatchSize int               `yaml:"maxBatchSize"`
	BatchTimeout int               `yaml:"batchTimeout"` // seconds
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// Telemetry owns the configured providers and their shutdown.
type Telemetry struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	closers    []func(context.Context) error
}

// New builds the telemetry stack. With Enabled false every handle is a
// no-op and nothing is exported.
func New(cfg Config) (*Telemetry, error) {
	t := &Telemetry{
		tracer:     otel.GetTracerProvider().Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(),
	}
	if !cfg.Enabled {
		return t, nil
	}

	res, err := buildResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(cfg.Tracing, res)
		if err != nil {
			return nil, fmt.Errorf("trace pipeline: %w", err)
		}
		otel.SetTracerProvider(tp)
		t.tracer = tp.Tracer(instrumentationName)
		t.closers = append(t.closers, tp.Shutdown)
	}

	if cfg.Metrics.Enabled {
		mp, err := newMeterProvider(res)
		if err != nil {
			return nil, fmt.Errorf("metrics bridge: %w", err)
		}
		otel.SetMeterProvider(mp)
		t.closers = append(t.closers, mp.Shutdown)
	}

	t.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(t.propagator)

	return t, nil
}

func buildResource(cfg Config) (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Service),
			semconv.ServiceVersion(cfg.Version),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
}

func newTracerProvider(cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(30 * time.Second),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.MaxBatchSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(cfg.MaxBatchSize))
	}
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(time.Duration(cfg.BatchTimeout)*time.Second))
	}

	// Sampling decisions made upstream win; the ratio only applies to
	// traces this service roots.
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	), nil
}

// Tracer returns the tracer for request-path spans.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Propagator returns the configured context propagator.
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Shutdown flushes and stops the configured providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, closer := range t.closers {
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
