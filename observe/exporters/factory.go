// Package exporters builds OpenTelemetry span exporters and metric readers
// by name.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	ErrUnknownExporter       = errors.New("exporters: unknown exporter")
	ErrEndpointNotConfigured = errors.New("exporters: endpoint not configured")
)

// Environment variables consulted when no endpoint is given.
var (
	otlpTraceEnv  = []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"}
	otlpMetricEnv = []string{"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"}
	jaegerEnv     = []string{"OTEL_EXPORTER_JAEGER_ENDPOINT"}
)

type options struct {
	endpoint string
	writer   io.Writer
}

// Option configures a factory call.
type Option func(*options)

// WithEndpoint sets the collector URL. Empty falls back to the
// OTEL_EXPORTER_* environment.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithWriter redirects the stdout exporters. Default: os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.writer = w
		}
	}
}

func newOptions(opts []Option) options {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolve returns o.endpoint or the first non-empty env var in keys.
func (o options) resolve(keys []string) (string, error) {
	if o.endpoint != "" {
		return o.endpoint, nil
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set one of %v", ErrEndpointNotConfigured, keys)
}

type (
	spanFactory   func(context.Context, options) (sdktrace.SpanExporter, error)
	readerFactory func(context.Context, options) (sdkmetric.Reader, error)
)

func otlpSpans(env []string) spanFactory {
	return func(ctx context.Context, o options) (sdktrace.SpanExporter, error) {
		endpoint, err := o.resolve(env)
		if err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	}
}

func discardSpans(context.Context, options) (sdktrace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
}

var spanFactories = map[string]spanFactory{
	"stdout": func(_ context.Context, o options) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(o.writer))
	},
	"otlp": otlpSpans(otlpTraceEnv),
	// Jaeger ingests OTLP natively.
	"jaeger": otlpSpans(jaegerEnv),
	"none":   discardSpans,
	"":       discardSpans,
}

func manualReader(context.Context, options) (sdkmetric.Reader, error) {
	return sdkmetric.NewManualReader(), nil
}

var readerFactories = map[string]readerFactory{
	"stdout": func(_ context.Context, o options) (sdkmetric.Reader, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.writer))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	"otlp": func(ctx context.Context, o options) (sdkmetric.Reader, error) {
		endpoint, err := o.resolve(otlpMetricEnv)
		if err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(endpoint))
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	},
	// Registers with the default Prometheus registerer, so promhttp.Handler
	// serves its output.
	"prometheus": func(context.Context, options) (sdkmetric.Reader, error) {
		return prometheus.New()
	},
	"none": manualReader,
	"":     manualReader,
}

// HasTracing reports whether NewTracingExporter knows name.
func HasTracing(name string) bool {
	_, ok := spanFactories[name]
	return ok
}

// HasMetrics reports whether NewMetricsReader knows name.
func HasMetrics(name string) bool {
	_, ok := readerFactories[name]
	return ok
}

// NewTracingExporter builds the span exporter called name: stdout, otlp,
// jaeger, or none (the empty name means none).
func NewTracingExporter(ctx context.Context, name string, opts ...Option) (sdktrace.SpanExporter, error) {
	f, ok := spanFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	exp, err := f(ctx, newOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("exporters: %s traces: %w", name, err)
	}
	return exp, nil
}

// NewMetricsReader builds the metric reader called name: stdout, otlp,
// prometheus, or none (the empty name means none).
func NewMetricsReader(ctx context.Context, name string, opts ...Option) (sdkmetric.Reader, error) {
	f, ok := readerFactories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, name)
	}
	r, err := f(ctx, newOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("exporters: %s metrics: %w", name, err)
	}
	return r, nil
}
