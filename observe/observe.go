package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/apicache/observe/exporters"
)

// Config selects which telemetry the cache emits and where it goes.
type Config struct {
	ServiceName string
	Version     string
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// TracingConfig configures spans around upstream calls.
type TracingConfig struct {
	Enabled   bool
	Exporter  string  // otlp|jaeger|stdout|none
	Endpoint  string  // overrides OTEL_EXPORTER_OTLP_* when set
	SamplePct float64 // 0.0-1.0
}

// MetricsConfig configures the cache and upstream instruments.
type MetricsConfig struct {
	Enabled  bool
	Exporter string // otlp|prometheus|stdout|none
	Endpoint string
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Enabled bool
	Level   string // debug|info|warn|error
	Format  string // json|text

	// Output receives log lines. Default: os.Stderr.
	Output io.Writer
}

var (
	logLevels  = set("debug", "info", "warn", "error", "")
	logFormats = set("json", "text", "")
)

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

func oneOf(allowed map[string]struct{}, name string, sentinel error) error {
	if _, ok := allowed[name]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", sentinel, name)
}

// Validate reports every problem in the enabled subsystems at once.
// Disabled subsystems are not checked.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceName == "" {
		errs = append(errs, ErrMissingServiceName)
	}
	if c.Tracing.Enabled {
		if !exporters.HasTracing(c.Tracing.Exporter) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTracingExporter, c.Tracing.Exporter))
		}
		if pct := c.Tracing.SamplePct; pct < 0 || pct > 1 {
			errs = append(errs, fmt.Errorf("%w: got %g", ErrInvalidSamplePct, pct))
		}
	}
	if c.Metrics.Enabled {
		if !exporters.HasMetrics(c.Metrics.Exporter) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidMetricsExporter, c.Metrics.Exporter))
		}
	}
	if c.Logging.Enabled {
		errs = append(errs,
			oneOf(logLevels, c.Logging.Level, ErrInvalidLogLevel),
			oneOf(logFormats, c.Logging.Format, ErrInvalidLogFormat),
		)
	}
	return errors.Join(errs...)
}

// Observer bundles the tracer, meter, cache instruments and logger built
// from one Config.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Shutdown flushes exporters once; later calls return the first result.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter

	// Metrics returns the cache instruments registered on Meter.
	Metrics() Metrics

	Logger() Logger
	Shutdown(ctx context.Context) error
}

type observer struct {
	tracer  trace.Tracer
	meter   metric.Meter
	metrics Metrics
	logger  Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewObserver validates cfg and builds the enabled providers. Disabled
// subsystems get no-op implementations, so callers never nil-check.
// Enabled providers are also installed as the otel globals.
func NewObserver(ctx context.Context, cfg Config) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	o := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  noop.NewMeterProvider().Meter(cfg.ServiceName),
		logger: NopLogger(),
	}

	if cfg.Tracing.Enabled {
		if o.tp, err = newTracerProvider(ctx, cfg.Tracing, res); err != nil {
			return nil, err
		}
		otel.SetTracerProvider(o.tp)
		o.tracer = o.tp.Tracer(cfg.ServiceName)
	}

	if cfg.Metrics.Enabled {
		if o.mp, err = newMeterProvider(ctx, cfg.Metrics, res); err != nil {
			o.shutdownProviders(ctx)
			return nil, err
		}
		otel.SetMeterProvider(o.mp)
		o.meter = o.mp.Meter(cfg.ServiceName)
	}

	if o.metrics, err = newMetrics(o.meter); err != nil {
		o.shutdownProviders(ctx)
		return nil, err
	}

	if cfg.Logging.Enabled {
		o.logger = NewLoggerWithWriter(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	}
	return o, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := exporters.NewTracingExporter(ctx, cfg.Exporter, exporters.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("observe: tracing: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(cfg.SamplePct))),
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// samplerFor maps a sampling fraction to a root sampler.
func samplerFor(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.AlwaysSample()
	case pct <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(pct)
	}
}

func newMeterProvider(ctx context.Context, cfg MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := exporters.NewMetricsReader(ctx, cfg.Exporter, exporters.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("observe: metrics: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Metrics() Metrics     { return o.metrics }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) Shutdown(ctx context.Context) error {
	o.shutdownOnce.Do(func() {
		o.shutdownErr = o.shutdownProviders(ctx)
	})
	return o.shutdownErr
}

func (o *observer) shutdownProviders(ctx context.Context) error {
	var errs []error
	if o.tp != nil {
		if err := o.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if o.mp != nil {
		if err := o.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
