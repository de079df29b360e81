package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/apicache/cache"
)

// Lookup outcomes recorded under the cache.result attribute.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
	ResultBypass = "bypass"
)

// Metrics records request cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup counts one Fetch by outcome.
	RecordLookup(ctx context.Context, result string)

	// RecordUpstream records one transport call with duration and error status.
	RecordUpstream(ctx context.Context, method string, duration time.Duration, err error)

	// RecordStored counts one stored response.
	RecordStored(ctx context.Context, ttl time.Duration)

	// RecordInvalidation records entries removed by an invalidation.
	RecordInvalidation(ctx context.Context, n int)

	// RecordPurge records entries swept by the janitor.
	RecordPurge(ctx context.Context, n int)
}

// StatsSource reports a cache snapshot. *cache.RequestCache satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) cache.Stats
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter          metric.Meter
	lookups        metric.Int64Counter
	upstreamTotal  metric.Int64Counter
	upstreamErrors metric.Int64Counter
	upstreamHist   metric.Float64Histogram
	stored         metric.Int64Counter
	ttlHist        metric.Float64Histogram
	invalidated    metric.Int64Counter
	purged         metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	lookups, err := meter.Int64Counter(
		"apicache.lookups",
		metric.WithDescription("Total number of cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamTotal, err := meter.Int64Counter(
		"apicache.upstream.total",
		metric.WithDescription("Total number of upstream transport calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamErrors, err := meter.Int64Counter(
		"apicache.upstream.errors",
		metric.WithDescription("Total number of failed upstream transport calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	upstreamHist, err := meter.Float64Histogram(
		"apicache.upstream.duration_ms",
		metric.WithDescription("Upstream transport call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stored, err := meter.Int64Counter(
		"apicache.stored",
		metric.WithDescription("Total number of responses stored"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	ttlHist, err := meter.Float64Histogram(
		"apicache.stored.ttl_s",
		metric.WithDescription("TTL assigned to stored responses in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	invalidated, err := meter.Int64Counter(
		"apicache.invalidated",
		metric.WithDescription("Total number of entries removed by invalidation"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	purged, err := meter.Int64Counter(
		"apicache.purged",
		metric.WithDescription("Total number of expired entries swept by the janitor"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:          meter,
		lookups:        lookups,
		upstreamTotal:  upstreamTotal,
		upstreamErrors: upstreamErrors,
		upstreamHist:   upstreamHist,
		stored:         stored,
		ttlHist:        ttlHist,
		invalidated:    invalidated,
		purged:         purged,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, result string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.result", result)))
}

func (m *metricsImpl) RecordUpstream(ctx context.Context, method string, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("http.method", method))

	m.upstreamTotal.Add(ctx, 1, opt)
	if err != nil {
		m.upstreamErrors.Add(ctx, 1, opt)
	}
	m.upstreamHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordStored(ctx context.Context, ttl time.Duration) {
	m.stored.Add(ctx, 1)
	m.ttlHist.Record(ctx, ttl.Seconds())
}

func (m *metricsImpl) RecordInvalidation(ctx context.Context, n int) {
	if n > 0 {
		m.invalidated.Add(ctx, int64(n))
	}
}

func (m *metricsImpl) RecordPurge(ctx context.Context, n int) {
	if n > 0 {
		m.purged.Add(ctx, int64(n))
	}
}

// ObserveStats registers gauges fed by src on every collection:
// apicache.entries{state=valid|expired} and apicache.pending.
// Unregister the returned registration when src goes away.
func ObserveStats(meter metric.Meter, src StatsSource) (metric.Registration, error) {
	entries, err := meter.Int64ObservableGauge(
		"apicache.entries",
		metric.WithDescription("Stored cache entries by state"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	pending, err := meter.Int64ObservableGauge(
		"apicache.pending",
		metric.WithDescription("In-flight upstream fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	valid := metric.WithAttributes(attribute.String("state", "valid"))
	expired := metric.WithAttributes(attribute.String("state", "expired"))

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		st := src.Stats(ctx)
		o.ObserveInt64(entries, int64(st.Valid), valid)
		o.ObserveInt64(entries, int64(st.Expired), expired)
		o.ObserveInt64(pending, int64(st.Pending))
		return nil
	}, entries, pending)
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (noopMetrics) RecordLookup(context.Context, string)                         {}
func (noopMetrics) RecordUpstream(context.Context, string, time.Duration, error) {}
func (noopMetrics) RecordStored(context.Context, time.Duration)                  {}
func (noopMetrics) RecordInvalidation(context.Context, int)                      {}
func (noopMetrics) RecordPurge(context.Context, int)                             {}
