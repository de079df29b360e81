package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apicache/cache"
)

// Recorder turns cache events into metrics, log entries and span events.
// It implements cache.Recorder. Keys are passed through cache.RedactKey
// before they reach logs or spans.
type Recorder struct {
	metrics Metrics
	logger  Logger
}

var _ cache.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder. Nil components fall back to no-ops.
func NewRecorder(metrics Metrics, logger Logger) *Recorder {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Recorder{metrics: metrics, logger: logger.With(F("component", "cache"))}
}

// RecorderFromObserver creates a Recorder from an Observer.
func RecorderFromObserver(obs Observer) (*Recorder, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	return NewRecorder(obs.Metrics(), obs.Logger()), nil
}

func (r *Recorder) Hit(ctx context.Context, key string) {
	r.lookup(ctx, ResultHit, key)
}

func (r *Recorder) Miss(ctx context.Context, key string) {
	r.lookup(ctx, ResultMiss, key)
}

func (r *Recorder) Shared(ctx context.Context, key string) {
	r.lookup(ctx, ResultShared, key)
}

func (r *Recorder) Bypass(ctx context.Context, method, path string) {
	r.metrics.RecordLookup(ctx, ResultBypass)
	addEvent(ctx, "apicache."+ResultBypass, attribute.String("url.path", path))
	r.logger.Debug(ctx, "cache bypass", F("method", method), F("path", path))
}

func (r *Recorder) Fetched(ctx context.Context, key string, duration time.Duration, err error) {
	if err != nil {
		r.logger.Warn(ctx, "fetch failed, result not cached",
			F("key", cache.RedactKey(key)),
			F("duration_ms", float64(duration.Milliseconds())),
			F("error", err),
		)
		return
	}
	r.logger.Debug(ctx, "fetch completed", F("key", cache.RedactKey(key)), F("duration_ms", float64(duration.Milliseconds())))
}

func (r *Recorder) Stored(ctx context.Context, key string, ttl time.Duration) {
	r.metrics.RecordStored(ctx, ttl)
	r.logger.Debug(ctx, "response cached", F("key", cache.RedactKey(key)), F("ttl", ttl.String()))
}

func (r *Recorder) Invalidated(ctx context.Context, pattern string, n int) {
	r.metrics.RecordInvalidation(ctx, n)
	r.logger.Info(ctx, "cache invalidated", F("pattern", pattern), F("removed", n))
}

func (r *Recorder) Purged(ctx context.Context, n int) {
	r.metrics.RecordPurge(ctx, n)
	r.logger.Info(ctx, "expired entries purged", F("removed", n))
}

func (r *Recorder) lookup(ctx context.Context, result, key string) {
	key = cache.RedactKey(key)
	r.metrics.RecordLookup(ctx, result)
	addEvent(ctx, "apicache."+result, attribute.String("cache.key", key))
	r.logger.Debug(ctx, "cache "+result, F("key", key))
}

func addEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
