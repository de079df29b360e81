package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/apicache/cache"
)

// Middleware wraps a cache.Transport with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: WrapTransport returns a thread-safe Transport.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped transport are recorded and propagated unchanged.
//   - Ownership: Params and response bytes are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
// Nil components fall back to no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewTracer(nil)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// WrapTransport wraps next with a span, upstream metrics and a log line per call.
func (m *Middleware) WrapTransport(next cache.Transport) cache.Transport {
	return func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		ctx, span := m.tracer.Start(ctx, method, path)

		start := time.Now()
		body, err := next(ctx, method, path, params)
		duration := time.Since(start)

		m.tracer.Finish(span, len(body), err)
		m.metrics.RecordUpstream(ctx, method, duration, err)

		fields := []Field{
			F("method", method),
			F("path", path),
			F("duration_ms", float64(duration.Milliseconds())),
		}
		if err != nil {
			m.logger.Error(ctx, "upstream request failed", append(fields, F("error", err))...)
		} else {
			m.logger.Debug(ctx, "upstream request completed", append(fields, F("bytes", len(body)))...)
		}

		return body, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	return NewMiddleware(NewTracer(obs.Tracer()), obs.Metrics(), obs.Logger()), nil
}
