package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys set on upstream spans.
const (
	AttrMethod   = attribute.Key("http.method")
	AttrPath     = attribute.Key("url.path")
	AttrBodySize = attribute.Key("http.response.body.size")
	AttrError    = attribute.Key("apicache.error")
)

// UpstreamSpanName is the span name for one upstream call with method.
func UpstreamSpanName(method string) string {
	return "apicache.upstream." + method
}

// Tracer opens one client span per upstream call.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Finish never panics and always ends the span.
type Tracer interface {
	Start(ctx context.Context, method, path string) (context.Context, trace.Span)
	Finish(span trace.Span, size int, err error)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer wraps t. A nil t yields a tracer whose spans never record.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		t = tracenoop.NewTracerProvider().Tracer("")
	}
	return otelTracer{tracer: t}
}

func (t otelTracer) Start(ctx context.Context, method, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, UpstreamSpanName(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrMethod.String(method), AttrPath.String(path)),
	)
}

func (t otelTracer) Finish(span trace.Span, size int, err error) {
	defer span.End()
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(AttrError.Bool(err != nil))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(AttrBodySize.Int(size))
	span.SetStatus(codes.Ok, "")
}
