package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/apicache/cache"
)

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestMiddleware_WrapTransportSuccess(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader, mp := newTestMeter(t)
	metrics, _ := NewMetrics(mp.Meter("test"))
	var logs bytes.Buffer

	mw := NewMiddleware(NewTracer(tp.Tracer("test")), metrics, NewLoggerWithWriter("debug", "json", &logs))
	transport := mw.WrapTransport(func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	})

	body, err := transport(context.Background(), "GET", "/api/problem", cache.Params{"page": 1})
	if err != nil {
		t.Fatalf("transport error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q, want passthrough", body)
	}

	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans, want 1", len(ended))
	}
	span := ended[0]
	if span.Name() != "apicache.upstream.GET" {
		t.Errorf("span name = %q", span.Name())
	}
	if v, _ := spanAttr(span, "url.path"); v.AsString() != "/api/problem" {
		t.Errorf("url.path = %q", v.AsString())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "apicache.upstream.total", attribute.String("http.method", "GET")); got != 1 {
		t.Errorf("upstream.total = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), "upstream request completed") {
		t.Errorf("expected completion log, got %q", logs.String())
	}
}

func TestMiddleware_WrapTransportError(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	var logs bytes.Buffer

	wantErr := errors.New("upstream 503")
	mw := NewMiddleware(NewTracer(tp.Tracer("test")), nil, NewLoggerWithWriter("info", "json", &logs))
	transport := mw.WrapTransport(func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		return nil, wantErr
	})

	_, err := transport(context.Background(), "GET", "/api/contest", nil)
	if err != wantErr {
		t.Fatalf("error = %v, want unchanged %v", err, wantErr)
	}

	span := spans.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if v, _ := spanAttr(span, "apicache.error"); !v.AsBool() {
		t.Error("apicache.error attribute should be true")
	}
	if len(span.Events()) == 0 {
		t.Error("expected recorded error event")
	}
	if !strings.Contains(logs.String(), "upstream 503") {
		t.Errorf("error log missing: %q", logs.String())
	}
}

func TestMiddleware_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	transport := mw.WrapTransport(func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		return []byte("x"), nil
	})
	if body, err := transport(context.Background(), "GET", "/x", nil); err != nil || string(body) != "x" {
		t.Errorf("transport = (%q, %v)", body, err)
	}
}
