package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/apicache/cache"
)

func TestRecorder_WithRequestCache(t *testing.T) {
	reader, mp := newTestMeter(t)
	metrics, _ := NewMetrics(mp.Meter("test"))
	var logs bytes.Buffer
	rec := NewRecorder(metrics, NewLoggerWithWriter("info", "json", &logs))

	c, err := cache.New(cache.Config{
		Policy:          cache.DefaultPolicy(),
		Recorder:        rec,
		JanitorInterval: -1,
	})
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	defer c.Close()

	reg, err := ObserveStats(mp.Meter("test"), c)
	if err != nil {
		t.Fatalf("ObserveStats() error = %v", err)
	}
	defer reg.Unregister()

	var calls atomic.Int32
	transport := func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		calls.Add(1)
		return []byte(`{}`), nil
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(ctx, "GET", "/api/problem", nil, transport); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if _, err := c.Fetch(ctx, "POST", "/api/submission", nil, transport); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	c.Invalidate(ctx, "/api/problem")

	rm := collect(t, reader)
	lookups := func(result string) int64 {
		return sumWhere(t, rm, "apicache.lookups", attribute.String("cache.result", result))
	}
	if got := lookups(ResultMiss); got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
	if got := lookups(ResultHit); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
	if got := lookups(ResultBypass); got != 1 {
		t.Errorf("bypasses = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "apicache.stored", attribute.KeyValue{}); got != 1 {
		t.Errorf("stored = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "apicache.invalidated", attribute.KeyValue{}); got != 1 {
		t.Errorf("invalidated = %d, want 1", got)
	}
	if got := gaugeWhere(t, rm, "apicache.entries", attribute.String("state", "valid")); got != 0 {
		t.Errorf("valid entries after invalidation = %d, want 0", got)
	}
	if calls.Load() != 2 {
		t.Errorf("transport calls = %d, want 2", calls.Load())
	}

	if !strings.Contains(logs.String(), `"msg":"cache invalidated"`) {
		t.Errorf("expected invalidation log, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), `"component":"cache"`) {
		t.Error("recorder logs should carry component=cache")
	}
}

func TestRecorder_SpanEvents(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	rec := NewRecorder(nil, nil)

	ctx, span := tp.Tracer("test").Start(context.Background(), "handler")
	rec.Hit(ctx, "GET:/problem:{}")
	rec.Miss(ctx, "GET:/contest:{}")
	span.End()

	events := spans.Ended()[0].Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Name != "apicache.hit" || events[1].Name != "apicache.miss" {
		t.Errorf("event names = %q, %q", events[0].Name, events[1].Name)
	}
}

func TestRecorder_RedactsParamValues(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	var logs bytes.Buffer
	rec := NewRecorder(nil, NewLoggerWithWriter("debug", "json", &logs))

	key, err := cache.BuildKey("GET", "/api/problem", cache.Params{"token": "s3cret"})
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}

	ctx, span := tp.Tracer("test").Start(context.Background(), "handler")
	rec.Miss(ctx, key)
	rec.Fetched(ctx, key, 0, errors.New("boom"))
	rec.Stored(ctx, key, time.Minute)
	span.End()

	if strings.Contains(logs.String(), "s3cret") {
		t.Errorf("logs leak param value: %s", logs.String())
	}
	if !strings.Contains(logs.String(), "GET:/api/problem:#") {
		t.Errorf("logs should keep the path: %s", logs.String())
	}
	for _, ev := range spans.Ended()[0].Events() {
		for _, kv := range ev.Attributes {
			if strings.Contains(kv.Value.Emit(), "s3cret") {
				t.Errorf("span event %s leaks param value", ev.Name)
			}
		}
	}
}
