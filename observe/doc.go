// Package observe wires OpenTelemetry tracing and metrics plus logrus-backed
// structured logging into the request cache.
//
// An Observer owns the providers. Recorder implements cache.Recorder and
// turns cache events into metrics and log entries. Middleware wraps the
// upstream cache.Transport with a client span. ObserveStats exports entry
// gauges from a live cache.
//
// Metric names:
//
//	apicache.lookups{cache.result}      hit, miss, shared, bypass
//	apicache.upstream.total{http.method}
//	apicache.upstream.errors{http.method}
//	apicache.upstream.duration_ms{http.method}
//	apicache.stored, apicache.stored.ttl_s
//	apicache.invalidated, apicache.purged
//	apicache.entries{state}, apicache.pending
package observe
