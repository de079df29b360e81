// Package health provides health checking for the API cache service.
//
// A Checker reports a Status: Healthy, Degraded, or Unhealthy. An Aggregator
// runs registered checkers in parallel under a timeout and folds their
// results into the worst status. CacheChecker watches a live request cache
// and MemoryChecker watches the heap the cached responses live on.
//
// # HTTP Endpoints
//
//	mux := http.NewServeMux()
//	agg := health.NewAggregator()
//	agg.Register(health.NewCacheChecker(rc, health.CacheCheckerConfig{RequireJanitor: true}))
//	health.RegisterHandlers(mux, agg)
//
// This serves /healthz (liveness), /readyz (one-word readiness) and
// /health (JSON detail, optionally ?check=<name>). Degraded answers 200 and
// unhealthy answers 503.
package health
