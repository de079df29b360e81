// Package resilience guards the upstream side of a request cache.
//
// The cache itself never retries or throttles: a Transport either answers or
// fails. Guard wraps a cache.Transport with the client-side protections an
// HTTP client would normally carry:
//
//   - CircuitBreaker: stops calling an upstream after consecutive failures and
//     probes it again after a reset timeout.
//   - Retry: retries failed attempts with exponential, linear or constant backoff.
//   - Limiter: a token bucket over upstream attempts (golang.org/x/time/rate).
//
// Calls pass through them in that order, so a retried call counts once against
// the breaker and every attempt waits for its own token.
//
//	g := resilience.Guard{
//	    Breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 5}),
//	    Retry:   resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3}),
//	    Limiter: resilience.NewLimiter(50, 10),
//	}
//	body, err := rc.Fetch(ctx, "GET", "/api/problem", nil, g.Wrap(client.Do))
package resilience
