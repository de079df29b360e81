package resilience

import (
	"context"

	"github.com/jonwraymond/apicache/cache"
)

// Guard wraps a cache.Transport with a breaker, retries and a rate limit.
// Nil components are skipped; the zero Guard passes calls straight through.
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *Retry
	Limiter *Limiter
}

// Wrap returns a Transport that runs next under g.
func (g Guard) Wrap(next cache.Transport) cache.Transport {
	return func(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
		var body []byte
		attempt := func(ctx context.Context) error {
			if g.Limiter != nil {
				if err := g.Limiter.Wait(ctx); err != nil {
					return err
				}
			}
			b, err := next(ctx, method, path, params)
			if err != nil {
				return err
			}
			body = b
			return nil
		}

		run := attempt
		if g.Retry != nil {
			run = func(ctx context.Context) error { return g.Retry.Execute(ctx, attempt) }
		}
		if g.Breaker != nil {
			inner := run
			run = func(ctx context.Context) error { return g.Breaker.Execute(ctx, inner) }
		}

		if err := run(ctx); err != nil {
			return nil, err
		}
		return body, nil
	}
}
