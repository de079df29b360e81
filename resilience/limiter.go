package resilience

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket over upstream attempts.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter allows perSecond attempts per second with the given burst.
// A non-positive perSecond returns nil, which Guard treats as unlimited.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available. It fails fast with ErrRateLimited
// when ctx's deadline would pass first.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// Allow reports whether an attempt may run now, consuming a token if so.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Tokens returns the number of tokens currently available.
func (l *Limiter) Tokens() float64 {
	return l.lim.Tokens()
}
