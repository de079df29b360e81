package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy shapes the delay between attempts.
type BackoffStrategy int

const (
	BackoffExponential BackoffStrategy = iota // InitialDelay * Multiplier^(n-1)
	BackoffLinear                             // InitialDelay * n
	BackoffConstant                           // InitialDelay
)

var backoffNames = [...]string{"exponential", "linear", "constant"}

func (s BackoffStrategy) String() string {
	if s >= 0 && int(s) < len(backoffNames) {
		return backoffNames[s]
	}
	return "unknown"
}

// ParseBackoff parses a configured strategy name. Empty means exponential.
func ParseBackoff(name string) (BackoffStrategy, error) {
	if name == "" {
		return BackoffExponential, nil
	}
	for i, n := range backoffNames {
		if n == name {
			return BackoffStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("resilience: unknown backoff strategy %q", name)
}

// RetryConfig configures Retry. Zero fields take the defaults noted.
type RetryConfig struct {
	MaxAttempts  int           // including the first; default 3
	InitialDelay time.Duration // default 100ms
	MaxDelay     time.Duration // cap per delay; default 5s
	Multiplier   float64       // exponential factor; default 2
	Strategy     BackoffStrategy

	// Jitter adds up to 25% to each delay.
	Jitter bool

	// RetryIf reports whether err deserves another attempt. Default: Transient.
	RetryIf func(err error) bool

	// OnRetry runs before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.RetryIf == nil {
		c.RetryIf = Transient
	}
	return c
}

// Retry re-runs a failing operation with backoff.
type Retry struct {
	config RetryConfig
}

func NewRetry(config RetryConfig) *Retry {
	return &Retry{config: config.withDefaults()}
}

// Config returns the configuration with defaults applied.
func (r *Retry) Config() RetryConfig { return r.config }

// Transient reports whether err is non-nil and not a context error.
func Transient(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Execute calls op until it succeeds, RetryIf refuses its error, or
// MaxAttempts run out. The final error is returned as op produced it, except
// that cancellation during a backoff returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil || attempt >= r.config.MaxAttempts || !r.config.RetryIf(err) {
			return err
		}

		d := r.delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, d)
		}
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}
}

// delay is the wait after the given failed attempt.
func (r *Retry) delay(attempt int) time.Duration {
	base := r.config.InitialDelay
	var d time.Duration
	switch r.config.Strategy {
	case BackoffConstant:
		d = base
	case BackoffLinear:
		d = base * time.Duration(attempt)
	default:
		d = time.Duration(float64(base) * math.Pow(r.config.Multiplier, float64(attempt-1)))
	}
	if d < 0 || d > r.config.MaxDelay {
		d = r.config.MaxDelay
	}

	if r.config.Jitter && d >= 4 {
		// #nosec G404 -- timing variance, not security.
		d += time.Duration(rand.Int64N(int64(d / 4)))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
