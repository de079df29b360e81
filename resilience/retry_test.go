package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewRetry_Defaults(t *testing.T) {
	cfg := NewRetry(RetryConfig{}).Config()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 100ms", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay = %v, want 5s", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", cfg.Multiplier)
	}
	if cfg.RetryIf == nil {
		t.Error("RetryIf should default to Transient")
	}
}

func TestRetry_SuccessOnRetry(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("attempt %d failed", attempts)
	})

	if err == nil || err.Error() != "attempt 3 failed" {
		t.Errorf("Execute() error = %v, want last attempt's error", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ContextErrorsAreNotRetried(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("upstream: %w", context.DeadlineExceeded)
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Execute() error = %v, want DeadlineExceeded", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Execute(ctx, func(ctx context.Context) error {
		cancel()
		return errors.New("boom")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestRetry_RetryIf(t *testing.T) {
	retryable := errors.New("503")
	permanent := errors.New("404")

	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		RetryIf:      func(err error) bool { return errors.Is(err, retryable) },
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"retryable", retryable, 3},
		{"permanent", permanent, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := r.Execute(context.Background(), func(ctx context.Context) error {
				attempts++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("Execute() error = %v, want %v", err, tt.err)
			}
			if attempts != tt.want {
				t.Errorf("attempts = %d, want %d", attempts, tt.want)
			}
		})
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var attempts []int
	var delays []time.Duration

	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
			delays = append(delays, delay)
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("boom")
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("OnRetry delays = %v, want [1ms 2ms]", delays)
	}
}

func TestRetry_Delay(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetryConfig
		attempt int
		want    time.Duration
	}{
		{"exponential", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffExponential}, 3, 40 * time.Millisecond},
		{"linear", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffLinear}, 3, 30 * time.Millisecond},
		{"constant", RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffConstant}, 3, 10 * time.Millisecond},
		{"capped", RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10}, 5, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewRetry(tt.cfg).delay(tt.attempt); got != tt.want {
				t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestRetry_JitterBounds(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant, Jitter: true})

	for i := 0; i < 50; i++ {
		d := r.delay(1)
		if d < 100*time.Millisecond || d >= 125*time.Millisecond {
			t.Fatalf("delay with jitter = %v, want [100ms, 125ms)", d)
		}
	}
}

func TestParseBackoff(t *testing.T) {
	tests := []struct {
		in      string
		want    BackoffStrategy
		wantErr bool
	}{
		{"", BackoffExponential, false},
		{"exponential", BackoffExponential, false},
		{"linear", BackoffLinear, false},
		{"constant", BackoffConstant, false},
		{"fibonacci", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackoff(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBackoff(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBackoff(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr && tt.in != "" && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}
