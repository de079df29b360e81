package resilience

import "errors"

// Sentinel errors for guarded upstream calls.
var (
	// ErrCircuitOpen is returned without calling upstream while the breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimited is returned when a call would wait past its deadline for a token.
	ErrRateLimited = errors.New("resilience: upstream rate limit exceeded")
)
