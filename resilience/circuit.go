package resilience

import (
	"context"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls fail fast with ErrCircuitOpen
	StateHalfOpen              // a few probe calls test the upstream
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero fields take the
// defaults noted.
type CircuitBreakerConfig struct {
	MaxFailures         int           // consecutive failures that open; default 5
	ResetTimeout        time.Duration // open time before probing; default 30s
	HalfOpenMaxRequests int           // concurrent probes; default 1

	// OnStateChange runs with the breaker locked and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure decides which errors count against the upstream. Others still
	// reach the caller. Default: Transient.
	IsFailure func(err error) bool

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// CircuitBreaker fails fast while the upstream keeps failing.
//
// Closed, it counts consecutive failures and opens at MaxFailures. Open, it
// rejects every call until ResetTimeout has passed since the last failure,
// then goes half-open and admits up to HalfOpenMaxRequests probes. A failed
// probe reopens the circuit; a successful one closes it.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	rejected    int64
}

func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = Transient
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit rejects the call.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = op(ctx)
	cb.record(probe, err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshLocked()
}

// Reset closes the circuit and forgets recorded failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures, cb.probes = 0, 0
	cb.moveLocked(StateClosed)
}

// BreakerSnapshot is a point-in-time view of a CircuitBreaker.
type BreakerSnapshot struct {
	State       State
	Failures    int
	Rejected    int64
	LastFailure time.Time
}

func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		State:       cb.refreshLocked(),
		Failures:    cb.failures,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
}

// admit reserves a slot for one call. probe is true when the call is a
// half-open probe and must be released by record.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if cb.probes < cb.config.HalfOpenMaxRequests {
			cb.probes++
			return true, nil
		}
	}
	cb.rejected++
	return false, ErrCircuitOpen
}

func (cb *CircuitBreaker) record(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probes = max(cb.probes-1, 0)
	}
	failed := err != nil && cb.config.IsFailure(err)
	if failed {
		cb.lastFailure = cb.config.Clock()
	}

	switch {
	case cb.state == StateClosed && failed:
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.moveLocked(StateOpen)
		}
	case cb.state == StateClosed:
		cb.failures = 0
	case cb.state == StateHalfOpen && probe && failed:
		cb.moveLocked(StateOpen)
	case cb.state == StateHalfOpen && probe && err == nil:
		cb.failures = 0
		cb.moveLocked(StateClosed)
	}
}

// refreshLocked moves an open circuit to half-open once ResetTimeout has
// elapsed and returns the current state.
func (cb *CircuitBreaker) refreshLocked() State {
	if cb.state == StateOpen && cb.config.Clock().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.probes = 0
		cb.moveLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}
