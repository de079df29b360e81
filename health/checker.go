package health

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"time"
)

var (
	ErrCheckFailed     = errors.New("health: check failed")
	ErrCheckTimeout    = errors.New("health: check timeout")
	ErrCheckerNotFound = errors.New("health: checker not found")
	ErrCheckPanic      = errors.New("health: check panicked")
)

// Status orders component states from best to worst.
type Status uint8

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

var statusNames = [...]string{"healthy", "degraded", "unhealthy"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Worse returns whichever of s and other is the more severe.
func (s Status) Worse(other Status) Status {
	return max(s, other)
}

// HTTPStatus maps s to a probe response code. Degraded still serves traffic.
func (s Status) HTTPStatus() int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// probeBody is the plain-text readiness answer for s.
func (s Status) probeBody() string {
	switch s {
	case StatusHealthy:
		return "OK"
	case StatusDegraded:
		return "DEGRADED"
	default:
		return "UNHEALTHY"
	}
}

// Result is one check outcome. The Aggregator fills Duration and CheckedAt.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Error     error
	Duration  time.Duration
	CheckedAt time.Time
}

func Healthy(message string) Result  { return Result{Status: StatusHealthy, Message: message} }
func Degraded(message string) Result { return Result{Status: StatusDegraded, Message: message} }

// Unhealthy carries the error that made the component unusable.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails merges details into r's existing details.
func (r Result) WithDetails(details map[string]any) Result {
	if len(details) == 0 {
		return r
	}
	merged := make(map[string]any, len(r.Details)+len(details))
	maps.Copy(merged, r.Details)
	maps.Copy(merged, details)
	r.Details = merged
	return r
}

// With sets a single detail.
func (r Result) With(key string, value any) Result {
	return r.WithDetails(map[string]any{key: value})
}

// Checker reports the state of one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

func (f funcChecker) Name() string                     { return f.name }
func (f funcChecker) Check(ctx context.Context) Result { return f.fn(ctx) }

// CheckFunc names fn as a Checker.
func CheckFunc(name string, fn func(context.Context) Result) Checker {
	return funcChecker{name: name, fn: fn}
}
