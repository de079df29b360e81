package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		want   string
		code   int
		body   string
	}{
		{StatusHealthy, "healthy", 200, "OK"},
		{StatusDegraded, "degraded", 200, "DEGRADED"},
		{StatusUnhealthy, "unhealthy", 503, "UNHEALTHY"},
		{Status(99), "unknown", 200, "UNHEALTHY"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
		if got := tt.status.HTTPStatus(); got != tt.code {
			t.Errorf("Status(%d).HTTPStatus() = %d, want %d", tt.status, got, tt.code)
		}
		if got := tt.status.probeBody(); got != tt.body {
			t.Errorf("Status(%d).probeBody() = %q, want %q", tt.status, got, tt.body)
		}
	}
}

func TestStatus_Worse(t *testing.T) {
	if got := StatusDegraded.Worse(StatusHealthy); got != StatusDegraded {
		t.Errorf("Worse = %v", got)
	}
	if got := StatusDegraded.Worse(StatusUnhealthy); got != StatusUnhealthy {
		t.Errorf("Worse = %v", got)
	}
}

func TestResult_Details(t *testing.T) {
	err := errors.New("down")
	r := Unhealthy("db down", err).With("k", 1).WithDetails(map[string]any{"j": 2})

	if r.Status != StatusUnhealthy || r.Message != "db down" || r.Error != err {
		t.Errorf("Unhealthy() = %+v", r)
	}
	if r.Details["k"] != 1 || r.Details["j"] != 2 {
		t.Errorf("Details = %v", r.Details)
	}

	base := Healthy("ok").With("a", 1)
	_ = base.With("b", 2)
	if _, ok := base.Details["b"]; ok {
		t.Error("With must not modify the receiver's details")
	}
}

func TestCheckFunc(t *testing.T) {
	c := CheckFunc("upstream", func(ctx context.Context) Result {
		return Degraded("slow")
	})
	if c.Name() != "upstream" {
		t.Errorf("Name() = %q", c.Name())
	}
	if got := c.Check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("Check().Status = %v", got.Status)
	}
}
