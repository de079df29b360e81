package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe timeouts applied on top of the Aggregator timeout.
const (
	readinessTimeout = 5 * time.Second
	detailedTimeout  = 10 * time.Second
)

// Report is the body of the detailed health endpoint.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckReport `json:"checks,omitempty"`
}

// CheckReport is one entry of Report.Checks.
type CheckReport struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	CheckedAt string         `json:"checked_at,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// NewReport summarizes results at now.
func NewReport(results map[string]Result, now time.Time) Report {
	rep := Report{
		Status:    OverallStatus(results).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Checks:    make(map[string]CheckReport, len(results)),
	}
	for name, r := range results {
		cr := CheckReport{
			Status:   r.Status.String(),
			Message:  r.Message,
			Duration: r.Duration.String(),
			Details:  r.Details,
		}
		if !r.CheckedAt.IsZero() {
			cr.CheckedAt = r.CheckedAt.UTC().Format(time.RFC3339Nano)
		}
		if r.Error != nil {
			cr.Error = r.Error.Error()
		}
		rep.Checks[name] = cr
	}
	return rep
}

// LivenessHandler answers liveness probes. It only proves the process serves HTTP.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	}
}

// ReadinessHandler runs every check and answers with a one-word status.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := OverallStatus(agg.CheckAll(ctx))
		writeText(w, status.HTTPStatus(), status.probeBody())
	}
}

// DetailedHandler returns every check result as a Report.
// A ?check=<name> query narrows the response to one checker.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), detailedTimeout)
		defer cancel()

		var results map[string]Result
		if name := r.URL.Query().Get("check"); name != "" {
			res, err := agg.Check(ctx, name)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
				return
			}
			results = map[string]Result{name: res}
		} else {
			results = agg.CheckAll(ctx)
		}

		writeJSON(w, OverallStatus(results).HTTPStatus(), NewReport(results, time.Now()))
	}
}

// RegisterHandlers mounts /healthz, /readyz and /health on mux.
func RegisterHandlers(mux *http.ServeMux, agg *Aggregator) {
	mux.HandleFunc("/healthz", LivenessHandler())
	mux.HandleFunc("/readyz", ReadinessHandler(agg))
	mux.HandleFunc("/health", DetailedHandler(agg))
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
