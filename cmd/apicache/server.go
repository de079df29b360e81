package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jonwraymond/apicache/auth"
	"github.com/jonwraymond/apicache/cache"
	"github.com/jonwraymond/apicache/health"
	"github.com/jonwraymond/apicache/observe"
	"github.com/jonwraymond/apicache/resilience"
)

// maxRequestBody caps JSON bodies accepted from clients.
const maxRequestBody = 1 << 20

// server is the HTTP front: /api/... is proxied through the cache and
// /cache/... exposes administration.
type server struct {
	cache     *cache.RequestCache
	transport cache.Transport
	logger    observe.Logger
	health    *health.Aggregator
	metrics   http.Handler
	now       func() time.Time

	// admin guards /cache/*; nil leaves it open.
	admin     auth.Authenticator
	adminRole string
}

func newServer(rc *cache.RequestCache, transport cache.Transport, logger observe.Logger, agg *health.Aggregator, metrics http.Handler) *server {
	if logger == nil {
		logger = observe.NopLogger()
	}
	if agg == nil {
		agg = health.NewAggregator()
	}
	return &server{
		cache:     rc,
		transport: transport,
		logger:    logger,
		health:    agg,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", s.handleAPI)
	mux.Handle("GET /cache/stats", auth.Require(s.admin, s.adminRole, http.HandlerFunc(s.handleStats)))
	mux.Handle("DELETE /cache", auth.Require(s.admin, s.adminRole, http.HandlerFunc(s.handleInvalidate)))
	health.RegisterHandlers(mux, s.health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.withRequestID(mux)
}

// handleAPI serves GETs through the cache. Mutations pass through and then
// invalidate the resource family they touched.
func (s *server) handleAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params, err := requestParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := s.cache.Fetch(ctx, r.Method, r.URL.Path, params, s.transport)
	if err != nil {
		s.writeFetchError(w, r, err)
		return
	}

	if isMutation(r.Method) {
		family := resourceFamily(r.URL.Path)
		if n := s.cache.Invalidate(ctx, family); n > 0 {
			w.Header().Set("X-Cache-Invalidated", family)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type statsResponse struct {
	cache.Stats
	JanitorRunning bool   `json:"janitor_running"`
	JanitorRuns    int64  `json:"janitor_runs"`
	LastSweep      string `json:"last_sweep,omitempty"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Stats: s.cache.Stats(r.Context())}
	if j := s.cache.Janitor(); j != nil {
		resp.JanitorRunning = j.Running()
		resp.JanitorRuns = j.Runs()
		if last := j.LastRun(); !last.IsZero() {
			resp.LastSweep = humanize.RelTime(last, s.now(), "ago", "from now")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInvalidate removes entries by ?pattern= (substring or exact key) or
// ?regex=. With neither it clears the whole cache.
func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var removed int
	switch {
	case q.Get("regex") != "":
		re, err := regexp.Compile(q.Get("regex"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid regex: "+err.Error())
			return
		}
		removed = s.cache.InvalidateRegexp(ctx, re)
	case q.Get("pattern") != "":
		removed = s.cache.Invalidate(ctx, q.Get("pattern"))
	default:
		removed = s.cache.Stats(ctx).Total
		s.cache.Clear(ctx)
		s.logger.Info(ctx, "cache cleared",
			observe.F("removed", removed),
			observe.F("principal", auth.PrincipalFromContext(ctx)),
		)
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *server) writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(se.Code)
		_, _ = w.Write(se.Body)
		return
	case errors.Is(err, cache.ErrInvalidParams), errors.Is(err, cache.ErrInvalidKey), errors.Is(err, cache.ErrKeyTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
	case errors.Is(err, context.Canceled):
		// Client went away.
		return
	case errors.Is(err, cache.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.Is(err, resilience.ErrCircuitOpen):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable")
	case errors.Is(err, resilience.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "upstream rate limit exceeded")
	default:
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
	s.logger.Warn(r.Context(), "request failed",
		observe.F("method", r.Method),
		observe.F("path", r.URL.Path),
		observe.F("error", err),
	)
}

// requestParams reads params from a JSON body when one is sent, otherwise
// from the query string. Repeated query keys become lists.
func requestParams(r *http.Request) (cache.Params, error) {
	if r.Body != nil && r.ContentLength != 0 && isJSON(r.Header.Get("Content-Type")) {
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
		dec.UseNumber()
		var params cache.Params
		if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.New("request body must be a JSON object")
		}
		return params, nil
	}

	q := r.URL.Query()
	if len(q) == 0 {
		return nil, nil
	}
	params := make(cache.Params, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			params[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		params[k] = list
	}
	return params, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// resourceFamily maps /api/problem/12/edit to /api/problem.
func resourceFamily(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) > 2 {
		segs = segs[:2]
	}
	return "/" + strings.Join(segs, "/")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusWriter records the response code for the access log.
type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// withRequestID tags every request with X-Request-Id, reusing the client's
// value when present, and writes one access log entry per request.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		s.logger.Info(r.Context(), "request",
			observe.F("request_id", id),
			observe.F("method", r.Method),
			observe.F("path", r.URL.Path),
			observe.F("status", sw.code),
			observe.F("size", humanize.Bytes(uint64(sw.bytes))),
			observe.F("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	})
}
