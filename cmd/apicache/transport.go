package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/apicache/cache"
	"github.com/jonwraymond/apicache/resilience"
)

// maxUpstreamBody caps how much of an upstream response is read.
const maxUpstreamBody = 32 << 20

// StatusError is returned for a non-2xx upstream response. It is never cached.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.Code, http.StatusText(e.Code))
}

// upstreamRetryable reports whether err is worth another attempt: network
// failures, 429 and 5xx. Other statuses and context errors are final, and so
// are rejections by the circuit breaker or rate limiter.
func upstreamRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrRateLimited) {
		return false
	}
	return resilience.Transient(err)
}

// HTTPTransport calls an upstream JSON API. GET and HEAD params travel in the
// query string; other methods send them as a JSON body.
type HTTPTransport struct {
	base   *url.URL
	client *http.Client
	header http.Header
}

// NewHTTPTransport creates a transport for the API rooted at base.
func NewHTTPTransport(base string, timeout time.Duration) (*HTTPTransport, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", base)
	}
	return &HTTPTransport{
		base:   u,
		client: &http.Client{Timeout: timeout},
		header: http.Header{"Accept": []string{"application/json"}},
	}, nil
}

// Do performs one upstream request. It has the cache.Transport signature.
func (t *HTTPTransport) Do(ctx context.Context, method, path string, params cache.Params) ([]byte, error) {
	u := t.base.JoinPath(path)

	var body io.Reader
	if method == http.MethodGet || method == http.MethodHead {
		u.RawQuery = encodeQuery(params)
	} else if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = t.header.Clone()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: data}
	}
	return data, nil
}

// Ping checks that the upstream answers at all. Any status below 500 counts.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.base.String(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// encodeQuery renders params as a query string in sorted key order.
// Slices repeat the key; maps and other composites are sent as JSON.
func encodeQuery(params cache.Params) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		var vals []string
		switch v := params[k].(type) {
		case []any:
			for _, e := range v {
				vals = append(vals, queryValue(e))
			}
		case []string:
			vals = v
		default:
			vals = []string{queryValue(v)}
		}
		for _, s := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(s))
		}
	}
	return sb.String()
}

func queryValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
