package health

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jonwraymond/apicache/cache"
)

// CacheSource is the view of a request cache the checker needs.
// *cache.RequestCache satisfies it.
type CacheSource interface {
	Stats(ctx context.Context) cache.Stats
	Janitor() *cache.Janitor
}

// CacheCheckerConfig configures the cache health checker.
type CacheCheckerConfig struct {
	// ExpiredRatio is the share of expired entries, out of all stored, that
	// marks the cache degraded. Default: 0.5
	ExpiredRatio float64

	// MaxPending marks the cache degraded when more fetches are in flight.
	// Zero disables the check.
	MaxPending int

	// RequireJanitor marks the cache unhealthy when no janitor is running.
	RequireJanitor bool
}

// CacheChecker reports request cache health.
type CacheChecker struct {
	src    CacheSource
	config CacheCheckerConfig
	now    func() time.Time
}

// NewCacheChecker creates a checker for src.
func NewCacheChecker(src CacheSource, config CacheCheckerConfig) *CacheChecker {
	if config.ExpiredRatio <= 0 || config.ExpiredRatio > 1 {
		config.ExpiredRatio = 0.5
	}
	return &CacheChecker{src: src, config: config, now: time.Now}
}

func (c *CacheChecker) Name() string {
	return "cache"
}

// Check reports unhealthy when a required janitor is stopped and degraded
// when expired entries or in-flight fetches pile up.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	st := c.src.Stats(ctx)
	details := map[string]any{
		"total":   st.Total,
		"valid":   st.Valid,
		"expired": st.Expired,
		"pending": st.Pending,
	}

	j := c.src.Janitor()
	if j != nil {
		details["janitor_running"] = j.Running()
		details["janitor_interval"] = j.Interval().String()
		details["janitor_runs"] = j.Runs()
		if last := j.LastRun(); !last.IsZero() {
			details["janitor_last_run"] = humanize.RelTime(last, c.now(), "ago", "from now")
		}
	}

	if c.config.RequireJanitor && (j == nil || !j.Running()) {
		return Unhealthy("janitor is not running", ErrCheckFailed).WithDetails(details)
	}

	if st.Total > 0 {
		ratio := float64(st.Expired) / float64(st.Total)
		if ratio >= c.config.ExpiredRatio {
			return Degraded(fmt.Sprintf("%.0f%% of entries expired", ratio*100)).WithDetails(details)
		}
	}

	if c.config.MaxPending > 0 && st.Pending > c.config.MaxPending {
		return Degraded(fmt.Sprintf("%s fetches in flight", humanize.Comma(int64(st.Pending)))).WithDetails(details)
	}

	return Healthy(fmt.Sprintf("%s entries cached", humanize.Comma(int64(st.Valid)))).WithDetails(details)
}
