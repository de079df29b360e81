package health

import (
	"context"
	"testing"
	"time"

	"github.com/jonwraymond/apicache/cache"
)

type fakeCache struct {
	stats   cache.Stats
	janitor *cache.Janitor
}

func (f *fakeCache) Stats(context.Context) cache.Stats { return f.stats }
func (f *fakeCache) Janitor() *cache.Janitor           { return f.janitor }

func TestCacheChecker(t *testing.T) {
	running := cache.NewJanitor(cache.NewMemoryStore(), cache.JanitorConfig{Interval: time.Hour})
	running.Start()
	defer running.Stop()
	stopped := cache.NewJanitor(cache.NewMemoryStore(), cache.JanitorConfig{})

	tests := []struct {
		name   string
		src    *fakeCache
		config CacheCheckerConfig
		want   Status
	}{
		{"empty cache", &fakeCache{janitor: running}, CacheCheckerConfig{RequireJanitor: true}, StatusHealthy},
		{"mostly valid", &fakeCache{stats: cache.Stats{Total: 10, Valid: 8, Expired: 2}}, CacheCheckerConfig{}, StatusHealthy},
		{"mostly expired", &fakeCache{stats: cache.Stats{Total: 10, Valid: 4, Expired: 6}}, CacheCheckerConfig{}, StatusDegraded},
		{"custom ratio", &fakeCache{stats: cache.Stats{Total: 10, Valid: 8, Expired: 2}}, CacheCheckerConfig{ExpiredRatio: 0.2}, StatusDegraded},
		{"too many pending", &fakeCache{stats: cache.Stats{Pending: 11}}, CacheCheckerConfig{MaxPending: 10}, StatusDegraded},
		{"janitor stopped", &fakeCache{janitor: stopped}, CacheCheckerConfig{RequireJanitor: true}, StatusUnhealthy},
		{"janitor missing", &fakeCache{}, CacheCheckerConfig{RequireJanitor: true}, StatusUnhealthy},
		{"janitor optional", &fakeCache{}, CacheCheckerConfig{}, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCacheChecker(tt.src, tt.config).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check() = %v (%s), want %v", r.Status, r.Message, tt.want)
			}
		})
	}
}

func TestCacheChecker_WithRequestCache(t *testing.T) {
	rc, err := cache.New(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	checker := NewCacheChecker(rc, CacheCheckerConfig{RequireJanitor: true})

	ctx := context.Background()
	if r := checker.Check(ctx); r.Status != StatusHealthy {
		t.Errorf("open cache = %v (%s), want healthy", r.Status, r.Message)
	}
	if r := checker.Check(ctx); r.Details["janitor_running"] != true {
		t.Errorf("details = %v, want janitor_running", r.Details)
	}

	_ = rc.Close()
	if r := checker.Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("closed cache = %v, want unhealthy", r.Status)
	}
}

func TestCacheChecker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := NewCacheChecker(&fakeCache{}, CacheCheckerConfig{}).Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Check() = %v, want unhealthy", r.Status)
	}
}
