package cache

import (
	"context"
	"time"
)

// Recorder receives cache lifecycle events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic and should return quickly;
//   they are called on the request path.
type Recorder interface {
	// Hit is called when a fresh stored value answers the request.
	Hit(ctx context.Context, key string)
	// Miss is called when a caller starts a new transport call.
	Miss(ctx context.Context, key string)
	// Shared is called when a caller attaches to an in-flight fetch.
	Shared(ctx context.Context, key string)
	// Bypass is called for requests the policy refuses to cache.
	Bypass(ctx context.Context, method, path string)
	// Fetched is called once per transport call made by a flight.
	Fetched(ctx context.Context, key string, duration time.Duration, err error)
	// Stored is called after a successful fetch is written to the store.
	Stored(ctx context.Context, key string, ttl time.Duration)
	// Invalidated is called after an invalidation removed n entries.
	Invalidated(ctx context.Context, pattern string, n int)
	// Purged is called after the janitor removed n expired entries.
	Purged(ctx context.Context, n int)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) Hit(context.Context, string)                           {}
func (NopRecorder) Miss(context.Context, string)                          {}
func (NopRecorder) Shared(context.Context, string)                        {}
func (NopRecorder) Bypass(context.Context, string, string)                {}
func (NopRecorder) Fetched(context.Context, string, time.Duration, error) {}
func (NopRecorder) Stored(context.Context, string, time.Duration)         {}
func (NopRecorder) Invalidated(context.Context, string, int)              {}
func (NopRecorder) Purged(context.Context, int)                           {}

var _ Recorder = NopRecorder{}
