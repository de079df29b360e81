package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrNilTransport   = errors.New("cache: transport is nil")
	ErrInvalidKey     = errors.New("cache: key is invalid")
	ErrKeyTooLong     = errors.New("cache: key exceeds max length")
	ErrInvalidParams  = errors.New("cache: params cannot be serialized deterministically")
	ErrInvalidPolicy  = errors.New("cache: policy is invalid")
	ErrClosed         = errors.New("cache: request cache is closed")
	ErrTransportPanic = errors.New("cache: transport panicked")
)

// Params holds request parameters. Values may be scalars, nested maps or slices.
type Params = map[string]any

// Transport performs the actual network request. The cache only invokes it.
type Transport func(ctx context.Context, method, path string, params Params) ([]byte, error)

// Request identifies a single logical API call.
type Request struct {
	Method string
	Path   string
	Params Params
}

// Entry is a stored response.
type Entry struct {
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
}

// ValidAt reports whether the entry is still fresh at now.
func (e Entry) ValidAt(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Stats is a point-in-time snapshot of the cache contents.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
	Pending int `json:"pending"`
}

// Store holds cached responses.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get never errors; it returns (nil, false) on miss or expiry.
// - Ownership: values passed to Set belong to the store afterwards.
type Store interface {
	// Get returns a fresh value. Expired entries are removed and reported as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value with the given TTL. TTL<=0 means no caching.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Invalidate removes every key matched by p and returns how many were removed.
	Invalidate(ctx context.Context, p Pattern) int

	// Clear drops every entry.
	Clear(ctx context.Context)

	// Stats classifies entries without mutating the store.
	Stats(ctx context.Context) Stats

	// PurgeExpired removes every expired entry and returns the count.
	PurgeExpired(ctx context.Context) int
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
