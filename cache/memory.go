package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves a value from the store. Returns (nil, false) on miss or expiry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if !entry.ValidAt(s.now()) {
		s.mu.Lock()
		// Only drop the entry we judged; a concurrent Set may have replaced it.
		if s.entries[key] == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return entry.Value, true
}

// Set stores a value with the given TTL. TTL<=0 stores nothing.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	s.entries[key] = &Entry{
		Value:    value,
		StoredAt: s.now(),
		TTL:      ttl,
	}
	s.mu.Unlock()

	return nil
}

// Delete removes a value from the store. Idempotent - no error on miss.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Invalidate removes the exact key p.Expr if present, otherwise every key p matches.
func (s *MemoryStore) Invalidate(_ context.Context, p Pattern) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !p.Regex {
		if _, ok := s.entries[p.Expr]; ok {
			delete(s.entries, p.Expr)
			return 1
		}
	}

	removed := 0
	for key := range s.entries {
		if p.Match(key) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()
}

// Stats scans all entries. Pending is always zero at the store level.
func (s *MemoryStore) Stats(_ context.Context) Stats {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.entries)}
	for _, entry := range s.entries {
		if entry.ValidAt(now) {
			st.Valid++
		} else {
			st.Expired++
		}
	}
	return st
}

// PurgeExpired removes every expired entry.
func (s *MemoryStore) PurgeExpired(_ context.Context) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !entry.ValidAt(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
