package cache

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config configures a RequestCache.
type Config struct {
	// Policy decides cacheability and TTLs. The zero Policy disables caching.
	Policy Policy

	// Store holds responses. Default: NewMemoryStore().
	Store Store

	// Keyer derives cache keys. Default: DefaultKeyer.
	Keyer Keyer

	// Recorder receives cache events. Default: NopRecorder.
	Recorder Recorder

	// JanitorInterval is the sweep interval for expired entries.
	// Zero uses DefaultJanitorInterval; negative disables the janitor.
	JanitorInterval time.Duration
}

// DefaultConfig returns a Config using DefaultPolicy and a memory store.
func DefaultConfig() Config {
	return Config{Policy: DefaultPolicy()}
}

// RequestCache sits between call sites and a Transport. It serves fresh
// stored responses, collapses concurrent identical requests into a single
// transport call, and stores successful results with per-endpoint TTLs.
//
// Contract:
//   - Concurrency: safe for concurrent use. For a given key at most one
//     transport call is in flight at any time.
//   - Ownership: every caller receives its own copy of the response bytes.
//   - Errors: transport errors reach every attached caller unchanged and are
//     never stored.
//   - Context: a caller's ctx only bounds its own wait. The transport runs on
//     a context detached from cancellation, so an abandoned fetch still
//     completes and populates the cache.
type RequestCache struct {
	policy   Policy
	store    Store
	keyer    Keyer
	recorder Recorder
	janitor  *Janitor

	mu      sync.Mutex
	pending map[string]*flight
	closed  bool
}

// flight is the shared future for one in-flight transport call.
type flight struct {
	done chan struct{}
	val  []byte
	err  error
}

// New creates a RequestCache and starts its janitor.
// Callers own the returned cache and must Close it.
func New(cfg Config) (*RequestCache, error) {
	policy, err := cfg.Policy.Validate()
	if err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Keyer == nil {
		cfg.Keyer = NewDefaultKeyer()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}

	c := &RequestCache{
		policy:   policy,
		store:    cfg.Store,
		keyer:    cfg.Keyer,
		recorder: cfg.Recorder,
		pending:  make(map[string]*flight),
	}

	if cfg.JanitorInterval >= 0 {
		c.janitor = NewJanitor(cfg.Store, JanitorConfig{
			Interval: cfg.JanitorInterval,
			Recorder: cfg.Recorder,
		})
		c.janitor.Start()
	}

	return c, nil
}

// Fetch returns the response for (method, path, params), using the cache
// where the policy allows it.
//
// Requests the policy refuses are passed straight to transport and their
// result is returned unmodified. Otherwise a fresh stored value is returned,
// or the caller attaches to an in-flight fetch for the same key, or a new
// fetch is started.
func (c *RequestCache) Fetch(ctx context.Context, method, path string, params Params, transport Transport) ([]byte, error) {
	if transport == nil {
		return nil, ErrNilTransport
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	if !c.policy.IsCacheable(method, path) {
		c.recorder.Bypass(ctx, method, path)
		return transport(ctx, method, path, params)
	}

	key, err := c.keyer.Key(method, path, params)
	if err != nil {
		return nil, err
	}

	if val, ok := c.store.Get(ctx, key); ok {
		c.recorder.Hit(ctx, key)
		return bytes.Clone(val), nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if f, ok := c.pending[key]; ok {
		c.mu.Unlock()
		c.recorder.Shared(ctx, key)
		return f.wait(ctx)
	}
	// A flight may have settled between the first lookup and taking the lock.
	if val, ok := c.store.Get(ctx, key); ok {
		c.mu.Unlock()
		c.recorder.Hit(ctx, key)
		return bytes.Clone(val), nil
	}
	f := &flight{done: make(chan struct{})}
	c.pending[key] = f
	c.mu.Unlock()

	c.recorder.Miss(ctx, key)
	go c.run(context.WithoutCancel(ctx), f, key, method, path, params, transport)

	return f.wait(ctx)
}

// Do is Fetch for a Request value.
func (c *RequestCache) Do(ctx context.Context, req Request, transport Transport) ([]byte, error) {
	return c.Fetch(ctx, req.Method, req.Path, req.Params, transport)
}

// Warm fetches reqs concurrently, at most limit at a time (limit<=0 means
// unbounded). The first failure cancels requests not yet started and is returned.
func (c *RequestCache) Warm(ctx context.Context, reqs []Request, transport Transport, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := c.Do(gctx, req, transport)
			return err
		})
	}
	return g.Wait()
}

// run executes the transport for f and settles it.
func (c *RequestCache) run(ctx context.Context, f *flight, key, method, path string, params Params, transport Transport) {
	start := time.Now()
	val, err := callTransport(ctx, transport, method, path, params)
	c.recorder.Fetched(ctx, key, time.Since(start), err)

	var ttl time.Duration
	stored := false

	c.mu.Lock()
	// Clear or Invalidate may have detached f; its result then only answers
	// the callers already waiting on it.
	if c.pending[key] == f {
		delete(c.pending, key)
		if err == nil {
			ttl = c.policy.ResolveTTL(path)
			stored = c.store.Set(ctx, key, val, ttl) == nil
		}
	}
	f.val, f.err = val, err
	c.mu.Unlock()

	if stored {
		c.recorder.Stored(ctx, key, ttl)
	}
	close(f.done)
}

func callTransport(ctx context.Context, transport Transport, method, path string, params Params) (val []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("%w: %v", ErrTransportPanic, r)
		}
	}()
	return transport(ctx, method, path, params)
}

func (f *flight) wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return bytes.Clone(f.val), f.err
	default:
	}

	select {
	case <-f.done:
		return bytes.Clone(f.val), f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns a copy of a fresh stored value.
func (c *RequestCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok := c.store.Get(ctx, key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(val), true
}

// Set stores a copy of value under key. A non-positive ttl uses the policy
// default; all TTLs are clamped to the policy maximum.
func (c *RequestCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return c.store.Set(ctx, key, bytes.Clone(value), c.policy.EffectiveTTL(ttl))
}

// Invalidate removes the exact key, or every key containing pattern.
// A pattern matching nothing is a no-op.
//
// In-flight fetches for matching keys are detached: their callers still get
// the result, but it is not stored. A Fetch for such a key after Invalidate
// starts a new transport call even while the detached one is running, so
// for that key two calls may briefly overlap, as with Clear.
func (c *RequestCache) Invalidate(ctx context.Context, pattern string) int {
	return c.invalidate(ctx, Substring(pattern))
}

// InvalidateRegexp removes every key matched by re.
func (c *RequestCache) InvalidateRegexp(ctx context.Context, re *regexp.Regexp) int {
	return c.invalidate(ctx, Regexp(re))
}

func (c *RequestCache) invalidate(ctx context.Context, p Pattern) int {
	c.mu.Lock()
	for key := range c.pending {
		if p.Match(key) {
			delete(c.pending, key)
		}
	}
	n := c.store.Invalidate(ctx, p)
	c.mu.Unlock()

	c.recorder.Invalidated(ctx, p.String(), n)
	return n
}

// Clear drops every entry and every pending handle.
func (c *RequestCache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.pending = make(map[string]*flight)
	c.store.Clear(ctx)
	c.mu.Unlock()
}

// Stats returns a snapshot of stored entries and in-flight fetches.
func (c *RequestCache) Stats(ctx context.Context) Stats {
	st := c.store.Stats(ctx)
	c.mu.Lock()
	st.Pending = len(c.pending)
	c.mu.Unlock()
	return st
}

// Policy returns the validated policy in use.
func (c *RequestCache) Policy() Policy {
	return c.policy
}

// Janitor returns the background sweeper, nil when disabled.
func (c *RequestCache) Janitor() *Janitor {
	return c.janitor
}

// Close stops the janitor and clears the cache. Later fetches fail with ErrClosed.
func (c *RequestCache) Close() error {
	if c.janitor != nil {
		c.janitor.Stop()
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Clear(context.Background())
	return nil
}

func (c *RequestCache) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
