package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultJanitorInterval is how often expired entries are swept by default.
const DefaultJanitorInterval = 10 * time.Minute

// Purger removes expired entries in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context) int
}

// JanitorConfig configures a Janitor.
type JanitorConfig struct {
	// Interval between sweeps. Default: DefaultJanitorInterval.
	Interval time.Duration

	// Recorder is notified after each sweep that removed something.
	Recorder Recorder
}

// Janitor periodically sweeps expired entries out of a store. It bounds
// memory for keys that are written once and never read again; Get already
// enforces TTL on read.
type Janitor struct {
	target   Purger
	interval time.Duration
	recorder Recorder

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
	lastRun time.Time
	runs    int64
}

// NewJanitor creates a stopped janitor for target.
func NewJanitor(target Purger, config JanitorConfig) *Janitor {
	if config.Interval <= 0 {
		config.Interval = DefaultJanitorInterval
	}
	if config.Recorder == nil {
		config.Recorder = NopRecorder{}
	}
	return &Janitor{
		target:   target,
		interval: config.Interval,
		recorder: config.Recorder,
	}
}

// Start launches the sweep goroutine. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stop = make(chan struct{})

	ticker := time.NewTicker(j.interval)
	stop := j.stop
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.RunOnce(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine and waits for it to exit. Idempotent.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stop)
	j.mu.Unlock()

	j.wg.Wait()
}

// RunOnce performs a single sweep and returns how many entries it removed.
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed := j.target.PurgeExpired(ctx)

	j.mu.Lock()
	j.lastRun = time.Now()
	j.runs++
	j.mu.Unlock()

	if removed > 0 {
		j.recorder.Purged(ctx, removed)
	}
	return removed
}

// Running reports whether the sweep goroutine is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// LastRun returns when the last sweep finished, zero if none has run.
func (j *Janitor) LastRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastRun
}

// Runs returns the number of sweeps performed.
func (j *Janitor) Runs() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

// Interval returns the sweep interval.
func (j *Janitor) Interval() time.Duration {
	return j.interval
}
