package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
)

// MemoryCheckerConfig configures the heap health checker.
type MemoryCheckerConfig struct {
	// Budget is the heap size the process is expected to stay under. Cached
	// responses live on the heap, so this is effectively the cache memory
	// budget. Zero uses the runtime's reserved memory (Sys).
	Budget uint64

	// WarningThreshold is the share of Budget that marks the process degraded.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the share of Budget that marks it unhealthy.
	// Default: 0.95
	CriticalThreshold float64
}

// MemoryChecker checks heap usage against a budget.
type MemoryChecker struct {
	config  MemoryCheckerConfig
	readMem func(*runtime.MemStats)
}

// NewMemoryChecker creates a new heap health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	return &MemoryChecker{config: config, readMem: runtime.ReadMemStats}
}

func (m *MemoryChecker) Name() string {
	return "memory"
}

func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	m.readMem(&stats)

	budget := m.config.Budget
	if budget == 0 {
		budget = stats.Sys
	}
	if budget == 0 {
		return Healthy("memory stats unavailable")
	}

	ratio := float64(stats.HeapAlloc) / float64(budget)
	details := map[string]any{
		"heap_alloc":    humanize.IBytes(stats.HeapAlloc),
		"heap_objects":  stats.HeapObjects,
		"budget":        humanize.IBytes(budget),
		"usage_percent": ratio * 100,
		"num_gc":        stats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}
	msg := fmt.Sprintf("heap %s of %s (%.1f%%)", humanize.IBytes(stats.HeapAlloc), humanize.IBytes(budget), ratio*100)

	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy("memory usage critical: "+msg, ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded("memory usage high: " + msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}
