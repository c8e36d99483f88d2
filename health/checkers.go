package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/upstreamguard/cache"
	"github.com/jonwraymond/upstreamguard/monitor"
)

// DefaultCacheFullRatio is the fill level at which CacheChecker reports Degraded.
const DefaultCacheFullRatio = 0.95

// CacheSource is the part of a cache CacheChecker reads.
type CacheSource interface {
	Stats() cache.Stats
	MaxSize() int
}

// CacheChecker reports Degraded when the cache is close to MaxSize.
type CacheChecker struct {
	source    CacheSource
	fullRatio float64
}

// NewCacheChecker creates a CacheChecker over src. A fullRatio outside (0, 1]
// selects DefaultCacheFullRatio.
func NewCacheChecker(src CacheSource, fullRatio float64) *CacheChecker {
	if fullRatio <= 0 || fullRatio > 1 {
		fullRatio = DefaultCacheFullRatio
	}
	return &CacheChecker{source: src, fullRatio: fullRatio}
}

func (c *CacheChecker) Name() string {
	return "cache"
}

func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}

	stats := c.source.Stats()
	maxSize := c.source.MaxSize()
	fill := 0.0
	if maxSize > 0 {
		fill = float64(stats.TotalEntries) / float64(maxSize)
	}

	details := map[string]any{
		"entries":      stats.TotalEntries,
		"max_size":     maxSize,
		"hit_rate":     stats.HitRate,
		"memory_bytes": stats.MemoryUsageBytes,
	}

	if fill >= c.fullRatio {
		return Degraded(fmt.Sprintf("cache %.1f%% full", fill*100)).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("cache %.1f%% full", fill*100)).WithDetails(details)
}

// CallSource lists in-flight upstream calls.
type CallSource interface {
	Stats() []monitor.CallStat
}

// InFlightChecker reports Degraded while any in-flight call is near its timeout.
type InFlightChecker struct {
	source CallSource
}

// NewInFlightChecker creates an InFlightChecker over src.
func NewInFlightChecker(src CallSource) *InFlightChecker {
	return &InFlightChecker{source: src}
}

func (c *InFlightChecker) Name() string {
	return "upstream_calls"
}

func (c *InFlightChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context done", err)
	}

	calls := c.source.Stats()
	var slow []string
	for _, s := range calls {
		if s.NearTimeout {
			slow = append(slow, s.Endpoint)
		}
	}

	details := map[string]any{
		"in_flight":    len(calls),
		"near_timeout": len(slow),
	}
	if len(slow) > 0 {
		details["slow_endpoints"] = slow
		return Degraded(fmt.Sprintf("%d of %d calls near timeout", len(slow), len(calls))).WithDetails(details)
	}
	return Healthy(fmt.Sprintf("%d calls in flight", len(calls))).WithDetails(details)
}
