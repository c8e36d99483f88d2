package cache

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Defaults applied by NewMemoryCache.
const (
	DefaultMaxSize       = 1000
	DefaultTTL           = time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// EvictReason says why an entry left the cache without an explicit Delete.
type EvictReason int

const (
	// EvictCapacity means the entry was the least recently accessed at capacity.
	EvictCapacity EvictReason = iota
	// EvictExpired means a read or sweep found the entry past its expiry.
	EvictExpired
)

// String returns the string representation of the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Options configures a MemoryCache.
type Options[V any] struct {
	// MaxSize bounds the number of entries.
	// Default: 1000
	MaxSize int

	// DefaultTTL is used when Set is called with ttl<=0.
	// Default: 1h
	DefaultTTL time.Duration

	// SweepInterval is how often expired entries are purged in the background.
	// Negative disables the sweeper.
	// Default: 5m
	SweepInterval time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// Sizer estimates the byte size of a value.
	// Default: length of its JSON encoding.
	Sizer func(V) int

	// OnEvict is called, outside the lock, for capacity and expiry removals.
	OnEvict func(key string, reason EvictReason)
}

// Option configures a MemoryCache.
type Option[V any] func(*Options[V])

// WithMaxSize sets the entry capacity.
func WithMaxSize[V any](n int) Option[V] {
	return func(o *Options[V]) { o.MaxSize = n }
}

// WithDefaultTTL sets the TTL used when none is given.
func WithDefaultTTL[V any](ttl time.Duration) Option[V] {
	return func(o *Options[V]) { o.DefaultTTL = ttl }
}

// WithSweepInterval sets the background sweep period. Negative disables it.
func WithSweepInterval[V any](d time.Duration) Option[V] {
	return func(o *Options[V]) { o.SweepInterval = d }
}

// WithClock overrides the cache clock.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(o *Options[V]) { o.Now = now }
}

// WithSizer overrides value size estimation.
func WithSizer[V any](sizer func(V) int) Option[V] {
	return func(o *Options[V]) { o.Sizer = sizer }
}

// WithEvictCallback registers an eviction observer.
func WithEvictCallback[V any](fn func(key string, reason EvictReason)) Option[V] {
	return func(o *Options[V]) { o.OnEvict = fn }
}

// WithOptions copies a whole Options value, e.g. one built from configuration.
func WithOptions[V any](opts Options[V]) Option[V] {
	return func(o *Options[V]) { *o = opts }
}

// MemoryCache is a capacity-bounded, TTL-based in-memory cache.
//
// Expiry is lazy: an entry past its expiry is a miss even before it is
// physically removed. A background sweeper owned by the instance removes
// expired entries that are never read again; Close stops it.
type MemoryCache[V any] struct {
	opts Options[V]

	mu      sync.Mutex
	entries map[string]*Entry[V]

	hits   atomic.Uint64
	misses atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache and starts its sweeper.
func NewMemoryCache[V any](opts ...Option[V]) *MemoryCache[V] {
	var o Options[V]
	for _, opt := range opts {
		opt(&o)
	}

	// Apply defaults
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sizer == nil {
		o.Sizer = jsonSize[V]
	}

	c := &MemoryCache[V]{
		opts:    o,
		entries: make(map[string]*Entry[V]),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if o.SweepInterval > 0 {
		go c.sweepLoop(o.SweepInterval)
	} else {
		close(c.done)
	}

	return c
}

// Get retrieves a value from the cache. Returns (zero, false) on miss or expiry.
func (c *MemoryCache[V]) Get(_ context.Context, key string) (V, bool) {
	now := c.opts.Now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && entry.expired(now) {
		// Expired - clean up lazily
		delete(c.entries, key)
		c.mu.Unlock()
		c.misses.Inc()
		c.notifyEvict(key, EvictExpired)
		var zero V
		return zero, false
	}
	if !ok {
		c.mu.Unlock()
		c.misses.Inc()
		var zero V
		return zero, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	value := entry.Value
	c.mu.Unlock()

	c.hits.Inc()
	return value, true
}

// Has reports whether key is present and unexpired. Access stats are untouched.
func (c *MemoryCache[V]) Has(_ context.Context, key string) bool {
	now := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return ok && !entry.expired(now)
}

// Peek returns a fresh value without changing hit, miss or access stats.
func (c *MemoryCache[V]) Peek(_ context.Context, key string) (V, bool) {
	now := c.opts.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(now) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores a value. TTL<=0 uses the configured default TTL.
// When a new key would exceed MaxSize, the least recently accessed entry is evicted first.
func (c *MemoryCache[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	now := c.opts.Now()
	entry := &Entry[V]{
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
		size:         int64(len(key) + c.opts.Sizer(value) + EntryOverheadBytes),
	}

	var evicted string
	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.opts.MaxSize {
		evicted = c.evictOldestLocked()
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if evicted != "" {
		c.notifyEvict(evicted, EvictCapacity)
	}
	return nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache[V]) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear removes every entry and resets hit/miss counters.
func (c *MemoryCache[V]) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.hits.Store(0)
	c.misses.Store(0)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet removed.
func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the configured capacity.
func (c *MemoryCache[V]) MaxSize() int {
	return c.opts.MaxSize
}

// Sweep removes every expired entry and returns how many were removed.
func (c *MemoryCache[V]) Sweep() int {
	now := c.opts.Now()

	var removed []string
	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	for _, key := range removed {
		c.notifyEvict(key, EvictExpired)
	}
	return len(removed)
}

// Stats returns a snapshot of cache statistics.
func (c *MemoryCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// DebugInfo returns stats plus every entry sorted by descending access count.
func (c *MemoryCache[V]) DebugInfo() DebugInfo {
	now := c.opts.Now()

	c.mu.Lock()
	stats := c.statsLocked()
	entries := make([]DebugEntry, 0, len(c.entries))
	for key, entry := range c.entries {
		entries = append(entries, DebugEntry{
			Key:          key,
			CreatedAt:    entry.CreatedAt,
			ExpiresAt:    entry.ExpiresAt,
			AccessCount:  entry.AccessCount,
			LastAccessed: entry.LastAccessed,
			IsExpired:    entry.expired(now),
		})
	}
	c.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AccessCount != entries[j].AccessCount {
			return entries[i].AccessCount > entries[j].AccessCount
		}
		return entries[i].Key < entries[j].Key
	})

	return DebugInfo{Stats: stats, Entries: entries}
}

// Close stops the background sweeper. Safe to call more than once.
func (c *MemoryCache[V]) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *MemoryCache[V]) statsLocked() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var memory int64
	for _, entry := range c.entries {
		memory += entry.size
	}

	return Stats{
		TotalEntries:     len(c.entries),
		HitCount:         hits,
		MissCount:        misses,
		HitRate:          HitRate(hits, misses),
		MemoryUsageBytes: memory,
	}
}

// evictOldestLocked removes the entry with the oldest LastAccessed and returns its key.
func (c *MemoryCache[V]) evictOldestLocked() string {
	var (
		oldestKey  string
		oldestTime time.Time
		found      bool
	)
	for key, entry := range c.entries {
		if !found || entry.LastAccessed.Before(oldestTime) ||
			(entry.LastAccessed.Equal(oldestTime) && key < oldestKey) {
			oldestKey = key
			oldestTime = entry.LastAccessed
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
	return oldestKey
}

func (c *MemoryCache[V]) sweepLoop(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *MemoryCache[V]) notifyEvict(key string, reason EvictReason) {
	if c.opts.OnEvict != nil {
		c.opts.OnEvict(key, reason)
	}
}

// HitRate returns hits/(hits+misses) as a percentage rounded to two decimals.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(hits)/float64(total)*100*100) / 100
}

func jsonSize[V any](v V) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}

// Ensure MemoryCache implements Cache
var _ Cache[any] = (*MemoryCache[any])(nil)
