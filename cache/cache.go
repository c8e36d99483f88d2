package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// EntryOverheadBytes is the fixed per-entry cost added to memory estimates.
const EntryOverheadBytes = 64

// Sentinel errors for cache operations.
var (
	ErrNilCache   = errors.New("cache: cache is nil")
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
)

// Cache is the interface for caching upstream results.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: Get should never error; it returns (zero, false) on miss.
type Cache[V any] interface {
	// Get retrieves a cached value. Returns (zero, false) on miss or expiry.
	Get(ctx context.Context, key string) (V, bool)

	// Has reports whether key holds an unexpired value without touching access stats.
	Has(ctx context.Context, key string) bool

	// Set stores a value with the given TTL. TTL<=0 means the cache default.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a cached value. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// Entry is a single cached value together with its bookkeeping.
type Entry[V any] struct {
	Value        V
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
	AccessCount  uint64

	// size is the entry's memory estimate, computed once by Set.
	size int64
}

// expired reports whether the entry's lifetime has ended. An entry is gone at
// exactly CreatedAt+ttl.
func (e *Entry[V]) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	TotalEntries     int     `json:"totalEntries"`
	HitCount         uint64  `json:"hitCount"`
	MissCount        uint64  `json:"missCount"`
	HitRate          float64 `json:"hitRate"` // percent, two decimals
	MemoryUsageBytes int64   `json:"memoryUsageBytes"`
}

// DebugEntry describes one entry for diagnostics. Values are never exposed.
type DebugEntry struct {
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiry"`
	AccessCount  uint64    `json:"accessCount"`
	LastAccessed time.Time `json:"lastAccessed"`
	IsExpired    bool      `json:"isExpired"`
}

// DebugInfo bundles stats with an entry listing sorted by descending access count.
type DebugInfo struct {
	Stats   Stats        `json:"stats"`
	Entries []DebugEntry `json:"entries"`
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	// Reject keys with newlines or carriage returns
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
