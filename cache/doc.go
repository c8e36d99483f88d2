// Package cache provides the fingerprint cache that sits in front of upstream calls.
//
// It provides a generic, capacity-bounded MemoryCache with lazy TTL expiry,
// approximate-LRU eviction and a background sweeper; SHA-256 keys over a
// canonical JSON form of the request payload; and per-namespace TTL policies.
package cache
