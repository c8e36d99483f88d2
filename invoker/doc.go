// Package invoker combines the result cache, the call monitor and the
// resilience stages into one entry point for calling an upstream service.
//
// A call is keyed by namespace and payload. A cache hit is returned without
// touching the upstream. On a miss the operation runs through the bulkhead,
// circuit breaker, retry and timeout stages; a success is cached under the
// namespace TTL and a failure is returned unchanged and never cached.
//
// Concurrent misses for the same key each call the upstream unless
// WithSingleFlight(true) is set, in which case they share one call.
package invoker
