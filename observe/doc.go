// Package observe provides the logging, tracing and metrics used around
// upstream calls.
//
// Logger is a small structured logging interface backed by zap. Observer
// owns the OpenTelemetry tracer and meter providers, and Instrumentation
// turns them into one span, a set of counters and a log line per upstream
// call. Payloads are never logged; only namespaces, endpoints and cache keys.
package observe
