// Package resilience bounds, retries and isolates calls to remote upstreams.
//
// Every upstream call is wrapped so that it cannot hang forever, transient
// failures are retried with exponential backoff, and a misbehaving upstream
// is shed by a circuit breaker instead of being hammered by retries.
//
// # Building blocks
//
//   - Call: races an operation against a timer. The operation's context is
//     cancelled when the timer fires and the caller receives *TimeoutError.
//
//   - StartCancellable / Batch: bounded calls the caller can abandon. Batch
//     runs a group and cancels the rest on the first failure.
//
//   - Retry / Invoke: exponential backoff, delay = min(base*factor^n, max).
//     Only errors accepted by IsRetryable are retried. The last error is
//     returned unchanged once attempts are exhausted.
//
//   - CircuitBreaker: a thin wrapper over github.com/sony/gobreaker that only
//     counts retryable failures.
//
//   - Bulkhead: caps concurrent calls to one upstream.
//
// # Error classes
//
// Failures fall into three classes. *TimeoutError and *TransientError are
// retryable. *BusinessError is a well-formed rejection and is returned to
// the caller at once. Anything else is treated as non-retryable.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxRetries: 3,
//	    BaseDelay:  time.Second,
//	    MaxDelay:   10 * time.Second,
//	})
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "ocr"})),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(30*time.Second),
//	)
//
//	text, err := resilience.Do(ctx, exec, func(ctx context.Context) (string, error) {
//	    return client.RecognizeText(ctx, image)
//	})
package resilience
