package resilience

import (
	"context"
	"time"
)

// Executor composes the resilience stages around one upstream call.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	bulkhead       *Bulkhead
	timeout        time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout bounds every attempt to timeout.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = timeout
	}
}

// Execute runs an error-only operation through all configured stages.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do runs op through the executor's stages and returns its value.
//
// The execution order is:
// 1. Bulkhead (if configured) - limits concurrency
// 2. Circuit Breaker (if configured) - sheds load from a failing upstream
// 3. Retry (if configured) - retries retryable failures with backoff
// 4. Timeout (if configured) - bounds each attempt
//
// The breaker sees the outcome after retries, so one logical call counts once.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	// Build the execution chain from inside out
	execute := op

	if e.timeout > 0 {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			return Call(ctx, e.timeout, inner)
		}
	}

	if e.retry != nil {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			return retryLoop(ctx, e.retry, inner)
		}
	}

	if e.circuitBreaker != nil {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			var v T
			err := e.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
				var err error
				v, err = inner(ctx)
				return err
			})
			return v, err
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) (T, error) {
			var v T
			err := e.bulkhead.Execute(ctx, func(ctx context.Context) error {
				var err error
				v, err = inner(ctx)
				return err
			})
			return v, err
		}
	}

	return execute(ctx)
}
