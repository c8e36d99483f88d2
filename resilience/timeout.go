package resilience

import (
	"context"
	"time"
)

// DefaultTimeout is used when a bounded call is configured with no deadline.
const DefaultTimeout = 30 * time.Second

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration for the operation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout wraps operations with a timeout.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Timeout{config: config}
}

// Execute runs the operation with a timeout.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Call(ctx, t.config.Timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}

// Call races op against a timer of length timeout.
//
// op receives a context that is cancelled when the timer fires, so a
// timed-out operation is actually cancelled rather than left running.
// If the timer wins, Call returns *TimeoutError. If the parent context is
// cancelled first, Call returns the parent's error. Otherwise op's own
// result and error are returned unchanged.
func Call[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		v, err := op(callCtx)
		done <- result{value: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		// An op that bails out on its own ctx.Done still reports as a timeout.
		if r.err != nil && ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
			return zero, &TimeoutError{Timeout: timeout}
		}
		return r.value, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &TimeoutError{Timeout: timeout}
	}
}

// ExecuteWithTimeout is a convenience function to run an operation with timeout.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	return NewTimeout(TimeoutConfig{Timeout: timeout}).Execute(ctx, op)
}
