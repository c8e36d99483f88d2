package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior. It is treated as immutable once
// handed to NewRetry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Total attempts = MaxRetries + 1; zero or negative means a single attempt.
	// DefaultRetryConfig uses 3.
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 10s
	MaxDelay time.Duration

	// BackoffFactor is the exponential backoff multiplier.
	// Default: 2.0
	BackoffFactor float64

	// Jitter adds up to 25% random extra delay to spread out synchronized retriers.
	// Default: false
	Jitter bool

	// RetryIf determines if an error should trigger a retry.
	// Default: IsRetryable
	RetryIf func(err error) bool

	// OnRetry is called before each retry wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NoRetries disables retrying when used as MaxRetries. It is the same as zero.
const NoRetries = 0

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		RetryIf:       IsRetryable,
	}
}

// Retry implements retry with exponential backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler. Zero delay, factor and predicate
// fields take their values from DefaultRetryConfig; MaxRetries is used as given.
func NewRetry(config RetryConfig) *Retry {
	def := DefaultRetryConfig()

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = def.BaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.MaxDelay < config.BaseDelay {
		config.MaxDelay = config.BaseDelay
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = def.BackoffFactor
	}
	if config.RetryIf == nil {
		config.RetryIf = def.RetryIf
	}

	return &Retry{config: config}
}

// Execute runs the operation with retry logic. Attempts are not individually
// bounded; see Invoke for the bounded form.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := retryLoop(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Invoke executes op through Call with the given per-attempt timeout,
// retrying retryable failures with backoff. After the final attempt the
// last error is returned unchanged.
func Invoke[T any](ctx context.Context, r *Retry, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	return retryLoop(ctx, r, func(ctx context.Context) (T, error) {
		return Call(ctx, timeout, op)
	})
}

func retryLoop[T any](ctx context.Context, r *Retry, attemptFn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		v, err := attemptFn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return zero, err
		}

		// Don't wait after the last attempt
		if attempt == r.config.MaxRetries {
			break
		}

		delay := r.Delay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}

// Delay returns the wait before retry number attempt+1 (attempt is zero-based):
// min(BaseDelay * BackoffFactor^attempt, MaxDelay), plus jitter when enabled.
func (r *Retry) Delay(attempt int) time.Duration {
	multiplier := math.Pow(r.config.BackoffFactor, float64(attempt))
	raw := float64(r.config.BaseDelay) * multiplier

	delay := r.config.MaxDelay
	if raw < float64(r.config.MaxDelay) {
		delay = time.Duration(raw)
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Attempts returns the total number of attempts, MaxRetries+1.
func (r *Retry) Attempts() int {
	return r.config.MaxRetries + 1
}
