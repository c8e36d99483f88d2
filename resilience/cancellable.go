package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CancellableCall is a bounded call that the caller can abandon.
//
// Cancel suppresses both the timeout and the completion callback and
// cancels the context handed to the operation. It is used when the caller
// has given up for an unrelated reason, e.g. another member of a batch failed.
type CancellableCall[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	canceled bool
	settled  bool
	value    T
	err      error
}

// StartCancellable starts op immediately, bounded by timeout.
// onSettle, if non-nil, is called exactly once with the outcome unless
// Cancel wins the race.
func StartCancellable[T any](
	ctx context.Context,
	timeout time.Duration,
	op func(context.Context) (T, error),
	onSettle func(T, error),
) *CancellableCall[T] {
	ctx, cancel := context.WithCancel(ctx)
	c := &CancellableCall[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()
		v, err := Call(ctx, timeout, op)

		c.mu.Lock()
		if c.canceled {
			c.mu.Unlock()
			return
		}
		c.settled = true
		c.value, c.err = v, err
		close(c.done)
		c.mu.Unlock()

		if onSettle != nil {
			onSettle(v, err)
		}
	}()

	return c
}

// Cancel abandons the call. It reports whether the call was still pending.
// Safe to call more than once.
func (c *CancellableCall[T]) Cancel() bool {
	c.mu.Lock()
	if c.canceled || c.settled {
		c.mu.Unlock()
		return false
	}
	c.canceled = true
	var zero T
	c.value, c.err = zero, ErrCanceled
	close(c.done)
	c.mu.Unlock()

	c.cancel()
	return true
}

// Done is closed once the call settles or is cancelled.
func (c *CancellableCall[T]) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles, is cancelled, or ctx ends.
func (c *CancellableCall[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.value, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Batch runs every op concurrently, each bounded by timeout.
// The first failure cancels the remaining members and is returned unchanged.
func Batch[T any](ctx context.Context, timeout time.Duration, ops ...func(context.Context) (T, error)) ([]T, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]T, len(ops))
	calls := make([]*CancellableCall[T], len(ops))

	for i, op := range ops {
		calls[i] = StartCancellable(gctx, timeout, op, nil)
	}

	for i, call := range calls {
		g.Go(func() error {
			v, err := call.Wait(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		for _, call := range calls {
			call.Cancel()
		}
		return nil, err
	}
	return results, nil
}
