package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestStartCancellable_Settles(t *testing.T) {
	var settled int32
	c := StartCancellable(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "done", nil
	}, func(v string, err error) {
		atomic.AddInt32(&settled, 1)
	})

	got, err := c.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got != "done" {
		t.Errorf("Wait() = %q, want %q", got, "done")
	}
	if c.Cancel() {
		t.Error("Cancel() after settle = true, want false")
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&settled) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := atomic.LoadInt32(&settled); n != 1 {
		t.Errorf("onSettle called %d times, want 1", n)
	}
}

func TestStartCancellable_CancelSuppressesCallbacks(t *testing.T) {
	var settled int32
	opCancelled := make(chan struct{})
	c := StartCancellable(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(opCancelled)
		return 0, ctx.Err()
	}, func(v int, err error) {
		atomic.AddInt32(&settled, 1)
	})

	if !c.Cancel() {
		t.Fatal("Cancel() = false, want true")
	}
	if c.Cancel() {
		t.Error("second Cancel() = true, want false")
	}

	_, err := c.Wait(context.Background())
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("Wait() error = %v, want ErrCanceled", err)
	}

	select {
	case <-opCancelled:
	case <-time.After(time.Second):
		t.Fatal("operation context was not cancelled")
	}

	// Past the timeout: neither timeout nor completion may be delivered.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&settled); n != 0 {
		t.Errorf("onSettle called %d times after Cancel, want 0", n)
	}
}

func TestStartCancellable_Timeout(t *testing.T) {
	c := StartCancellable(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, nil)

	_, err := c.Wait(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Wait() error = %v, want ErrTimeout", err)
	}
}

func TestCancellableCall_WaitContext(t *testing.T) {
	c := StartCancellable(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, nil)
	defer c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestBatch_AllSucceed(t *testing.T) {
	ops := []func(context.Context) (int, error){
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 2, nil },
		func(ctx context.Context) (int, error) { return 3, nil },
	}

	got, err := Batch(context.Background(), time.Second, ops...)
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if got[i] != want {
			t.Errorf("result[%d] = %d, want %d", i, got[i], want)
		}
	}
}

func TestBatch_FirstFailureCancelsOthers(t *testing.T) {
	biz := &BusinessError{Code: "rejected"}
	slowCancelled := make(chan struct{})

	ops := []func(context.Context) (int, error){
		func(ctx context.Context) (int, error) {
			return 0, biz
		},
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			close(slowCancelled)
			return 0, ctx.Err()
		},
	}

	start := time.Now()
	_, err := Batch(context.Background(), 5*time.Second, ops...)
	if err != biz {
		t.Errorf("Batch() error = %v, want %v", err, biz)
	}
	if time.Since(start) > time.Second {
		t.Error("Batch() waited for the slow member")
	}

	select {
	case <-slowCancelled:
	case <-time.After(time.Second):
		t.Error("slow member was not cancelled")
	}
}
