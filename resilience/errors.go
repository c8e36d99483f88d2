package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrTimeout matches every *TimeoutError via errors.Is.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrCanceled is returned by a CancellableCall that was explicitly cancelled.
	ErrCanceled = errors.New("resilience: call canceled")

	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")
)

// TimeoutError reports that a bounded call did not settle before its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: operation timed out after %s", e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) succeed.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// TransientError is a network-level failure (reset, DNS, connect/read timeout).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("resilience: transient failure: %v", e.Err)
	}
	return fmt.Sprintf("resilience: transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Temporary reports true; transient errors are worth retrying.
func (e *TransientError) Temporary() bool { return true }

// BusinessError is a well-formed rejection from the upstream
// (auth failure, bad request, validation failure).
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("upstream rejected request: %s: %s", e.Code, e.Message)
	case e.Message != "":
		return "upstream rejected request: " + e.Message
	case e.Code != "":
		return "upstream rejected request: " + e.Code
	default:
		return "upstream rejected request"
	}
}

func (e *BusinessError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transport-level or timeout failure.
// Business errors, cancellation and unrecognised errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var business *BusinessError
	if errors.As(err, &business) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	return false
}
