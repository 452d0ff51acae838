package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports a document that exceeded its time budget.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("OCR timed out after %v", e.Timeout) }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// RunWithTimeout runs fn under a wall-clock budget. When the budget expires the
// result is a TimeoutError and fn's goroutine is abandoned; fn sees its context
// canceled and is expected to return soon after. A non-positive timeout runs fn
// directly.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) *Result) *Result {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() { done <- fn(tctx) }()

	select {
	case res := <-done:
		if errors.Is(res.Err(), context.DeadlineExceeded) && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return NewFailedResult(&TimeoutError{Timeout: timeout})
		}
		return res
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return NewFailedResult(&TimeoutError{Timeout: timeout})
		}
		return NewFailedResult(tctx.Err())
	}
}
