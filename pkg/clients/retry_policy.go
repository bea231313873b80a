package clients

import (
	"context"
	"fmt"
	"time"
)

// RetryCondition reports whether an attempt outcome should be retried. resp
// is nil when err is set.
type RetryCondition func(resp *Response, err error) bool

// RetryPolicy defines retry behavior. It is a value type: a client keeps its
// own copy, so callers cannot change a policy already handed to a client.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// RetryIf selects retryable outcomes. Nil means DefaultRetryCondition.
	RetryIf RetryCondition
}

// DefaultRetryCondition retries processing failures (no response was
// received) and 404 Not Found. No other status is retried.
func DefaultRetryCondition(resp *Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode == 404
}

// NewRetryPolicy creates a fixed-delay retry policy using DefaultRetryCondition
func NewRetryPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		RetryIf:     DefaultRetryCondition,
	}
}

// DefaultRetryPolicy returns the production policy: 6 attempts in total (5
// retries), 10 seconds apart
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(6, 10*time.Second)
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() RetryPolicy {
	return NewRetryPolicy(1, 0)
}

// WithMaxAttempts returns a new policy with updated max attempts
func (rp RetryPolicy) WithMaxAttempts(attempts int) RetryPolicy {
	rp.MaxAttempts = attempts
	return rp
}

// WithDelay returns a new policy with an updated delay
func (rp RetryPolicy) WithDelay(delay time.Duration) RetryPolicy {
	rp.Delay = delay
	return rp
}

// WithCondition returns a new policy with an updated retry condition
func (rp RetryPolicy) WithCondition(cond RetryCondition) RetryPolicy {
	rp.RetryIf = cond
	return rp
}

// Validate checks the policy values
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", rp.MaxAttempts)
	}
	if rp.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got %v", rp.Delay)
	}
	return nil
}

// ShouldRetry applies the policy's retry condition to an attempt outcome
func (rp RetryPolicy) ShouldRetry(resp *Response, err error) bool {
	if rp.RetryIf == nil {
		return DefaultRetryCondition(resp, err)
	}
	return rp.RetryIf(resp, err)
}

// Execute runs fn until it reports that no retry is needed or the attempt
// budget is spent, sleeping Delay between attempts. It returns the number of
// attempts made, and an error only when ctx ended while waiting.
func (rp RetryPolicy) Execute(ctx context.Context, fn func(attempt int) (retry bool)) (int, error) {
	maxAttempts := rp.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if !fn(attempt) {
			return attempt, nil
		}

		// Don't wait after the last attempt
		if attempt >= maxAttempts {
			return attempt, nil
		}

		if err := sleep(ctx, rp.Delay); err != nil {
			return attempt, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
