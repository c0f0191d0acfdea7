package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maauso/vidgen/internal/fault"
)

// ErrAttemptsExhausted is returned by Retry when every attempt completed
// without the operation reporting done.
var ErrAttemptsExhausted = errors.New("poller: attempts exhausted")

// ErrInvalidPolicy is returned for a policy that allows no attempts.
var ErrInvalidPolicy = errors.New("poller: max attempts must be positive")

// Policy bounds a retry loop: at most MaxAttempts calls, Delay apart.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Op is one attempt. attempt starts at 1. Returning done=true stops the loop
// successfully; returning a retryable fault schedules another attempt.
type Op func(ctx context.Context, attempt int) (done bool, err error)

// Retry calls op until it reports done, returns a non-retryable error, or the
// attempt budget runs out. Attempts run strictly in sequence and the delay is
// only waited between attempts, never after the last one.
//
// When the budget runs out, the error of the final attempt is returned if it
// failed; otherwise ErrAttemptsExhausted. Earlier transient errors are
// discarded. Context cancellation is returned as-is, wrapping ctx.Err().
func Retry(ctx context.Context, p Policy, op Op) error {
	if p.MaxAttempts < 1 {
		return ErrInvalidPolicy
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Delay); err != nil {
				return err
			}
		}

		done, err := op(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("poller: context cancelled: %w", ctx.Err())
			}
			if !fault.Retryable(err) {
				return err
			}
			lastErr = err
			continue
		}
		lastErr = nil
		if done {
			return nil
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return ErrAttemptsExhausted
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("poller: context cancelled: %w", ctx.Err())
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("poller: context cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
