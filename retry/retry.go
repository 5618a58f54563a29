// Package retry implements the exponential-backoff retry policy for
// idempotent operations. Attempts are sequential, never parallel, and the
// retryable set is closed: transient network failures, timeouts, 5xx, and
// rate limiting. Offline queuing for mutations is a separate concern.
package retry

import (
	"context"
	"time"

	"github.com/talentbase/go-dataclient/apierr"
)

// MaxDelay caps the computed backoff delay.
const MaxDelay = 10 * time.Second

// Controller runs operations under the retry policy. The attempt counter is
// local to each Do call; no state is shared between concurrent callers.
type Controller struct {
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController builds a Controller with the given budget and base delay.
func NewController(maxAttempts int, baseDelay time.Duration) *Controller {
	return &Controller{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		sleep:       sleepCtx,
	}
}

// Backoff returns the delay before retry n (1-indexed): BaseDelay * 2^(n-1),
// capped at MaxDelay.
func Backoff(base time.Duration, retryNumber int) time.Duration {
	if retryNumber < 1 {
		retryNumber = 1
	}
	d := base
	for i := 1; i < retryNumber; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails terminally, or the attempt budget is
// spent. Failures are classified through apierr; only retryable kinds are
// re-attempted, and a rate-limited failure prefers the server-supplied
// retry-after hint over the computed delay. After MaxAttempts consecutive
// failures the last error is surfaced wrapped in KindMaxRetriesExceeded.
func Do[T any](ctx context.Context, c *Controller, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var last *apierr.Error

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := Backoff(c.BaseDelay, attempt-1)
			if last.Kind == apierr.KindRateLimited && last.RetryAfter > 0 {
				delay = last.RetryAfter
			}
			if err := c.wait(ctx, delay); err != nil {
				return zero, apierr.Classify(err, nil)
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		derr := apierr.AsError(err)
		if !derr.Retryable() {
			return zero, derr
		}
		last = derr
	}

	return zero, apierr.NewMaxRetries(last, attempts)
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
