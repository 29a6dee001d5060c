// Package retry provides an opt-in fixed-delay retry wrapper. The core
// data-access layer never retries on its own; callers that want N
// attempts wrap individual operations with Do.
package retry

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Do runs fn up to attempts times with a fixed delay between tries,
// stopping early on success or context cancellation. The last error is
// returned when every attempt fails.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
