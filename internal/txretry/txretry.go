// Package txretry re-runs a tree mutation once when the store aborted it
// because of a deadlock, serialization failure or lock timeout.
package txretry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ammiranda/ordered_tree/engine"

	"github.com/sethvargo/go-retry"
)

// DefaultDelay is the pause before the single retry
const DefaultDelay = 50 * time.Millisecond

// Retrier runs operations with one bounded retry
type Retrier struct {
	delay  time.Duration
	logger *slog.Logger
}

// New creates a Retrier. A non-positive delay uses DefaultDelay.
func New(delay time.Duration, logger *slog.Logger) *Retrier {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{delay: delay, logger: logger}
}

// Do runs task and runs it once more if it failed with a retryable engine
// error. Every other error, and the second failure, is returned unchanged.
func (r *Retrier) Do(ctx context.Context, op string, task func(ctx context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(1, retry.NewConstant(r.delay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := task(ctx)
		if err == nil {
			return nil
		}
		if !engine.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		if attempt == 1 {
			r.logger.WarnContext(ctx, "retrying tree mutation", "op", op, "error", err)
		} else {
			r.logger.WarnContext(ctx, "tree mutation failed after retry, gave up", "op", op, "error", err)
		}
		return retry.RetryableError(err)
	})
}
