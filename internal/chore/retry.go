package chore

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/chorely/internal/apperror"
)

const (
	retryBase = 20 * time.Millisecond
	retryCap  = 500 * time.Millisecond
)

// Retry runs fn, re-running it up to retries more times while it fails with a
// concurrent-modification error. Each attempt must start from a fresh read.
func Retry(ctx context.Context, retries uint64, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(retryBase)
	backoff = retry.WithCappedDuration(retryCap, backoff)
	backoff = retry.WithJitterPercent(25, backoff)
	backoff = retry.WithMaxRetries(retries, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, apperror.ErrConcurrentModification) {
			return retry.RetryableError(err)
		}
		return err
	})
}
