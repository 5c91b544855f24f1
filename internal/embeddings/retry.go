package embeddings

import (
	"context"
	"time"
)

// WithRetry calls fn until it succeeds, retrying up to retries more times
// and doubling delay after each failure. It stops early when ctx is done.
func WithRetry(ctx context.Context, retries int, delay time.Duration, fn func(context.Context) error, onRetry func(err error, left int)) error {
	for {
		err := fn(ctx)
		if err == nil || retries <= 0 {
			return err
		}
		if onRetry != nil {
			onRetry(err, retries)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		retries--
		delay *= 2
	}
}
