package connector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy returns a backoff that allows attempts tries in total, waiting baseDelay before the
// second try and doubling the wait for each further try. The policy stops early when ctx is done.
func RetryPolicy(ctx context.Context, attempts int, baseDelay time.Duration) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = baseDelay << max(attempts, 1)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(attempts-1, 0))), ctx)
}

// RunWithTimeout runs fn on a separate goroutine and waits at most timeout for it to return. It
// is used for driver calls that do not accept a context. On timeout fn keeps running in the
// background and its result is dropped.
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
