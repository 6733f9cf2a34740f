// Package retry runs an operation with jittered exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Do executes fn up to maxAttempts times, doubling the delay after each
// failure. It stops early when retryable reports false or ctx ends, and
// returns the last error.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, retryable func(error) bool, fn func() error) error {
	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts || (retryable != nil && !retryable(lastErr)) {
			break
		}
		if ctx.Err() != nil {
			return lastErr
		}
		jitter := time.Duration(0)
		if delay > 1 {
			jitter = time.Duration(rand.Int63n(int64(delay / 2)))
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return lastErr
}
