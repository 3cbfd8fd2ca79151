package hamibot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Retry policy shared by every provider call. 429 responses back off
// exponentially because they carry the provider's own rate-limit signal;
// other retryable failures wait a flat second.
const (
	maxAttempts      = 5
	flatBackoff      = 1 * time.Second
	rateLimitBackoff = 1 * time.Second
)

// retryPolicy decides whether and how to retry failed provider calls.
// It is implemented once here and reused by every call site.
type retryPolicy struct {
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// defaultRetryPolicy returns the production policy.
func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
	}
}

// do invokes fn up to maxAttempts times, backing off between attempts
// according to the failure kind. Non-retryable errors are returned
// immediately; exhausting all attempts wraps the last error with
// ErrRetriesExhausted.
func (p retryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == p.maxAttempts {
			break
		}

		if err := p.sleep(ctx, backoffFor(lastErr, attempt)); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, p.maxAttempts, lastErr)
}

// isRetryable reports whether the failure is worth another attempt.
// Transport errors and 5xx responses are transient; of the 4xx family only
// 429 is retryable.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return se.StatusCode >= 500
	}

	// Transport-level failure (connection refused, timeout, ...)
	return true
}

// backoffFor computes the delay before the next attempt. attempt is
// 1-based: the first 429 waits 1s, the second 2s, then 4s and so on.
func backoffFor(err error, attempt int) time.Duration {
	if IsStatus(err, http.StatusTooManyRequests) {
		delay := rateLimitBackoff
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay
	}
	return flatBackoff
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
