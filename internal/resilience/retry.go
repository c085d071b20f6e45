package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy controls the retry discipline for one external call type.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// BackoffMultiplier grows the wait between consecutive retries.
	BackoffMultiplier float64
	// JitterRange randomizes each wait by ±(wait × JitterRange).
	JitterRange float64
	// MaxDelay caps a single wait.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy applied when configuration does
// not override one per call type.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterRange:       0.2,
		MaxDelay:          30 * time.Second,
	}
}

// Do runs op under policy, retrying failures classified as transient.
// Non-retryable failures surface immediately. When a rate-limited
// dependency supplied its own wait, that wait replaces the computed
// backoff for the next attempt.
func Do[T any](ctx context.Context, logger *slog.Logger, label string, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	expo := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseDelay,
		RandomizationFactor: policy.JitterRange,
		Multiplier:          policy.BackoffMultiplier,
		MaxInterval:         policy.MaxDelay,
	}
	expo.Reset()

	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !Retryable(err) {
			return result, backoff.Permanent(err)
		}
		if wait := RetryAfterHint(err); wait > 0 {
			return result, errors.Join(err, &backoff.RetryAfterError{Duration: wait})
		}
		return result, err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("retrying external call",
			"call", label,
			"attempt", attempt,
			"wait", wait,
			"kind", string(Classify(err)),
			"error", err)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
		backoff.WithNotify(notify),
	)
}
