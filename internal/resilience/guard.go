package resilience

import (
	"context"
	"errors"
	"log/slog"
)

// Guard binds the circuit breaker and retry policy for one external
// dependency. The breaker wraps OUTSIDE the retry loop: one admitted
// execution runs the full retry discipline and reports exactly one
// outcome, so a call that fails twice and then succeeds records a
// single breaker success.
type Guard struct {
	breaker *Breaker
	policy  RetryPolicy
	logger  *slog.Logger
}

// NewGuard creates a guard for the named dependency.
func NewGuard(breaker *Breaker, policy RetryPolicy, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		breaker: breaker,
		policy:  policy,
		logger:  logger,
	}
}

// Breaker exposes the guarded breaker for state introspection.
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// Execute runs op behind the guard. Rejections by an open breaker
// return *OpenError without invoking op.
func Execute[T any](ctx context.Context, g *Guard, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := g.breaker.Allow(); err != nil {
		return zero, err
	}

	result, err := Do(ctx, g.logger, g.breaker.Name(), g.policy, op)
	if err != nil {
		if countsAgainstBreaker(err) {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
		return result, err
	}

	g.breaker.RecordSuccess()
	return result, nil
}

// countsAgainstBreaker reports whether a failure says anything about
// the health of the dependency. Auth and validation failures are
// caller-side problems and cancellation is a caller decision; none of
// them should open the breaker.
func countsAgainstBreaker(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case KindAuth, KindValidation, KindConflict:
		return false
	default:
		return true
	}
}
