package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(clock *fakeClock) *Guard {
	b := NewBreaker("commerce", testBreakerConfig(), WithBreakerClock(clock.Now))
	return NewGuard(b, fastPolicy(3), nil)
}

func TestGuardRetriedSuccessCountsAsOneBreakerSuccess(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := newTestGuard(clock)

	calls := 0
	result, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewError(KindNetwork, "connection reset", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, StateClosed, g.Breaker().State())

	// The two transient failures inside the retry loop never reached
	// the breaker: four more exhausted executions are needed to open it.
	for i := 0; i < 4; i++ {
		_, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
			return "", NewError(KindNetwork, "connection reset", nil)
		})
		require.Error(t, err)
	}
	assert.Equal(t, StateClosed, g.Breaker().State())
}

func TestGuardExhaustedRetriesCountAsOneBreakerFailure(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := newTestGuard(clock)

	totalCalls := 0
	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), g, func(_ context.Context) (struct{}, error) {
			totalCalls++
			return struct{}{}, NewError(KindTimeout, "request timed out", nil)
		})
		require.Error(t, err)
	}

	// Five executions of three attempts each, then the breaker opens.
	assert.Equal(t, 15, totalCalls)
	assert.Equal(t, StateOpen, g.Breaker().State())
}

func TestGuardOpenBreakerRejectsWithoutExecuting(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := newTestGuard(clock)

	for i := 0; i < 5; i++ {
		_, _ = Execute(context.Background(), g, func(_ context.Context) (struct{}, error) {
			return struct{}{}, NewError(KindNetwork, "unreachable", nil)
		})
	}
	require.Equal(t, StateOpen, g.Breaker().State())

	executed := false
	_, err := Execute(context.Background(), g, func(_ context.Context) (struct{}, error) {
		executed = true
		return struct{}{}, nil
	})

	require.Error(t, err)
	var oerr *OpenError
	assert.ErrorAs(t, err, &oerr)
	assert.False(t, executed)
}

func TestGuardRecoversThroughHalfOpenTrial(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := newTestGuard(clock)

	for i := 0; i < 5; i++ {
		_, _ = Execute(context.Background(), g, func(_ context.Context) (struct{}, error) {
			return struct{}{}, NewError(KindNetwork, "unreachable", nil)
		})
	}
	require.Equal(t, StateOpen, g.Breaker().State())

	clock.Advance(31 * time.Second)

	result, err := Execute(context.Background(), g, func(_ context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, StateClosed, g.Breaker().State())
}

func TestGuardAuthFailureDoesNotTripBreaker(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	g := newTestGuard(clock)

	for i := 0; i < 10; i++ {
		_, err := Execute(context.Background(), g, func(_ context.Context) (struct{}, error) {
			return struct{}{}, NewError(KindAuth, "credential expired", nil)
		})
		require.Error(t, err)
	}

	// The dependency answered every time; only the caller's credential
	// is at fault.
	assert.Equal(t, StateClosed, g.Breaker().State())
}
