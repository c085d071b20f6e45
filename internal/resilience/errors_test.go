package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{
			name: "nil error",
			err:  nil,
			want: KindUnknown,
		},
		{
			name: "typed classification wins",
			err:  NewError(KindAuth, "token rejected", nil),
			want: KindAuth,
		},
		{
			name: "typed classification survives wrapping",
			err:  fmt.Errorf("fetch products: %w", NewError(KindRateLimit, "slow down", nil)),
			want: KindRateLimit,
		},
		{
			name: "breaker rejection reads as unavailable dependency",
			err:  &OpenError{Name: "index", RetryIn: time.Second},
			want: KindNetwork,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("request: %w", context.DeadlineExceeded),
			want: KindTimeout,
		},
		{
			name: "net timeout",
			err:  &fakeNetError{timeout: true},
			want: KindTimeout,
		},
		{
			name: "net non-timeout",
			err:  &fakeNetError{},
			want: KindNetwork,
		},
		{
			name: "rate limit by message",
			err:  errors.New("HTTP 429: Too Many Requests"),
			want: KindRateLimit,
		},
		{
			name: "auth by message",
			err:  errors.New("401 Unauthorized"),
			want: KindAuth,
		},
		{
			name: "connection refused by message",
			err:  errors.New("dial tcp 10.0.0.1:443: connection refused"),
			want: KindNetwork,
		},
		{
			name: "validation by message",
			err:  errors.New("422 Unprocessable Entity"),
			want: KindValidation,
		},
		{
			name: "unknown",
			err:  errors.New("something odd happened"),
			want: KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, Retryable(NewError(KindNetwork, "", nil)))
	assert.True(t, Retryable(NewError(KindTimeout, "", nil)))
	assert.True(t, Retryable(NewError(KindRateLimit, "", nil)))
	assert.False(t, Retryable(NewError(KindAuth, "", nil)))
	assert.False(t, Retryable(NewError(KindValidation, "", nil)))
	assert.False(t, Retryable(errors.New("something odd happened")))
}

func TestRetryAfterHint(t *testing.T) {
	t.Parallel()

	limited := &Error{Kind: KindRateLimit, RetryAfter: 7 * time.Second}
	assert.Equal(t, 7*time.Second, RetryAfterHint(fmt.Errorf("fetch: %w", limited)))
	assert.Zero(t, RetryAfterHint(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewError(KindNetwork, "", cause)
	assert.Equal(t, "network: boom", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	withMsg := NewError(KindAuth, "credential expired", cause)
	assert.Equal(t, "credential expired", withMsg.Error())
}
