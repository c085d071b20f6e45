// Package resilience provides the failure-handling layer for calls to
// external dependencies: error classification, retry with exponential
// backoff and jitter, and per-dependency circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind classifies a failure from an external dependency.
type Kind string

// Failure kinds shared by the retry manager, the circuit breakers and
// the job-level failure handling.
const (
	KindUnknown    Kind = "unknown"
	KindNetwork    Kind = "network"
	KindTimeout    Kind = "timeout"
	KindAuth       Kind = "auth"
	KindRateLimit  Kind = "rate_limit"
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
)

// Error is a classified failure. API clients attach the classification
// at the point where the most context is available (HTTP status codes,
// transport errors) so the layers above never re-parse messages.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter carries the server-provided wait for rate-limit
	// failures. Zero when the server gave no hint.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error wrapping err.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify returns the failure kind for err. Errors carrying a typed
// classification win; foreign errors fall back to transport checks and
// message heuristics.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}

	var oerr *OpenError
	if errors.As(err, &oerr) {
		// A rejecting breaker means the dependency is unavailable.
		return KindNetwork
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	return classifyMessage(err.Error())
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return KindRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid token"), strings.Contains(msg, "authentication"):
		return KindAuth
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unreachable"):
		return KindNetwork
	case strings.Contains(msg, "validation"), strings.Contains(msg, "unprocessable"),
		strings.Contains(msg, "malformed"):
		return KindValidation
	default:
		return KindUnknown
	}
}

// Retryable reports whether a call that failed with err is worth
// repeating against the same dependency. Auth and validation failures
// surface immediately; unknown failures are treated as non-retryable at
// the call level and left to the job-level backoff.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindNetwork, KindTimeout, KindRateLimit:
		return true
	default:
		return false
	}
}

// RetryAfterHint returns the server-provided wait attached to a
// rate-limit error, or zero when there is none.
func RetryAfterHint(err error) time.Duration {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.RetryAfter
	}
	return 0
}
