package resilience

import (
	"net/http"
	"strconv"
	"time"
)

// FromHTTPStatus maps an HTTP response status to a typed error. Auth and
// validation statuses produce non-retryable kinds; rate limiting carries
// the server-provided wait; everything else (5xx, odd statuses) is treated
// as a network fault.
func FromHTTPStatus(statusCode int, message string, retryAfter time.Duration) *Error {
	var kind Kind
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = KindAuth
	case statusCode == http.StatusRequestTimeout:
		kind = KindTimeout
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimit
	case statusCode >= 400 && statusCode < 500:
		kind = KindValidation
	default:
		kind = KindNetwork
	}

	err := NewError(kind, message, nil)
	if kind == KindRateLimit {
		err.RetryAfter = retryAfter
	}
	return err
}

// RetryAfterFromHeader parses a Retry-After header value, which is either
// a delay in seconds or an HTTP date. Zero means no usable hint.
func RetryAfterFromHeader(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
