package resilience

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{408, KindTimeout},
		{429, KindRateLimit},
		{400, KindValidation},
		{404, KindValidation},
		{422, KindValidation},
		{500, KindNetwork},
		{503, KindNetwork},
	}

	for _, tt := range tests {
		err := FromHTTPStatus(tt.status, "request failed", 0)
		assert.Equal(t, tt.want, err.Kind, "status %d", tt.status)
	}
}

func TestFromHTTPStatusCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	err := FromHTTPStatus(429, "throttled", 30*time.Second)
	assert.Equal(t, KindRateLimit, err.Kind)
	assert.Equal(t, 30*time.Second, err.RetryAfter)

	// Only rate limiting carries the hint.
	err = FromHTTPStatus(500, "boom", 30*time.Second)
	assert.Zero(t, err.RetryAfter)
}

func TestRetryAfterFromHeader(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"http date in the future", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second},
		{"http date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RetryAfterFromHeader(tt.value, now))
		})
	}
}
