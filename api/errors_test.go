package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusError_Classification(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusBadRequest, KindServer}, // server-rejected write rolls back like any failure
		{http.StatusNotFound, KindServer},
		{http.StatusInternalServerError, KindServer},
		{http.StatusTooManyRequests, KindRateLimited},
	}
	for _, tc := range cases {
		err := newStatusError("jobs.get", tc.status, "nope", http.Header{})
		assert.Equal(t, tc.want, err.Kind, "status %d", tc.status)
		assert.Equal(t, tc.status, err.Status)
	}
}

func TestNewStatusError_MessageFallback(t *testing.T) {
	err := newStatusError("jobs.get", 500, "", http.Header{})
	assert.Equal(t, genericMessage, err.Message)

	err = newStatusError("jobs.get", 500, "db connection lost", http.Header{})
	assert.Equal(t, "db connection lost", err.Message, "server message must surface verbatim")
}

func TestRateLimited_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	err := newStatusError("uploads.upload", 429, "slow down", h)

	assert.Equal(t, KindRateLimited, err.Kind)
	assert.Equal(t, 12*time.Second, err.RetryAfter)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 12*time.Second, RetryAfterHint(err))
	assert.Contains(t, err.Error(), "retry after")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, 30*time.Second, parseRetryAfter(""))
	assert.Equal(t, 30*time.Second, parseRetryAfter("garbage"))

	// HTTP-date form.
	at := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfter(at)
	assert.InDelta(t, 90, got.Seconds(), 5)
}

func TestKindOf_Unclassified(t *testing.T) {
	// Unclassified errors fail safe into the rollback path.
	assert.Equal(t, KindNetwork, KindOf(errors.New("connection reset")))
	assert.False(t, IsRetryable(errors.New("connection reset")))
}

func TestValidationError_NotRetryable(t *testing.T) {
	err := newValidationError("jobs.create", errors.New("title required"))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.False(t, IsRetryable(err))
}
