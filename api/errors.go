package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies an API failure. The executor rolls back on network
// and server failures; validation failures never reach the network,
// and rate limiting carries a retry-after hint for the user instead of
// a generic message.
type Kind int

const (
	KindValidation Kind = iota
	KindNetwork
	KindServer
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindRateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// genericMessage is shown when the server supplies no message text.
const genericMessage = "something went wrong, please try again"

// Error is a classified API failure.
type Error struct {
	Op         string // e.g. "jobs.updateStatus"
	Kind       Kind
	Status     int           // HTTP status, 0 for transport failures
	Message    string        // server message verbatim, or a generic fallback
	RetryAfter time.Duration // only set for rate limiting
	Err        error         // underlying transport error, if any
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindRateLimited:
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, defaulting to KindNetwork
// for unclassified errors so callers fail safe into rollback.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindNetwork
}

// IsRetryable reports whether the failure may succeed if retried.
// Only rate limiting qualifies; blind retries of server failures
// compound the problem.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRateLimited
}

// RetryAfterHint returns the server's retry-after hint, or zero.
func RetryAfterHint(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// newValidationError wraps a client-detected, pre-flight failure. No
// network call was made and no cache entry was touched.
func newValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Message: err.Error(), Err: err}
}

// newTransportError wraps a failed request that never produced a
// response.
func newTransportError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNetwork, Message: err.Error(), Err: err}
}

// newStatusError classifies a non-2xx response. The server message is
// surfaced verbatim when present.
func newStatusError(op string, status int, message string, header http.Header) *Error {
	if message == "" {
		message = genericMessage
	}
	e := &Error{Op: op, Status: status, Message: message}
	// Server-rejected writes roll back the same way transport failures
	// do, whatever the status; only 429 is treated specially.
	if status == http.StatusTooManyRequests {
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	} else {
		e.Kind = KindServer
	}
	return e
}

// parseRetryAfter reads a Retry-After header as delay seconds or an
// HTTP date. Unparseable values fall back to a short default so the
// hint shown to the user is never zero.
func parseRetryAfter(v string) time.Duration {
	const fallback = 30 * time.Second
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return fallback
}
