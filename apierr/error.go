package apierr

import (
	"fmt"
	"time"
)

// Error is the immutable domain error produced by Classify. It is constructed
// once and never mutated by callers; the transport and facades normalize every
// failure path to an *Error before it leaves this library.
type Error struct {
	Kind          Kind
	Message       string
	HTTPStatus    int
	Code          string
	Details       map[string]any
	CorrelationID string
	OccurredAt    time.Time
	// RetryAfter carries the server-supplied delay hint for KindRateLimited.
	RetryAfter time.Duration

	cause error
}

// New builds an Error of the given kind with the kind's default message.
func New(kind Kind) *Error {
	return &Error{
		Kind:       kind,
		Message:    DefaultMessage(kind),
		OccurredAt: time.Now().UTC(),
	}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	e := New(kind)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by kind, so callers can write
// errors.Is(err, apierr.New(apierr.KindConflict)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the retry controller may re-attempt the operation.
// The retryable set is closed: no response at all, timeouts, 5xx, and 429,
// plus the explicit status list {408, 429, 500, 502, 503, 504}.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkOffline, KindTimeout, KindServerError, KindRateLimited:
		return true
	}
	switch e.HTTPStatus {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsKind reports whether err is (or wraps) a domain error of kind k.
func IsKind(err error, k Kind) bool {
	e := AsError(err)
	return e != nil && e.Kind == k
}

// NewMaxRetries wraps the last failure once the retry budget is exhausted.
func NewMaxRetries(last *Error, attempts int) *Error {
	e := New(KindMaxRetriesExceeded)
	e.Message = fmt.Sprintf("operation failed after %d attempts: %s", attempts, last.Message)
	if last != nil {
		e.HTTPStatus = last.HTTPStatus
		e.CorrelationID = last.CorrelationID
		e.cause = last
	}
	return e
}
