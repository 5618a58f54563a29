package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"
)

// ResponseInfo carries the pieces of an HTTP response the classifier needs.
// It is nil when the request produced no response at all.
type ResponseInfo struct {
	Status        int
	Body          []byte
	RetryAfter    string
	CorrelationID string
}

// serverPayload mirrors the error body shape the backend services emit.
// FastAPI-style services use "detail"; others use "message"/"code"/"errors".
type serverPayload struct {
	Detail  json.RawMessage   `json:"detail"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Errors  map[string]string `json:"errors"`
}

// Classify maps a raw failure into the closed Kind taxonomy. It is pure and
// total: every (err, info) pair yields exactly one *Error, with unmapped
// cases falling to KindUnknown and the original message preserved.
func Classify(err error, info *ResponseInfo) *Error {
	if info != nil && info.Status > 0 {
		return classifyStatus(err, info)
	}
	return classifyTransport(err)
}

// AsError returns err as a *Error, classifying it first when it is a raw
// transport error. Returns nil only for a nil err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return classifyTransport(err)
}

func classifyTransport(err error) *Error {
	e := &Error{OccurredAt: time.Now().UTC(), cause: err}

	switch {
	case err == nil:
		e.Kind = KindUnknown
	case errors.Is(err, context.Canceled):
		e.Kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
	case isNetTimeout(err):
		e.Kind = KindTimeout
	case isNetError(err):
		e.Kind = KindNetworkOffline
	default:
		e.Kind = KindUnknown
	}

	e.Message = DefaultMessage(e.Kind)
	if e.Kind == KindUnknown && err != nil {
		e.Message = err.Error()
	}
	return e
}

func classifyStatus(err error, info *ResponseInfo) *Error {
	e := &Error{
		HTTPStatus:    info.Status,
		CorrelationID: info.CorrelationID,
		OccurredAt:    time.Now().UTC(),
		cause:         err,
	}

	switch {
	case info.Status == 401:
		e.Kind = KindAuthRequired
	case info.Status == 403:
		e.Kind = KindForbidden
	case info.Status == 404:
		e.Kind = KindNotFound
	case info.Status == 409:
		e.Kind = KindConflict
	case info.Status == 429:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(info.RetryAfter)
	case info.Status == 408:
		e.Kind = KindTimeout
	case info.Status >= 500:
		e.Kind = KindServerError
	case info.Status >= 400:
		e.Kind = KindValidation
	default:
		e.Kind = KindUnknown
	}

	e.Message = DefaultMessage(e.Kind)
	applyServerPayload(e, info.Body)
	return e
}

// applyServerPayload prefers the server-supplied human-readable message and
// field errors over the kind default. Malformed bodies are ignored.
func applyServerPayload(e *Error, body []byte) {
	if len(body) == 0 {
		return
	}
	var payload serverPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}
	if payload.Message != "" {
		e.Message = payload.Message
	}
	if len(payload.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil && detail != "" {
			e.Message = detail
		} else {
			// Structured detail (e.g. field error list) goes into Details.
			var structured any
			if err := json.Unmarshal(payload.Detail, &structured); err == nil {
				if e.Details == nil {
					e.Details = map[string]any{}
				}
				e.Details["detail"] = structured
			}
		}
	}
	if payload.Code != "" {
		e.Code = payload.Code
	}
	if len(payload.Errors) > 0 {
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		for field, msg := range payload.Errors {
			e.Details[field] = msg
		}
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetError(err error) bool {
	var op *net.OpError
	if errors.As(err, &op) {
		return true
	}
	var dns *net.DNSError
	return errors.As(err, &dns)
}
