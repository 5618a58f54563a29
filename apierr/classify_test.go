package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassify_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{400, KindValidation},
		{401, KindAuthRequired},
		{403, KindForbidden},
		{404, KindNotFound},
		{408, KindTimeout},
		{409, KindConflict},
		{422, KindValidation},
		{429, KindRateLimited},
		{500, KindServerError},
		{502, KindServerError},
		{503, KindServerError},
	}

	for _, tc := range cases {
		got := Classify(nil, &ResponseInfo{Status: tc.status})
		if got.Kind != tc.want {
			t.Errorf("status %d: expected kind %q but got %q", tc.status, tc.want, got.Kind)
		}
		if got.HTTPStatus != tc.status {
			t.Errorf("status %d: HTTPStatus not preserved, got %d", tc.status, got.HTTPStatus)
		}
		if got.Message == "" {
			t.Errorf("status %d: expected a non-empty message", tc.status)
		}
	}
}

func TestClassify_TransportErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"cancelled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped cancelled", fmt.Errorf("do request: %w", context.Canceled), KindCancelled},
		{"connection refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindNetworkOffline},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, KindNetworkOffline},
		{"unmapped", errors.New("something odd happened"), KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err, nil)
			if got.Kind != tc.want {
				t.Errorf("expected kind %q but got %q", tc.want, got.Kind)
			}
		})
	}
}

func TestClassify_UnknownPreservesMessage(t *testing.T) {
	raw := errors.New("flux capacitor misaligned")
	got := Classify(raw, nil)
	if got.Kind != KindUnknown {
		t.Fatalf("expected unknown kind, got %q", got.Kind)
	}
	if got.Message != raw.Error() {
		t.Errorf("expected original message preserved, got %q", got.Message)
	}
	if !errors.Is(got, raw) {
		t.Error("expected classified error to wrap the original")
	}
}

func TestClassify_ServerPayloadPreferred(t *testing.T) {
	body := []byte(`{"detail": "email already registered"}`)
	got := Classify(nil, &ResponseInfo{Status: 409, Body: body})
	if got.Message != "email already registered" {
		t.Errorf("expected server detail used as message, got %q", got.Message)
	}

	body = []byte(`{"message": "nope", "code": "ORG_LOCKED", "errors": {"email": "taken"}}`)
	got = Classify(nil, &ResponseInfo{Status: 400, Body: body})
	if got.Message != "nope" || got.Code != "ORG_LOCKED" {
		t.Errorf("expected message/code from payload, got %q / %q", got.Message, got.Code)
	}
	if got.Details["email"] != "taken" {
		t.Errorf("expected field error in details, got %v", got.Details)
	}
}

func TestClassify_MalformedBodyFallsBackToDefault(t *testing.T) {
	got := Classify(nil, &ResponseInfo{Status: 500, Body: []byte("<html>oops</html>")})
	if got.Message != DefaultMessage(KindServerError) {
		t.Errorf("expected default message, got %q", got.Message)
	}
}

func TestClassify_RetryAfterHint(t *testing.T) {
	got := Classify(nil, &ResponseInfo{Status: 429, RetryAfter: "7"})
	if got.RetryAfter != 7*time.Second {
		t.Errorf("expected 7s retry-after hint, got %v", got.RetryAfter)
	}

	got = Classify(nil, &ResponseInfo{Status: 429})
	if got.RetryAfter != 0 {
		t.Errorf("expected zero retry-after when header absent, got %v", got.RetryAfter)
	}
}

func TestError_RetryableSet(t *testing.T) {
	retryable := []Kind{KindNetworkOffline, KindTimeout, KindServerError, KindRateLimited}
	for _, k := range retryable {
		if !New(k).Retryable() {
			t.Errorf("expected kind %q to be retryable", k)
		}
	}

	terminal := []Kind{KindValidation, KindForbidden, KindNotFound, KindConflict, KindCancelled, KindAuthRequired, KindQueuedOffline}
	for _, k := range terminal {
		if New(k).Retryable() {
			t.Errorf("expected kind %q to be terminal", k)
		}
	}
}

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("facade: %w", New(KindConflict))
	if !errors.Is(err, New(KindConflict)) {
		t.Error("expected errors.Is to match by kind")
	}
	if errors.Is(err, New(KindNotFound)) {
		t.Error("expected errors.Is to reject a different kind")
	}
	if !IsKind(err, KindConflict) {
		t.Error("expected IsKind to match through wrapping")
	}
}

func TestNewMaxRetries_WrapsLast(t *testing.T) {
	last := Classify(nil, &ResponseInfo{Status: 503, CorrelationID: "corr-1"})
	wrapped := NewMaxRetries(last, 3)
	if wrapped.Kind != KindMaxRetriesExceeded {
		t.Fatalf("expected max retries kind, got %q", wrapped.Kind)
	}
	if wrapped.CorrelationID != "corr-1" {
		t.Errorf("expected correlation id carried over, got %q", wrapped.CorrelationID)
	}
	if !errors.Is(wrapped, New(KindServerError)) {
		t.Error("expected wrapped error to expose the last failure")
	}
}
