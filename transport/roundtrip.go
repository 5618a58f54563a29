package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talentbase/go-dataclient/apierr"
	"github.com/talentbase/go-dataclient/realtime"
)

// httpResult is the raw outcome of one completed exchange, whatever the
// status.
type httpResult struct {
	status     int
	body       []byte
	etag       string
	retryAfter string
}

// roundTrip performs one logical exchange: build, send, read, classify. A 401
// triggers at most one token refresh followed by one replay; every other
// non-2xx status comes back as a classified *apierr.Error.
func (c *Client) roundTrip(ctx context.Context, method, path string, params map[string]string, body []byte, headers map[string]string, timeout time.Duration, maxBytes int64) (*httpResult, error) {
	correlationID := uuid.NewString()

	res, err := c.attempt(ctx, method, path, params, body, headers, timeout, maxBytes, correlationID)
	if err == nil && res.status == http.StatusUnauthorized {
		return c.recoverUnauthorized(ctx, method, path, params, body, headers, timeout, maxBytes, correlationID, res)
	}
	return c.settle(method, path, correlationID, res, err)
}

// recoverUnauthorized runs the single refresh-and-replay allowed per request.
// A failed refresh, a missing refresh hook, or a second 401 all end the same
// way: credentials cleared and the auth-required event published.
func (c *Client) recoverUnauthorized(ctx context.Context, method, path string, params map[string]string, body []byte, headers map[string]string, timeout time.Duration, maxBytes int64, correlationID string, first *httpResult) (*httpResult, error) {
	if c.refresh != nil {
		token, expiresAt, rerr := c.refresh(ctx)
		if rerr == nil {
			c.tokens.Set(token, expiresAt)
			c.log.Info("token refreshed after 401", "correlation_id", correlationID, "path", path)

			res, err := c.attempt(ctx, method, path, params, body, headers, timeout, maxBytes, correlationID)
			if err != nil || res.status != http.StatusUnauthorized {
				return c.settle(method, path, correlationID, res, err)
			}
			first = res
		} else {
			c.log.Warn("token refresh failed", "correlation_id", correlationID, "error", rerr)
		}
	}

	c.signalAuthRequired()
	return c.settle(method, path, correlationID, first, nil)
}

func (c *Client) signalAuthRequired() {
	if c.tokens != nil {
		c.tokens.Clear()
	}
	if c.bus != nil {
		c.bus.Publish(realtime.Event{Type: realtime.EventAuthRequired})
	}
}

// settle turns the raw exchange outcome into the caller-facing result:
// transport failures and non-2xx statuses become classified errors carrying
// the correlation ID.
func (c *Client) settle(method, path, correlationID string, res *httpResult, err error) (*httpResult, error) {
	if err != nil {
		derr := apierr.AsError(err)
		if derr.CorrelationID == "" {
			derr.CorrelationID = correlationID
		}
		c.log.Warn("request failed",
			"method", method,
			"path", path,
			"correlation_id", correlationID,
			"kind", derr.Kind)
		return nil, derr
	}

	if res.status < 200 || res.status >= 300 {
		derr := apierr.Classify(nil, &apierr.ResponseInfo{
			Status:        res.status,
			Body:          res.body,
			RetryAfter:    res.retryAfter,
			CorrelationID: correlationID,
		})
		c.log.Warn("request rejected",
			"method", method,
			"path", path,
			"status", res.status,
			"correlation_id", correlationID,
			"kind", derr.Kind)
		return nil, derr
	}

	c.log.Debug("request completed",
		"method", method,
		"path", path,
		"status", res.status,
		"correlation_id", correlationID)
	return res, nil
}

// attempt sends exactly one HTTP request and reads its body. The correlation
// ID is stable across the attempts of one logical operation; the request ID is
// fresh per attempt.
func (c *Client) attempt(ctx context.Context, method, path string, params map[string]string, body []byte, headers map[string]string, timeout time.Duration, maxBytes int64, correlationID string) (*httpResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, params), reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Request-Timestamp", time.Now().UTC().Format(time.RFC3339))
	req.Header.Set("X-Client-Version", c.cfg.ClientVersion)
	req.Header.Set("X-Client-Platform", c.cfg.Platform)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp.Body, maxBytes)
	if err != nil {
		return nil, err
	}

	return &httpResult{
		status:     resp.StatusCode,
		body:       data,
		etag:       resp.Header.Get("ETag"),
		retryAfter: resp.Header.Get("Retry-After"),
	}, nil
}

// readBody reads up to maxBytes (0 = unlimited) and fails when the response
// exceeds the cap, rather than truncating silently.
func readBody(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, apierr.Newf(apierr.KindValidation, "response exceeds the %d byte limit", maxBytes)
	}
	return data, nil
}

func (c *Client) buildURL(path string, params map[string]string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	full := base + path
	if len(params) == 0 {
		return full
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return full + "?" + q.Encode()
}
