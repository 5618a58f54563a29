// Package transport is the single point of outbound HTTP for the data-access
// layer. It attaches auth and tracing headers, enforces timeouts and
// cancellation, and routes reads through the cache, deduplicator, and retry
// policies. Mutations made while offline are captured by the offline queue.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/talentbase/go-dataclient/apierr"
	"github.com/talentbase/go-dataclient/auth"
	"github.com/talentbase/go-dataclient/cache"
	"github.com/talentbase/go-dataclient/dedup"
	"github.com/talentbase/go-dataclient/offline"
	"github.com/talentbase/go-dataclient/realtime"
	"github.com/talentbase/go-dataclient/retry"
)

// Config carries the transport knobs. Zero values fall back to defaults.
type Config struct {
	BaseURL string

	// Timeout bounds ordinary requests; ExportTimeout bounds export
	// downloads, which are expected to run long.
	Timeout       time.Duration
	ExportTimeout time.Duration

	// ExportSizeLimit caps the bytes accepted from an export response.
	// Zero disables the cap.
	ExportSizeLimit int64

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	ClientVersion string
	Platform      string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 2 * time.Minute
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.ClientVersion == "" {
		c.ClientVersion = "0.0.0-dev"
	}
	if c.Platform == "" {
		c.Platform = "go"
	}
	return c
}

// Dependencies are the collaborators the client is constructed with. The
// cache and queue are process-wide singletons owned by the DI container; the
// transport is their only mutator.
type Dependencies struct {
	HTTPClient   *http.Client
	Cache        cache.ResponseCache
	Keys         cache.KeySerializer
	Queue        *offline.Queue
	Connectivity *offline.Connectivity
	Tokens       *auth.TokenStore
	Refresh      auth.RefreshFunc
	Bus          *realtime.PubSub
	Logger       *slog.Logger
}

// fetchResult is what one successful read round-trip yields.
type fetchResult struct {
	body []byte
	etag string
}

// Client is the transport client. All entity facades share one instance.
type Client struct {
	cfg     Config
	http    *http.Client
	cache   cache.ResponseCache
	keys    cache.KeySerializer
	reads   *dedup.Group[fetchResult]
	retrier *retry.Controller
	queue   *offline.Queue
	conn    *offline.Connectivity
	tokens  *auth.TokenStore
	refresh auth.RefreshFunc
	bus     *realtime.PubSub
	log     *slog.Logger
}

// NewClient builds a transport client from config and collaborators.
func NewClient(cfg Config, deps Dependencies) *Client {
	cfg = cfg.withDefaults()

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keys := deps.Keys
	if keys == nil {
		keys = cache.NewDefaultKeySerializer()
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		cache:   deps.Cache,
		keys:    keys,
		reads:   dedup.NewGroup[fetchResult](),
		retrier: retry.NewController(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		queue:   deps.Queue,
		conn:    deps.Connectivity,
		tokens:  deps.Tokens,
		refresh: deps.Refresh,
		bus:     deps.Bus,
		log:     logger,
	}
}

// Get performs a cached, deduplicated, retried read: cache hit returns
// immediately; a miss attaches to the in-flight call for the same request
// shape or issues one network call under the retry policy and populates the
// cache on success.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, out any) error {
	key := c.keys.SerializeKey(path, params)

	if data, _, ok := c.cache.Get(key); ok {
		return decodeInto(data, out)
	}

	dedupKey := dedup.Key(http.MethodGet, path, params)
	res, err := c.reads.Do(ctx, dedupKey, func(ctx context.Context) (fetchResult, error) {
		return retry.Do(ctx, c.retrier, func(ctx context.Context) (fetchResult, error) {
			r, err := c.roundTrip(ctx, http.MethodGet, path, params, nil, nil, c.cfg.Timeout, 0)
			if err != nil {
				return fetchResult{}, err
			}
			return fetchResult{body: r.body, etag: r.etag}, nil
		})
	})
	if err != nil {
		return apierr.AsError(err)
	}

	c.cache.Set(key, res.body, res.etag)
	return decodeInto(res.body, out)
}

// GetRaw is the export variant of the read path: a larger timeout, an
// optional size cap, and no cache participation since export results are
// never reused.
func (c *Client) GetRaw(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	res, err := retry.Do(ctx, c.retrier, func(ctx context.Context) (fetchResult, error) {
		r, err := c.roundTrip(ctx, http.MethodGet, path, params, nil, nil, c.cfg.ExportTimeout, c.cfg.ExportSizeLimit)
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{body: r.body}, nil
	})
	if err != nil {
		return nil, apierr.AsError(err)
	}
	return res.body, nil
}

// Mutate performs a mutating call. Offline, the request is enqueued durably
// and the caller receives KindQueuedOffline so it can show "saved for later".
// Online, the call is a single attempt (mutations are not idempotent), and on
// success every given cache substring is invalidated.
func (c *Client) Mutate(ctx context.Context, method, path string, params map[string]string, body any, headers map[string]string, invalidate []string, out any) error {
	var raw json.RawMessage
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apierr.Newf(apierr.KindUnknown, "encode request body: %v", err)
		}
		raw = encoded
	}

	if c.conn != nil && !c.conn.Online() {
		return c.enqueueOffline(ctx, method, path, params, raw, headers)
	}

	r, err := c.roundTrip(ctx, method, path, params, raw, headers, c.cfg.Timeout, 0)
	if err != nil {
		return err
	}

	for _, substr := range invalidate {
		c.cache.InvalidateMatching(substr)
	}

	if out != nil && len(r.body) > 0 {
		return decodeInto(r.body, out)
	}
	return nil
}

// Replay re-issues a queued offline mutation. Used by the offline queue's
// drain loop; the whole entity namespace is invalidated afterwards since the
// original invalidation targets are not persisted with the queued request.
func (c *Client) Replay(ctx context.Context, op offline.QueuedOperation) error {
	_, err := c.roundTrip(ctx, op.Request.Method, op.Request.Path, op.Request.Query, op.Request.Body, op.Request.Headers, c.cfg.Timeout, 0)
	if err != nil {
		return err
	}
	c.cache.InvalidateMatching(op.Request.Path)
	return nil
}

// Prime seeds the cache with an already-transformed value, keyed like the
// read that would fetch it. Facades use it to make a freshly created entity
// readable without a round trip.
func (c *Client) Prime(path string, params map[string]string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.cache.Set(c.keys.SerializeKey(path, params), data, "")
	return nil
}

// Cached reports whether a read result for the request shape is cached, and
// decodes it into out when it is.
func (c *Client) Cached(path string, params map[string]string, out any) bool {
	data, _, ok := c.cache.Get(c.keys.SerializeKey(path, params))
	if !ok {
		return false
	}
	return decodeInto(data, out) == nil
}

// Evict removes cached entries matching the substring. Cache mutation stays
// inside the transport; facades express intent through this method.
func (c *Client) Evict(substr string) {
	c.cache.InvalidateMatching(substr)
}

// Pending reports queued offline mutations for UI indicators.
func (c *Client) Pending() []offline.QueuedOperation {
	if c.queue == nil {
		return nil
	}
	return c.queue.List()
}

func (c *Client) enqueueOffline(ctx context.Context, method, path string, params map[string]string, body json.RawMessage, headers map[string]string) error {
	op, err := c.queue.Enqueue(ctx, offline.RequestSpec{
		Method:  method,
		Path:    path,
		Query:   params,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return apierr.AsError(err)
	}

	qerr := apierr.New(apierr.KindQueuedOffline)
	qerr.CorrelationID = op.ID.String()
	return qerr
}

func decodeInto(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apierr.Newf(apierr.KindUnknown, "decode response: %v", err)
	}
	return nil
}
