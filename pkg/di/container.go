// Package di wires the data-access layer into one shared object graph: one
// cache, one offline queue, one transport, and the typed facades on top.
package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/talentbase/go-dataclient/auth"
	"github.com/talentbase/go-dataclient/cache"
	"github.com/talentbase/go-dataclient/kvstore"
	"github.com/talentbase/go-dataclient/offline"
	"github.com/talentbase/go-dataclient/realtime"
	"github.com/talentbase/go-dataclient/serviceclient/feedback"
	"github.com/talentbase/go-dataclient/serviceclient/member"
	"github.com/talentbase/go-dataclient/transport"
)

// Config is the environment-driven configuration surface.
type Config struct {
	APIBaseURL string `env:"API_BASE_URL,required,notEmpty"`

	CacheTTL        time.Duration `env:"HTTP_CACHE_TTL" envDefault:"5m"`
	CacheCapacity   int           `env:"HTTP_CACHE_CAPACITY" envDefault:"10000"`
	CacheQuotaBytes int64         `env:"HTTP_CACHE_QUOTA_BYTES" envDefault:"0"`

	ClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"30s"`
	ExportTimeout time.Duration `env:"HTTP_EXPORT_TIMEOUT" envDefault:"2m"`
	RetryCount    int           `env:"HTTP_CLIENT_RETRY_COUNT" envDefault:"3"`
	RetryDelay    time.Duration `env:"HTTP_CLIENT_RETRY_DELAY" envDefault:"1s"`

	BulkBatchSize   int   `env:"BULK_BATCH_SIZE" envDefault:"50"`
	ExportSizeLimit int64 `env:"EXPORT_SIZE_LIMIT" envDefault:"10485760"`

	// AutoRefreshInterval, when positive, periodically drops the whole cache
	// so long-lived processes converge without push events.
	AutoRefreshInterval time.Duration `env:"AUTO_REFRESH_INTERVAL" envDefault:"0"`

	RealtimeURL   string `env:"REALTIME_URL"`
	ClientVersion string `env:"CLIENT_VERSION" envDefault:"1.0.0"`

	// StateDir, when set, makes the offline queue survive process restarts.
	// Empty keeps state in memory.
	StateDir string `env:"CLIENT_STATE_DIR"`
}

// cacheBackupKey is the kvstore key the cache snapshot persists under.
const cacheBackupKey = "cache_backup"

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Options carries the collaborators that cannot come from the environment.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Refresh is invoked at most once per 401 to obtain a fresh token.
	Refresh auth.RefreshFunc
}

// Container owns the shared singletons and the facades built on them.
type Container struct {
	cfg Config
	log *slog.Logger

	store     kvstore.Store
	cache     cache.ResponseCache
	queue     *offline.Queue
	tokens    *auth.TokenStore
	bus       *realtime.PubSub
	conn      *offline.Connectivity
	transport *transport.Client
	bridge    *realtime.Bridge

	members   *member.Client
	feedbacks *feedback.Client

	baseCtx context.Context
	cancel  context.CancelFunc
}

// New wires the full graph. The returned container must be closed.
func New(ctx context.Context, cfg Config, opts Options) (*Container, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Capacity = cfg.CacheCapacity
	cacheCfg.TTL = cfg.CacheTTL
	cacheCfg.QuotaBytes = cfg.CacheQuotaBytes

	rc, err := cache.NewResponseCache(cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	var store kvstore.Store
	if cfg.StateDir != "" {
		store = kvstore.NewFile(cfg.StateDir)
	} else {
		store = kvstore.NewMemory()
	}

	queue := offline.NewQueue(store, log)
	if err := queue.Load(ctx); err != nil {
		return nil, err
	}

	// Warm the cache from the previous run's backup. A corrupt or missing
	// backup is not fatal; the cache just starts cold.
	if snap, serr := store.Get(ctx, cacheBackupKey); serr == nil {
		if rerr := rc.Restore(ctx, snap); rerr != nil {
			log.Warn("discarding unreadable cache backup", "error", rerr)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	c := &Container{
		cfg:     cfg,
		log:     log,
		store:   store,
		cache:   rc,
		queue:   queue,
		tokens:  auth.NewTokenStore(),
		bus:     realtime.NewPubSub(),
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	// The callback closes over the container because the transport that
	// performs the replay is built after connectivity.
	c.conn = offline.NewConnectivity(func() {
		go c.drainOffline()
	})

	c.transport = transport.NewClient(transport.Config{
		BaseURL:          cfg.APIBaseURL,
		Timeout:          cfg.ClientTimeout,
		ExportTimeout:    cfg.ExportTimeout,
		ExportSizeLimit:  cfg.ExportSizeLimit,
		RetryMaxAttempts: cfg.RetryCount,
		RetryBaseDelay:   cfg.RetryDelay,
		ClientVersion:    cfg.ClientVersion,
	}, transport.Dependencies{
		HTTPClient:   opts.HTTPClient,
		Cache:        rc,
		Queue:        queue,
		Connectivity: c.conn,
		Tokens:       c.tokens,
		Refresh:      opts.Refresh,
		Bus:          c.bus,
		Logger:       log,
	})

	c.members = member.NewClient(c.transport, log)
	c.members.SetBatchSize(cfg.BulkBatchSize)
	c.feedbacks = feedback.NewClient(c.transport, log)
	c.feedbacks.SetBatchSize(cfg.BulkBatchSize)

	if cfg.RealtimeURL != "" {
		c.bridge = realtime.NewBridge(cfg.RealtimeURL, opts.HTTPClient, rc, c.bus, map[string]string{
			"members":  member.BasePath,
			"feedback": feedback.BasePath,
		}, log)
		c.bridge.Start(baseCtx)
	}

	if cfg.AutoRefreshInterval > 0 {
		go c.autoRefresh(cfg.AutoRefreshInterval)
	}

	return c, nil
}

// Close stops background work and persists a cache snapshot for the next run.
// It does not drain the offline queue; pending mutations stay persisted.
func (c *Container) Close() {
	if c.bridge != nil {
		c.bridge.Stop()
	}
	c.cancel()

	snap, err := c.cache.Snapshot()
	if err == nil {
		err = c.store.Set(context.Background(), cacheBackupKey, snap)
	}
	if err != nil {
		c.log.Warn("failed to persist cache backup", "error", err)
	}
}

// Members returns the member facade.
func (c *Container) Members() *member.Client { return c.members }

// Feedback returns the feedback facade.
func (c *Container) Feedback() *feedback.Client { return c.feedbacks }

// Transport returns the shared HTTP client.
func (c *Container) Transport() *transport.Client { return c.transport }

// Bus returns the event bus UI consumers subscribe to.
func (c *Container) Bus() *realtime.PubSub { return c.bus }

// Connectivity returns the observer the application reports network state to.
func (c *Container) Connectivity() *offline.Connectivity { return c.conn }

// Queue returns the offline mutation queue, exposed for pending-work badges.
func (c *Container) Queue() *offline.Queue { return c.queue }

// Tokens returns the credential store the application sets tokens on.
func (c *Container) Tokens() *auth.TokenStore { return c.tokens }

func (c *Container) drainOffline() {
	err := c.queue.Drain(c.baseCtx, c.transport.Replay)
	if err != nil && !errors.Is(err, offline.ErrDrainInProgress) {
		c.log.Warn("offline drain aborted", "error", err)
	}
}

func (c *Container) autoRefresh(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.baseCtx.Done():
			return
		case <-t.C:
			c.cache.Invalidate()
			c.log.Debug("cache dropped by auto refresh", "interval", interval)
		}
	}
}
