package cache

import (
	"time"

	"github.com/talentbase/go-dataclient/internal/cacheinfra"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity           int
	NumShards          int
	TTL                time.Duration
	EvictionPercentage int
	// QuotaBytes caps the total payload size held by the cache. Zero disables
	// the quota. When exceeded, oldest entries are evicted until usage falls
	// to 80% of the quota.
	QuotaBytes int64
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return c.toInternal().Validate()
}

// NewResponseCache constructs the default response cache implementation using
// the provided configuration.
func NewResponseCache(cfg Config) (ResponseCache, error) {
	return cacheinfra.NewSturdycCache(cfg.toInternal())
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		QuotaBytes:         c.QuotaBytes,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		QuotaBytes:         cfg.QuotaBytes,
	}
}
