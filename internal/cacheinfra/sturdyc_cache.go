package cacheinfra

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the time-to-live for cached entries. It is a per-instance
	// setting, not per-entry. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries sturdyc evicts
	// when the cache reaches its entry capacity. Must be between 1-100.
	EvictionPercentage int

	// QuotaBytes caps the total payload size held by the cache. Zero disables
	// the quota.
	QuotaBytes int64
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		QuotaBytes:         0,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	if c.QuotaBytes < 0 {
		return &ConfigError{Field: "QuotaBytes", Message: "must be non-negative"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// entryMeta carries the bookkeeping the adapter keeps alongside each sturdyc
// entry: the TTL clockline, the etag, and the payload size for quota math.
type entryMeta struct {
	storedAt time.Time
	size     int64
	etag     string
}

// SturdycCache implements cache.ResponseCache on top of a sturdyc client.
// sturdyc owns sharded storage and entry-count eviction; the metadata registry
// owns TTL double-checking, substring invalidation, and byte-quota eviction.
type SturdycCache struct {
	client *sturdyc.Client[[]byte]
	meta   *xsync.MapOf[string, entryMeta]
	ttl    time.Duration
	quota  int64

	// evictMu serializes quota evictions so concurrent Sets do not both
	// walk the registry.
	evictMu sync.Mutex
	used    int64

	now func() time.Time
}

// NewSturdycCache creates a new sturdyc-backed response cache.
// It validates the configuration and initializes a sturdyc client with the
// provided settings.
func NewSturdycCache(cfg Config) (*SturdycCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
	)

	return &SturdycCache{
		client: client,
		meta:   xsync.NewMapOf[string, entryMeta](),
		ttl:    cfg.TTL,
		quota:  cfg.QuotaBytes,
		now:    time.Now,
	}, nil
}

// Get returns the cached payload, deleting and reporting absent any entry
// older than the TTL.
func (s *SturdycCache) Get(key string) ([]byte, string, bool) {
	meta, ok := s.meta.Load(key)
	if !ok {
		return nil, "", false
	}

	if s.now().Sub(meta.storedAt) > s.ttl {
		s.remove(key, meta)
		return nil, "", false
	}

	data, ok := s.client.Get(key)
	if !ok {
		// sturdyc evicted the entry under capacity pressure; drop the
		// orphaned metadata.
		s.remove(key, meta)
		return nil, "", false
	}

	return data, meta.etag, true
}

// Set overwrites the entry unconditionally and enforces the byte quota.
func (s *SturdycCache) Set(key string, data []byte, etag string) {
	if prev, ok := s.meta.Load(key); ok {
		s.addUsed(-prev.size)
	}

	s.client.Set(key, data)
	s.meta.Store(key, entryMeta{
		storedAt: s.now(),
		size:     int64(len(data)),
		etag:     etag,
	})
	s.addUsed(int64(len(data)))

	s.enforceQuota()
}

// Invalidate clears everything.
func (s *SturdycCache) Invalidate() {
	s.meta.Range(func(key string, meta entryMeta) bool {
		s.remove(key, meta)
		return true
	})
}

// InvalidateMatching removes all keys containing the given substring.
// Substring match, not regex: callers pass entity prefixes such as
// "/api/v1/members".
func (s *SturdycCache) InvalidateMatching(substr string) {
	s.meta.Range(func(key string, meta entryMeta) bool {
		if strings.Contains(key, substr) {
			s.remove(key, meta)
		}
		return true
	})
}

// Keys lists the live entry keys in no particular order.
func (s *SturdycCache) Keys() []string {
	keys := make([]string, 0, s.meta.Size())
	s.meta.Range(func(key string, _ entryMeta) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Len reports the number of live entries.
func (s *SturdycCache) Len() int {
	return s.meta.Size()
}

// snapshotEntry is the JSON shape persisted by Snapshot.
type snapshotEntry struct {
	Key      string    `json:"key"`
	Data     []byte    `json:"data"`
	ETag     string    `json:"etag,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Snapshot serializes live, unexpired entries as JSON for the local backup.
func (s *SturdycCache) Snapshot() ([]byte, error) {
	var entries []snapshotEntry
	now := s.now()

	s.meta.Range(func(key string, meta entryMeta) bool {
		if now.Sub(meta.storedAt) > s.ttl {
			return true
		}
		data, ok := s.client.Get(key)
		if !ok {
			return true
		}
		entries = append(entries, snapshotEntry{
			Key:      key,
			Data:     data,
			ETag:     meta.etag,
			StoredAt: meta.storedAt,
		})
		return true
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return json.Marshal(entries)
}

// Restore loads a Snapshot payload, skipping entries that expired while the
// snapshot sat in storage. The restored storedAt is preserved so TTL keeps
// counting from the original write.
func (s *SturdycCache) Restore(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	now := s.now()
	for _, e := range entries {
		if now.Sub(e.StoredAt) > s.ttl {
			continue
		}
		s.client.Set(e.Key, e.Data)
		s.meta.Store(e.Key, entryMeta{storedAt: e.StoredAt, size: int64(len(e.Data)), etag: e.ETag})
		s.addUsed(int64(len(e.Data)))
	}

	s.enforceQuota()
	return nil
}

func (s *SturdycCache) remove(key string, meta entryMeta) {
	if _, loaded := s.meta.LoadAndDelete(key); loaded {
		s.addUsed(-meta.size)
	}
	s.client.Delete(key)
}

func (s *SturdycCache) addUsed(delta int64) {
	s.evictMu.Lock()
	s.used += delta
	s.evictMu.Unlock()
}

// enforceQuota evicts oldest-storedAt-first until usage falls to 80% of the
// quota. The 80% band is explicit hysteresis: evicting down to the quota
// itself would thrash on every subsequent Set.
func (s *SturdycCache) enforceQuota() {
	if s.quota <= 0 {
		return
	}

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	if s.used <= s.quota {
		return
	}

	type aged struct {
		key  string
		meta entryMeta
	}
	var all []aged
	s.meta.Range(func(key string, meta entryMeta) bool {
		all = append(all, aged{key, meta})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].meta.storedAt.Before(all[j].meta.storedAt) })

	target := s.quota * 80 / 100
	for _, a := range all {
		if s.used <= target {
			break
		}
		if _, loaded := s.meta.LoadAndDelete(a.key); loaded {
			s.used -= a.meta.size
			s.client.Delete(a.key)
		}
	}
}
