package cache

import "context"

// KeySerializer builds a cache key from an endpoint plus its request params.
// It is responsible for producing stable keys across calls: two requests with
// semantically identical params must yield the same key regardless of the
// ordering of the caller's map.
type KeySerializer interface {
	SerializeKey(endpoint string, params map[string]string) string
}

// ResponseCache is the time-bounded memoization store for read results.
// Entries expire when their age exceeds the per-instance TTL; expired entries
// are evicted lazily on lookup. The transport client is the only mutator.
type ResponseCache interface {
	// Get returns the cached payload and its etag, or ok=false when the key
	// is missing or expired. Expired entries are deleted as a side effect.
	Get(key string) (data []byte, etag string, ok bool)

	// Set overwrites the entry unconditionally.
	Set(key string, data []byte, etag string)

	// Invalidate clears the whole cache.
	Invalidate()

	// InvalidateMatching removes every key containing the given substring.
	InvalidateMatching(substr string)

	// Keys lists the live entry keys, for diagnostics and tests.
	Keys() []string

	// Len reports the number of live entries.
	Len() int

	// Snapshot serializes the live entries for the optional local backup.
	Snapshot() ([]byte, error)

	// Restore loads a snapshot produced by Snapshot, skipping expired entries.
	Restore(ctx context.Context, data []byte) error
}
