// Package cache provides the response-cache contract and key serialization
// for the client data-access layer.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - ResponseCache: time-bounded memoization of read results with explicit
//     and substring-based invalidation
//   - KeySerializer: builds stable cache keys from an endpoint and its params
//
// Keys are built deterministically from (endpoint, params) with sorted param
// keys, so two calls with semantically identical parameters produce the same
// key regardless of map iteration order.
//
// # Basic Usage
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("/api/v1/members", map[string]string{"page": "1"})
//
//	rc, err := cache.NewResponseCache(cache.DefaultConfig())
//	if err != nil { ... }
//	rc.Set(key, payload, etag)
//	data, etag, ok := rc.Get(key)
//
// # Invalidation Strategy
//
// Mutating operations invalidate by substring: the specific-entity key, the
// list/collection prefix, and any aggregate-statistics prefix. Expiry is
// lazy: an entry older than the configured TTL is deleted on lookup and
// reported as absent.
//
// # Capacity Policy
//
// When QuotaBytes is configured and exceeded, entries are evicted
// oldest-storedAt-first until usage falls to 80% of the quota. The hysteresis
// band avoids evicting on every Set once the cache hovers near its quota.
package cache
