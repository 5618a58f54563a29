package cache

import (
	"sort"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer by joining the endpoint with
// its params as sorted key=value pairs. Sorting makes the key deterministic
// regardless of the iteration order of the caller's map, so two logically
// identical requests always hit the same entry.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from the endpoint and params.
// An endpoint with no params serializes to the endpoint alone.
func (s *defaultKeySerializer) SerializeKey(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, endpoint)
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}

	return strings.Join(parts, KeySeparator)
}
