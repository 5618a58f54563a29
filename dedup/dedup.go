// Package dedup collapses concurrent logically-identical read requests into a
// single network call. It is only ever applied to idempotent reads; mutations
// bypass it entirely.
package dedup

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// call is one in-flight operation. Waiters block on done and then read the
// settled result; exactly one call exists per key at any instant.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Group deduplicates in-flight calls by key.
type Group[T any] struct {
	calls *xsync.MapOf[string, *call[T]]
}

// NewGroup creates an empty dedup group.
func NewGroup[T any]() *Group[T] {
	return &Group[T]{calls: xsync.NewMapOf[string, *call[T]]()}
}

// Do returns the result of fn for the given key. If a call for key is already
// in flight, Do waits for it and returns the same result instead of invoking
// fn again. The registration is removed when the call settles, on both the
// success and failure paths.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	c := &call[T]{done: make(chan struct{})}

	if existing, loaded := g.calls.LoadOrStore(key, c); loaded {
		select {
		case <-existing.done:
			return existing.val, existing.err
		case <-ctx.Done():
			// The waiter gives up; the in-flight call keeps running for the
			// remaining waiters.
			var zero T
			return zero, ctx.Err()
		}
	}

	defer func() {
		g.calls.Delete(key)
		close(c.done)
	}()

	c.val, c.err = fn(ctx)
	return c.val, c.err
}

// InFlight reports how many calls are currently pending.
func (g *Group[T]) InFlight() int {
	return g.calls.Size()
}

// Key builds a deterministic dedup key from the request shape. Params are
// normalized by sorted key so two logically identical requests hash alike.
func Key(method, path string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte(' ')
	b.WriteString(path)

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('&')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(params[k])
		}
	}

	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}
