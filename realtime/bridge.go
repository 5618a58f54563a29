package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/talentbase/go-dataclient/cache"
	"github.com/talentbase/go-dataclient/retry"
)

// maxEventBytes caps a single pushed event line.
const maxEventBytes = 4 * 1024 * 1024

// Bridge maintains a long-lived push connection (server-sent events) and, for
// every received event, invalidates the matching cache prefixes and
// republishes the event on the internal bus. Connection loss never raises a
// user-visible error; consumers degrade to polling or manual refresh.
type Bridge struct {
	url    string
	client *http.Client
	cache  cache.ResponseCache
	bus    *PubSub
	log    *slog.Logger

	// entityPaths maps an entity name from the wire ("members") to its API
	// path prefix used in cache keys ("/api/v1/members").
	entityPaths map[string]string

	baseDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge wires a bridge to the push endpoint. entityPaths maps wire entity
// names to the cache-key prefixes they invalidate.
func NewBridge(url string, client *http.Client, rc cache.ResponseCache, bus *PubSub, entityPaths map[string]string, log *slog.Logger) *Bridge {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		url:         url,
		client:      client,
		cache:       rc,
		bus:         bus,
		entityPaths: entityPaths,
		baseDelay:   time.Second,
		log:         log,
	}
}

// Start launches the listen loop. It reconnects with capped exponential
// backoff on every drop and returns immediately.
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	b.cancel = cancel
	b.done = make(chan struct{})
	done := b.done
	b.mu.Unlock()

	go func() {
		defer close(done)
		b.run(ctx)
	}()
}

// Stop tears the connection down and waits for the loop to exit.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (b *Bridge) run(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := b.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		failures++
		delay := retry.Backoff(b.baseDelay, failures)
		b.log.Warn("realtime connection dropped, reconnecting",
			"error", err,
			"delay", delay,
			"consecutive_failures", failures)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// listen holds one connection open and dispatches its events. Returning nil
// means the server closed the stream cleanly; the loop reconnects either way.
func (b *Bridge) listen(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b.log.Info("realtime connection established", "url", b.url)

	scanner := bufio.NewScanner(resp.Body)
	// Bulk events can exceed bufio's default 64KB token limit; an undersized
	// buffer would error the scan and force a reconnect on every large event.
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			b.log.Warn("skipping malformed realtime event", "error", err)
			continue
		}
		b.dispatch(event)
	}
	return scanner.Err()
}

// dispatch invalidates stale cache entries for the event, then republishes it
// so UI subscribers can reconcile local lists without re-fetching.
func (b *Bridge) dispatch(e Event) {
	if base, ok := b.entityPaths[e.Entity]; ok && b.cache != nil {
		switch e.Type {
		case EventCreated, EventBulk:
			// New records change pagination, totals, and aggregates.
			b.cache.InvalidateMatching(base + cache.KeySeparator)
			b.cache.InvalidateMatching(base + "/search")
			b.cache.InvalidateMatching(base + "/stats")
		case EventUpdated, EventDeleted:
			if e.ID != "" {
				b.cache.InvalidateMatching(base + "/" + e.ID)
			}
			b.cache.InvalidateMatching(base + cache.KeySeparator)
			b.cache.InvalidateMatching(base + "/search")
			b.cache.InvalidateMatching(base + "/stats")
		}
	}

	b.bus.Publish(e)
}
