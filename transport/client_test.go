package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talentbase/go-dataclient/apierr"
	"github.com/talentbase/go-dataclient/auth"
	"github.com/talentbase/go-dataclient/cache"
	"github.com/talentbase/go-dataclient/kvstore"
	"github.com/talentbase/go-dataclient/offline"
	"github.com/talentbase/go-dataclient/realtime"
)

type testEnv struct {
	client *Client
	cache  cache.ResponseCache
	queue  *offline.Queue
	conn   *offline.Connectivity
	tokens *auth.TokenStore
	bus    *realtime.PubSub
}

func newTestEnv(t *testing.T, baseURL string, cfg Config) *testEnv {
	t.Helper()

	rc, err := cache.NewResponseCache(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}

	queue := offline.NewQueue(kvstore.NewMemory(), nil)
	conn := offline.NewConnectivity(nil)
	tokens := auth.NewTokenStore()
	bus := realtime.NewPubSub()

	cfg.BaseURL = baseURL
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}

	env := &testEnv{cache: rc, queue: queue, conn: conn, tokens: tokens, bus: bus}
	env.client = NewClient(cfg, Dependencies{
		Cache:        rc,
		Queue:        queue,
		Connectivity: conn,
		Tokens:       tokens,
		Bus:          bus,
	})
	return env
}

func TestGet_AttachesTracingAndAuthHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{ClientVersion: "1.2.3"})
	env.tokens.Set("token-abc", time.Now().Add(time.Hour))

	var out map[string]bool
	if err := env.client.Get(context.Background(), "/api/v1/members/m1", nil, &out); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if got.Get("X-Correlation-ID") == "" {
		t.Error("expected a correlation id header")
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	if got.Get("X-Request-Timestamp") == "" {
		t.Error("expected a request timestamp header")
	}
	if v := got.Get("X-Client-Version"); v != "1.2.3" {
		t.Errorf("expected client version header, got %q", v)
	}
	if v := got.Get("Authorization"); v != "Bearer token-abc" {
		t.Errorf("expected bearer token attached, got %q", v)
	}
}

func TestGet_SecondCallServedFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"id":"m1","version":3}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})

	var first, second map[string]any
	if err := env.client.Get(context.Background(), "/api/v1/members/m1", nil, &first); err != nil {
		t.Fatalf("first get failed: %v", err)
	}
	if err := env.client.Get(context.Background(), "/api/v1/members/m1", nil, &second); err != nil {
		t.Fatalf("second get failed: %v", err)
	}

	if n := hits.Load(); n != 1 {
		t.Errorf("expected a single network hit, got %d", n)
	}
	if first["id"] != second["id"] || first["version"] != second["version"] {
		t.Errorf("expected identical decoded payloads, got %v vs %v", first, second)
	}
}

func TestGet_ConcurrentIdenticalReadsCollapse(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `{"items":[],"total":0}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	params := map[string]string{"page": "1", "limit": "20"}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]any
			errs[i] = env.client.Get(context.Background(), "/api/v1/members", params, &out)
		}(i)
	}

	// Let every goroutine reach the dedup group before the server responds.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d failed: %v", i, err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected concurrent identical reads to collapse to one hit, got %d", n)
	}
}

func TestGet_RetriesTransientServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":"m1"}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{RetryMaxAttempts: 3})

	var out map[string]any
	if err := env.client.Get(context.Background(), "/api/v1/members/m1", nil, &out); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestGet_TerminalStatusDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"member not found"}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{RetryMaxAttempts: 3})

	err := env.client.Get(context.Background(), "/api/v1/members/nope", nil, nil)
	if !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected a single attempt for a terminal status, got %d", n)
	}

	derr := apierr.AsError(err)
	if derr.Message != "member not found" {
		t.Errorf("expected the server detail preserved, got %q", derr.Message)
	}
	if derr.CorrelationID == "" {
		t.Error("expected the correlation id carried on the error")
	}
}

func TestMutate_InvalidatesGivenPrefixes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"m1","version":2}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	env.cache.Set("/api/v1/members/m1", []byte(`{"id":"m1","version":1}`), "")
	env.cache.Set("/api/v1/members::limit=20::page=1", []byte(`{"items":[]}`), "")
	env.cache.Set("/api/v1/feedback::limit=20::page=1", []byte(`{"items":[]}`), "")

	err := env.client.Mutate(context.Background(), http.MethodPatch, "/api/v1/members/m1", nil,
		map[string]any{"title": "updated"}, nil,
		[]string{"/api/v1/members/m1", "/api/v1/members" + cache.KeySeparator}, nil)
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	if _, _, ok := env.cache.Get("/api/v1/members/m1"); ok {
		t.Error("expected the entity key invalidated")
	}
	if _, _, ok := env.cache.Get("/api/v1/members::limit=20::page=1"); ok {
		t.Error("expected the list key invalidated")
	}
	if _, _, ok := env.cache.Get("/api/v1/feedback::limit=20::page=1"); !ok {
		t.Error("expected other entities untouched")
	}
}

func TestMutate_OfflineQueuesInsteadOfSending(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	env.conn.SetOnline(false)

	err := env.client.Mutate(context.Background(), http.MethodPost, "/api/v1/feedback", nil,
		map[string]any{"feedback": "offline note"}, nil, nil, nil)
	if !apierr.IsKind(err, apierr.KindQueuedOffline) {
		t.Fatalf("expected KindQueuedOffline, got %v", err)
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("expected no network traffic while offline, got %d hits", n)
	}
	pending := env.client.Pending()
	if len(pending) != 1 || pending[0].Request.Path != "/api/v1/feedback" {
		t.Fatalf("expected the mutation captured in the queue, got %v", pending)
	}
}

func TestMutate_Unauthorized_RefreshesOnceAndReplays(t *testing.T) {
	var authHeaders []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"f1"}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	env.tokens.Set("stale-token", time.Now().Add(time.Hour))

	var refreshes atomic.Int32
	env.client.refresh = func(ctx context.Context) (string, time.Time, error) {
		refreshes.Add(1)
		return "fresh-token", time.Now().Add(time.Hour), nil
	}

	var out map[string]string
	err := env.client.Mutate(context.Background(), http.MethodPost, "/api/v1/feedback", nil,
		map[string]any{"feedback": "note"}, nil, nil, &out)
	if err != nil {
		t.Fatalf("expected the replay to succeed, got %v", err)
	}

	if n := refreshes.Load(); n != 1 {
		t.Errorf("expected exactly one refresh, got %d", n)
	}
	if len(authHeaders) != 2 || authHeaders[1] != "Bearer fresh-token" {
		t.Errorf("expected one replay carrying the fresh token, got %v", authHeaders)
	}
	if out["id"] != "f1" {
		t.Errorf("expected the replay response decoded, got %v", out)
	}
}

func TestMutate_RefreshFailureClearsTokensAndSignals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	env.tokens.Set("stale-token", time.Now().Add(time.Hour))
	env.client.refresh = func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, fmt.Errorf("refresh endpoint down")
	}

	var signals atomic.Int32
	env.bus.Subscribe(realtime.EventAuthRequired, func(realtime.Event) { signals.Add(1) })

	err := env.client.Mutate(context.Background(), http.MethodDelete, "/api/v1/feedback/f1",
		nil, nil, nil, nil, nil)
	if !apierr.IsKind(err, apierr.KindAuthRequired) {
		t.Fatalf("expected KindAuthRequired, got %v", err)
	}

	if _, ok := env.tokens.Token(); ok {
		t.Error("expected stored credentials cleared")
	}
	if n := signals.Load(); n != 1 {
		t.Errorf("expected one auth-required signal, got %d", n)
	}
}

func TestReplay_ReissuesQueuedOperation(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		fmt.Fprint(w, `{"id":"f1"}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	env.cache.Set("/api/v1/feedback::limit=20::page=1", []byte(`{"items":[]}`), "")

	body, _ := json.Marshal(map[string]string{"feedback": "queued note"})
	op := offline.QueuedOperation{
		Request: offline.RequestSpec{
			Method: http.MethodPost,
			Path:   "/api/v1/feedback",
			Body:   body,
		},
		EnqueuedAt: time.Now(),
	}

	if err := env.client.Replay(context.Background(), op); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(bodies) != 1 || bodies[0] != string(body) {
		t.Errorf("expected the queued body re-sent verbatim, got %v", bodies)
	}
	if _, _, ok := env.cache.Get("/api/v1/feedback::limit=20::page=1"); ok {
		t.Error("expected the entity namespace invalidated after replay")
	}
}

func TestGetRaw_EnforcesSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":"`)
		for i := 0; i < 64; i++ {
			fmt.Fprint(w, "xxxxxxxxxx")
		}
		fmt.Fprint(w, `"}`)
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{ExportSizeLimit: 128, RetryMaxAttempts: 1})

	_, err := env.client.GetRaw(context.Background(), "/api/v1/members/export", nil)
	if !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("expected a size-limit validation error, got %v", err)
	}
}

func TestGet_CancelledContextSurfacesAsCancelled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- env.client.Get(ctx, "/api/v1/members", map[string]string{"page": "1"}, nil)
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		if !apierr.IsKind(err, apierr.KindCancelled) {
			t.Fatalf("expected KindCancelled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the cancelled request to return")
	}
}

func TestPrimeAndCached_RoundTripThroughCache(t *testing.T) {
	env := newTestEnv(t, "http://unreachable.invalid", Config{})

	type member struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}

	if err := env.client.Prime("/api/v1/members/m1", nil, member{ID: "m1", Version: 4}); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	var got member
	if !env.client.Cached("/api/v1/members/m1", nil, &got) {
		t.Fatal("expected the primed entry readable")
	}
	if got.Version != 4 {
		t.Errorf("expected version 4, got %d", got.Version)
	}

	env.client.Evict("/api/v1/members/m1")
	if env.client.Cached("/api/v1/members/m1", nil, &got) {
		t.Error("expected the entry gone after evict")
	}
}
