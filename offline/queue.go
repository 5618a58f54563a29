// Package offline provides the durable FIFO queue that captures mutating
// requests made while disconnected, and the connectivity observer that
// triggers a drain when the connection returns.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talentbase/go-dataclient/kvstore"
)

// StorageKey is the well-known key the queue snapshot is persisted under.
const StorageKey = "offline_queue"

// MaxAge is the staleness ceiling: an operation older than this is discarded
// rather than retried, since the user is no longer present for that action.
const MaxAge = 24 * time.Hour

// ErrDrainInProgress is returned when Drain is called while a drain is
// already running; concurrent drains would break write ordering.
var ErrDrainInProgress = errors.New("offline: drain already in progress")

// RequestSpec is the serializable shape of a deferred mutating request.
type RequestSpec struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// QueuedOperation is one deferred mutation. Created when a mutating call is
// attempted while offline; removed when successfully replayed or when older
// than MaxAge.
type QueuedOperation struct {
	ID         uuid.UUID   `json:"id"`
	Request    RequestSpec `json:"request"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	RetryCount int         `json:"retry_count"`
}

// ReplayFunc re-issues one queued operation against the network.
type ReplayFunc func(ctx context.Context, op QueuedOperation) error

// Queue is the process-wide offline mutation queue. The full queue is
// persisted to durable storage on every enqueue/dequeue so it survives a
// process restart.
type Queue struct {
	mu    sync.Mutex
	ops   []QueuedOperation
	store kvstore.Store
	log   *slog.Logger

	draining atomic.Bool
	now      func() time.Time
}

// NewQueue creates an empty queue persisting into store.
func NewQueue(store kvstore.Store, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{store: store, log: log, now: time.Now}
}

// Load restores the persisted snapshot. A missing snapshot is an empty queue.
func (q *Queue) Load(ctx context.Context) error {
	data, err := q.store.Get(ctx, StorageKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}

	var ops []QueuedOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return fmt.Errorf("decode offline queue: %w", err)
	}

	q.mu.Lock()
	q.ops = ops
	q.mu.Unlock()
	return nil
}

// Enqueue appends the request and persists the full queue synchronously
// before returning.
func (q *Queue) Enqueue(ctx context.Context, spec RequestSpec) (QueuedOperation, error) {
	op := QueuedOperation{
		ID:         uuid.New(),
		Request:    spec,
		EnqueuedAt: q.now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops, op)
	if err := q.persistLocked(ctx); err != nil {
		// Roll the append back; an unpersisted enqueue must not pretend to
		// be durable.
		q.ops = q.ops[:len(q.ops)-1]
		return QueuedOperation{}, err
	}

	q.log.Info("queued offline mutation",
		"operation_id", op.ID,
		"method", spec.Method,
		"path", spec.Path,
		"pending", len(q.ops))
	return op, nil
}

// List returns a read-only snapshot for UI indicators.
func (q *Queue) List() []QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueuedOperation(nil), q.ops...)
}

// Len reports the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Drain replays entries strictly in FIFO order, awaiting each replay before
// starting the next. A failed replay younger than MaxAge is put back at the
// head and the drain stops, preserving write ordering for the next attempt;
// stale entries are discarded with a log line, never surfaced as user-facing
// errors. Only one drain may run at a time.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) error {
	if !q.draining.CompareAndSwap(false, true) {
		return ErrDrainInProgress
	}
	defer q.draining.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		op, ok := q.pop(ctx)
		if !ok {
			return nil
		}

		if age := q.now().Sub(op.EnqueuedAt); age > MaxAge {
			q.log.Warn("discarding stale offline operation",
				"operation_id", op.ID,
				"age", age,
				"path", op.Request.Path)
			continue
		}

		if err := replay(ctx, op); err != nil {
			op.RetryCount++
			q.pushFront(ctx, op)
			q.log.Warn("offline replay failed, will retry on next drain",
				"operation_id", op.ID,
				"retry_count", op.RetryCount,
				"error", err)
			return nil
		}

		q.log.Info("replayed offline mutation",
			"operation_id", op.ID,
			"method", op.Request.Method,
			"path", op.Request.Path)
	}
}

func (q *Queue) pop(ctx context.Context) (QueuedOperation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return QueuedOperation{}, false
	}
	op := q.ops[0]
	q.ops = q.ops[1:]
	if err := q.persistLocked(ctx); err != nil {
		q.log.Error("failed to persist offline queue", "error", err)
	}
	return op, true
}

func (q *Queue) pushFront(ctx context.Context, op QueuedOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append([]QueuedOperation{op}, q.ops...)
	if err := q.persistLocked(ctx); err != nil {
		q.log.Error("failed to persist offline queue", "error", err)
	}
}

func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(q.ops)
	if err != nil {
		return fmt.Errorf("encode offline queue: %w", err)
	}
	if err := q.store.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("persist offline queue: %w", err)
	}
	return nil
}
