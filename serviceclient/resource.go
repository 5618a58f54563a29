// Package serviceclient provides the typed entity facades the application
// calls. A facade validates inputs before they reach the network, shapes
// requests for the transport, and keeps cached reads coherent across
// mutations through the transport's invalidation surface.
package serviceclient

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/talentbase/go-dataclient/apierr"
	"github.com/talentbase/go-dataclient/cache"
)

// Transport is the slice of the HTTP client the facades consume. The facades
// never touch the response cache directly; Prime/Cached/Evict express cache
// intent through the transport, which owns the cache.
type Transport interface {
	Get(ctx context.Context, path string, params map[string]string, out any) error
	GetRaw(ctx context.Context, path string, params map[string]string) ([]byte, error)
	Mutate(ctx context.Context, method, path string, params map[string]string, body any, headers map[string]string, invalidate []string, out any) error
	Prime(path string, params map[string]string, v any) error
	Cached(path string, params map[string]string, out any) bool
	Evict(substr string)
}

// DefaultPageSize is used when a caller does not specify a page size.
const DefaultPageSize = 20

// DefaultBatchSize bounds one bulk-create request.
const DefaultBatchSize = 50

// Page is the list envelope every collection endpoint returns.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// ListOptions shape a list or search request.
type ListOptions struct {
	Page    int
	Limit   int
	Sort    string
	Filters map[string]string
}

// BulkFailure reports one rejected item from a bulk create, indexed into the
// caller's original slice.
type BulkFailure struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BulkResult aggregates a bulk create across batches. Partial success is the
// normal case: created items and failures can both be non-empty.
type BulkResult[T any] struct {
	Created []T           `json:"items"`
	Failed  []BulkFailure `json:"failed,omitempty"`
}

// Resource is the generic facade over one REST entity collection. T is the
// entity as the server returns it; C is the create/update input shape carrying
// the validation tags.
type Resource[T any, C any] struct {
	transport Transport
	base      string
	validate  *validator.Validate
	batchSize int
	log       *slog.Logger
}

// NewResource builds a facade rooted at the collection path, e.g.
// "/api/v1/members".
func NewResource[T any, C any](t Transport, base string, log *slog.Logger) *Resource[T, C] {
	if log == nil {
		log = slog.Default()
	}
	return &Resource[T, C]{
		transport: t,
		base:      base,
		validate:  validator.New(),
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// SetBatchSize overrides the bulk-create batch bound.
func (r *Resource[T, C]) SetBatchSize(n int) {
	if n > 0 {
		r.batchSize = n
	}
}

// Create validates the input client-side, posts it, and commits the created
// entity into the cache so an immediate GetByID needs no round trip.
func (r *Resource[T, C]) Create(ctx context.Context, input C) (*T, error) {
	if err := r.checkInput(input); err != nil {
		return nil, err
	}

	var created T
	err := r.transport.Mutate(ctx, http.MethodPost, r.base, nil, input, nil, r.collectionPrefixes(), &created)
	if err != nil {
		return nil, err
	}

	if id := extractID(created); id != "" {
		tx := r.beginOptimistic(r.entityPath(id))
		if cerr := tx.Commit(created); cerr != nil {
			r.log.Warn("failed to prime created entity", "path", r.entityPath(id), "error", cerr)
		}
	}
	return &created, nil
}

// GetByID fetches one entity, cache first.
func (r *Resource[T, C]) GetByID(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, apierr.Newf(apierr.KindValidation, "id must not be empty")
	}

	var out T
	if err := r.transport.Get(ctx, r.entityPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches one page of the collection. Pagination params are always sent
// so logically identical requests share one cache entry.
func (r *Resource[T, C]) List(ctx context.Context, opts ListOptions) (*Page[T], error) {
	var page Page[T]
	if err := r.transport.Get(ctx, r.base, listParams(opts), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Update patches the entity, optionally guarded by an expected version. With
// an expectation, a cached copy already carrying a different version fails
// fast with a conflict before any bytes leave the process, and the
// expectation travels as If-Match for the server-side check. A nil
// expectedVersion skips both checks.
func (r *Resource[T, C]) Update(ctx context.Context, id string, input C, expectedVersion *int) (*T, error) {
	if id == "" {
		return nil, apierr.Newf(apierr.KindValidation, "id must not be empty")
	}
	if err := r.checkInput(input); err != nil {
		return nil, err
	}
	path := r.entityPath(id)

	var headers map[string]string
	if expectedVersion != nil {
		var cached T
		if r.transport.Cached(path, nil, &cached) {
			if v := extractVersion(cached); v != 0 && v != *expectedVersion {
				e := apierr.Newf(apierr.KindConflict,
					"version %d is stale, current is %d", *expectedVersion, v)
				e.Details = map[string]any{"expected_version": *expectedVersion, "current_version": v}
				return nil, e
			}
		}
		headers = map[string]string{"If-Match": strconv.Itoa(*expectedVersion)}
	}

	tx := r.beginOptimistic(path)
	invalidate := append(r.collectionPrefixes(), path)

	var updated T
	err := r.transport.Mutate(ctx, http.MethodPatch, path, nil, input, headers, invalidate, &updated)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if cerr := tx.Commit(updated); cerr != nil {
		r.log.Warn("failed to prime updated entity", "path", path, "error", cerr)
	}
	return &updated, nil
}

// Delete removes the entity optimistically: the cached copy is evicted before
// the call, and restored verbatim if the call fails. A mutation captured by
// the offline queue counts as applied.
func (r *Resource[T, C]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apierr.Newf(apierr.KindValidation, "id must not be empty")
	}

	tx := r.beginOptimistic(r.entityPath(id))
	tx.Apply()

	invalidate := append(r.collectionPrefixes(), r.entityPath(id))
	err := r.transport.Mutate(ctx, http.MethodDelete, r.entityPath(id), nil, nil, nil, invalidate, nil)
	if err != nil && !apierr.IsKind(err, apierr.KindQueuedOffline) {
		tx.Rollback()
		return err
	}
	_ = tx.Commit(nil)
	return err
}

// Search queries the collection. The query travels as a param so results are
// cached per query shape like any other read.
func (r *Resource[T, C]) Search(ctx context.Context, query string, opts ListOptions) (*Page[T], error) {
	params := listParams(opts)
	params["q"] = query

	var page Page[T]
	if err := r.transport.Get(ctx, r.base+"/search", params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// BulkCreate submits the inputs in sequential batches. Invalid inputs are
// rejected client-side with their original index; server-side failures are
// merged in, re-indexed to the caller's slice. One failed batch does not stop
// the remaining batches.
func (r *Resource[T, C]) BulkCreate(ctx context.Context, inputs []C) (*BulkResult[T], error) {
	result := &BulkResult[T]{}

	valid := make([]C, 0, len(inputs))
	origin := make([]int, 0, len(inputs))
	for i, input := range inputs {
		if err := r.checkInput(input); err != nil {
			result.Failed = append(result.Failed, BulkFailure{Index: i, Message: apierr.AsError(err).Message})
			continue
		}
		valid = append(valid, input)
		origin = append(origin, i)
	}

	for start := 0; start < len(valid); start += r.batchSize {
		end := start + r.batchSize
		if end > len(valid) {
			end = len(valid)
		}

		var batch BulkResult[T]
		body := map[string]any{"items": valid[start:end]}
		err := r.transport.Mutate(ctx, http.MethodPost, r.base+"/bulk", nil, body, nil, nil, &batch)
		if err != nil {
			// The whole batch failed; report every item and move on.
			msg := apierr.AsError(err).Message
			for i := start; i < end; i++ {
				result.Failed = append(result.Failed, BulkFailure{Index: origin[i], Message: msg})
			}
			continue
		}

		result.Created = append(result.Created, batch.Created...)
		for _, f := range batch.Failed {
			if idx := start + f.Index; idx < len(origin) {
				f.Index = origin[idx]
			}
			result.Failed = append(result.Failed, f)
		}
	}

	if len(result.Created) > 0 {
		for _, p := range r.collectionPrefixes() {
			r.transport.Evict(p)
		}
	}

	r.log.Info("bulk create finished",
		"path", r.base,
		"requested", len(inputs),
		"created", len(result.Created),
		"failed", len(result.Failed))
	return result, nil
}

// Export downloads the collection in the given format, bypassing the cache.
func (r *Resource[T, C]) Export(ctx context.Context, format string, filters map[string]string) ([]byte, error) {
	params := map[string]string{"format": format}
	for k, v := range filters {
		params[k] = v
	}
	return r.transport.GetRaw(ctx, r.base+"/export", params)
}

// GetStatistics fetches the collection aggregates, cached like any read.
func (r *Resource[T, C]) GetStatistics(ctx context.Context, params map[string]string) (map[string]any, error) {
	merged := map[string]string{"period": "30d"}
	for k, v := range params {
		merged[k] = v
	}

	var stats map[string]any
	if err := r.transport.Get(ctx, r.base+"/stats", merged, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *Resource[T, C]) entityPath(id string) string {
	return r.base + "/" + id
}

// collectionPrefixes are the cache regions any write to the collection makes
// stale: paged lists, search results, and aggregates.
func (r *Resource[T, C]) collectionPrefixes() []string {
	return []string{
		r.base + cache.KeySeparator,
		r.base + "/search",
		r.base + "/stats",
	}
}

// checkInput runs struct validation and maps failures to the validation kind
// with per-field details, so no malformed payload reaches the network.
func (r *Resource[T, C]) checkInput(input any) error {
	err := r.validate.Struct(input)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apierr.Newf(apierr.KindValidation, "invalid input: %v", err)
	}

	e := apierr.Newf(apierr.KindValidation, "validation failed on %d field(s)", len(verrs))
	e.Details = map[string]any{}
	for _, fe := range verrs {
		e.Details[fe.Field()] = fe.Tag()
	}
	return e
}

// listParams always includes pagination so every list/search key carries
// parameters and lands inside the collection's invalidation region.
func listParams(opts ListOptions) map[string]string {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = DefaultPageSize
	}

	params := map[string]string{
		"page":  strconv.Itoa(opts.Page),
		"limit": strconv.Itoa(opts.Limit),
	}
	if opts.Sort != "" {
		params["sort"] = opts.Sort
	}
	for k, v := range opts.Filters {
		params[k] = v
	}
	return params
}
