package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/manager"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/searcher/engine"
	apperrors "github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scripture-search/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*engine.Result, error)
}

type ConcordanceLookup interface {
	LookupByIdentifier(ctx context.Context, identifier string) ([]engine.ResultEntry, error)
}

type CrossRefLookup interface {
	LookupKey(ctx context.Context, key string) ([]index.CrossRefGroup, error)
}

// IndexControl is the lifecycle surface of one index manager.
type IndexControl interface {
	Name() string
	Status() manager.Status
	Start()
	Cancel()
}

type Handler struct {
	searcher     Searcher
	concordance  ConcordanceLookup
	crossrefs    CrossRefLookup
	indexes      []IndexControl
	cache        *cache.QueryCache
	recorder     *events.Recorder
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// PathHeader tells the client how a search was answered: indexed,
// fallback or cache.
const PathHeader = "X-Search-Path"

// Deps collects the handler's collaborators. Cache, Recorder and CrossRefs
// may be nil.
type Deps struct {
	Searcher     Searcher
	Concordance  ConcordanceLookup
	CrossRefs    CrossRefLookup
	Indexes      []IndexControl
	Cache        *cache.QueryCache
	Recorder     *events.Recorder
	DefaultLimit int
	MaxResults   int
}

func New(d Deps) *Handler {
	return &Handler{
		searcher:     d.Searcher,
		concordance:  d.Concordance,
		crossrefs:    d.CrossRefs,
		indexes:      d.Indexes,
		cache:        d.Cache,
		recorder:     d.Recorder,
		defaultLimit: d.DefaultLimit,
		maxResults:   d.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/all", h.SearchAll)
	mux.HandleFunc("GET /api/v1/concordance/{id}", h.Concordance)
	mux.HandleFunc("GET /api/v1/crossrefs/{key}", h.CrossRefs)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/indexes/{name}/build", h.BuildIndex)
	mux.HandleFunc("POST /api/v1/indexes/{name}/cancel", h.CancelIndex)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if h.maxResults > 0 && limit > h.maxResults {
		limit = h.maxResults
	}
	h.search(w, r, query, limit)
}

// SearchAll returns every match; the result shape is the same as Search.
func (h *Handler) SearchAll(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	h.search(w, r, query, 0)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, query string, limit int) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var result *engine.Result
	var err error
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, func(ctx context.Context) (*engine.Result, error) {
			return h.searcher.Search(ctx, query, limit)
		})
	} else {
		result, err = h.searcher.Search(ctx, query, limit)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}

	latency := time.Since(start)
	path := result.Path
	if cacheHit {
		path = "cache"
	}
	log.Info("search completed",
		"query", query,
		"limit", limit,
		"path", path,
		"total_count", result.TotalCount,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.recorder.Query(events.QueryEvent{
		Type:       events.EventSearch,
		Query:      query,
		Path:       path,
		TotalCount: result.TotalCount,
		Returned:   len(result.Results),
		LatencyMs:  latency.Milliseconds(),
		CacheHit:   cacheHit,
		RequestID:  logger.RequestID(ctx),
	})
	w.Header().Set(PathHeader, path)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Concordance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	id := r.PathValue("id")
	results, err := h.concordance.LookupByIdentifier(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Error("concordance lookup failed", "identifier", id, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.recorder.Query(events.QueryEvent{
		Type:       events.EventConcordance,
		Query:      id,
		TotalCount: len(results),
		Returned:   len(results),
		LatencyMs:  time.Since(start).Milliseconds(),
		RequestID:  logger.RequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"identifier": id,
		"results":    results,
	})
}

func (h *Handler) CrossRefs(w http.ResponseWriter, r *http.Request) {
	if h.crossrefs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "cross-references are not configured")
		return
	}
	start := time.Now()
	ctx := r.Context()
	key := r.PathValue("key")
	groups, err := h.crossrefs.LookupKey(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Error("cross-reference lookup failed", "key", key, "error", err)
		h.writeAppError(w, err)
		return
	}
	h.recorder.Query(events.QueryEvent{
		Type:       events.EventCrossRef,
		Query:      key,
		TotalCount: len(groups),
		Returned:   len(groups),
		LatencyMs:  time.Since(start).Milliseconds(),
		RequestID:  logger.RequestID(ctx),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{
		"from":   key,
		"groups": groups,
	})
}

// Status reports every index's lifecycle state without changing it.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	statuses := make([]manager.Status, 0, len(h.indexes))
	for _, idx := range h.indexes {
		statuses = append(statuses, idx.Status())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": statuses})
}

func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.findIndex(r.PathValue("name"))
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown index %q", r.PathValue("name")))
		return
	}
	idx.Start()
	h.writeJSON(w, http.StatusAccepted, idx.Status())
}

// CancelIndex stops an in-flight build. Cancelling an index that is not
// building succeeds and changes nothing.
func (h *Handler) CancelIndex(w http.ResponseWriter, r *http.Request) {
	idx, ok := h.findIndex(r.PathValue("name"))
	if !ok {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown index %q", r.PathValue("name")))
		return
	}
	idx.Cancel()
	h.writeJSON(w, http.StatusOK, idx.Status())
}

func (h *Handler) findIndex(name string) (IndexControl, bool) {
	for _, idx := range h.indexes {
		if idx.Name() == name {
			return idx, true
		}
	}
	return nil, false
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	body := map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	}
	if state := h.cache.BreakerState(); state != "" {
		body["breaker"] = state
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err onto a status code. Input errors carry their
// message to the client; everything else is summarised.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeError(w, status, message)
}
