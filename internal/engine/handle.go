package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/db"
	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/metrics"
	"github.com/kailas-cloud/dedup/internal/record"
)

// Compile-time check: Handle implements Index.
var _ Index = (*Handle)(nil)

// DefaultMaxCandidates bounds the documents compared per search when Options leave it unset.
const DefaultMaxCandidates = 1000

// Options tune a Handle.
type Options struct {
	// MaxCandidates caps the documents fetched per search.
	MaxCandidates int
	// CacheSize enables an LRU of search results when positive.
	CacheSize int
	Logger    *zap.Logger
}

// Handle implements Index on a storage backend.
//
// Searches share a read lock. Mutations hold the write lock for their whole
// duration and always commit their batch before releasing it.
type Handle struct {
	name          string
	backend       db.Backend
	matcher       Matcher
	maxCandidates int
	cache         *lru.Cache[string, []string]
	logger        *zap.Logger

	mu sync.RWMutex
}

// NewHandle wraps backend as the index called name.
func NewHandle(name string, backend db.Backend, matcher Matcher, opts Options) (*Handle, error) {
	if backend == nil || matcher == nil {
		return nil, errors.New("engine: backend and matcher are required")
	}
	h := &Handle{
		name:          name,
		backend:       backend,
		matcher:       matcher,
		maxCandidates: opts.MaxCandidates,
		logger:        opts.Logger,
	}
	if h.maxCandidates <= 0 {
		h.maxCandidates = DefaultMaxCandidates
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		c, err := lru.New[string, []string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("engine: create cache: %w", err)
		}
		h.cache = c
	}
	return h, nil
}

// Name returns the index name.
func (h *Handle) Name() string { return h.name }

// Search compares expr with the candidate documents sharing its grams.
// Hits are ordered by similarity desc, then document id.
func (h *Handle) Search(ctx context.Context, sch *schema.Schema, expr string) ([]string, error) {
	query := record.Decode(expr)
	if len(query) != sch.Len() {
		return nil, fmt.Errorf("expression has %d fields, schema %s has %d: %w",
			len(query), sch.Name(), sch.Len(), domain.ErrInvalidParameter)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	key := sch.Name() + "\x00" + expr
	if hits, ok := h.cached(key); ok {
		return hits, nil
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(h.name).Observe(time.Since(start).Seconds())
	}()

	ids, err := h.backend.Candidates(ctx, h.matcher.Grams(sch, query), h.maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", h.name, err)
	}
	docs, err := h.backend.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", h.name, err)
	}

	idPos, _ := sch.Pos(schema.FieldID)
	queryID := query[idPos]

	type scored struct {
		id  string
		sim float64
		raw string
	}
	found := make([]scored, 0, len(docs))
	for _, d := range docs {
		stored := record.Decode(d.Record)
		if len(stored) != sch.Len() {
			h.logger.Warn("Stored record does not fit schema",
				zap.String("index", h.name),
				zap.String("schema", sch.Name()),
				zap.String("doc_id", d.ID),
				zap.Int("fields", len(stored)),
			)
			continue
		}
		if queryID != "" && queryID != record.WildcardID && stored[idPos] == queryID {
			continue
		}
		m, ok := h.matcher.Match(sch, query, stored)
		if !ok {
			continue
		}
		found = append(found, scored{id: d.ID, sim: m.Similarity, raw: formatHit(query, stored, m)})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].sim != found[j].sim {
			return found[i].sim > found[j].sim
		}
		return found[i].id < found[j].id
	})

	hits := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, f := range found {
		if _, dup := seen[f.raw]; dup {
			continue
		}
		seen[f.raw] = struct{}{}
		hits = append(hits, f.raw)
	}

	if h.cache != nil {
		h.cache.Add(key, slices.Clone(hits))
	}
	return hits, nil
}

func (h *Handle) cached(key string) ([]string, bool) {
	if h.cache == nil {
		return nil, false
	}
	hits, ok := h.cache.Get(key)
	if !ok {
		metrics.SearchCacheTotal.WithLabelValues(h.name, "miss").Inc()
		return nil, false
	}
	metrics.SearchCacheTotal.WithLabelValues(h.name, "hit").Inc()
	return slices.Clone(hits), true
}

// Insert validates records against sch and stores them keyed by their id.
// Nothing is written when any record is invalid.
func (h *Handle) Insert(ctx context.Context, sch *schema.Schema, records []string) error {
	idPos, _ := sch.Pos(schema.FieldID)
	docs := make([]db.Document, 0, len(records))
	for i, rec := range records {
		fields := record.Decode(rec)
		if len(fields) != sch.Len() {
			return fmt.Errorf("record %d has %d fields, schema %s has %d: %w",
				i, len(fields), sch.Name(), sch.Len(), domain.ErrInvalidDocument)
		}
		if fields[idPos] == "" {
			return fmt.Errorf("record %d: empty id: %w", i, domain.ErrInvalidDocument)
		}
		docs = append(docs, db.Document{ID: fields[idPos], Record: rec, Grams: h.matcher.Grams(sch, fields)})
	}

	return h.mutate(ctx, "insert", func(b db.Batch) error {
		for _, d := range docs {
			b.Put(d)
		}
		return nil
	})
}

// Delete removes the document with id.
func (h *Handle) Delete(ctx context.Context, id string) error {
	return h.mutate(ctx, "delete", func(b db.Batch) error {
		b.Delete(id)
		return nil
	})
}

// Reset removes every document.
func (h *Handle) Reset(ctx context.Context) error {
	return h.mutate(ctx, "reset", func(b db.Batch) error {
		b.DeleteAll()
		return nil
	})
}

// Optimize rewrites every stored document into a fresh batch, dropping stale
// postings left by earlier writes.
func (h *Handle) Optimize(ctx context.Context) error {
	return h.mutate(ctx, "optimize", func(b db.Batch) error {
		var docs []db.Document
		if err := h.backend.Scan(ctx, func(d db.Document) error {
			docs = append(docs, d)
			return nil
		}); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		b.DeleteAll()
		for _, d := range docs {
			b.Put(d)
		}
		return nil
	})
}

// Check verifies that every stored record fits sch, carries its own id and
// can be reached through its grams.
func (h *Handle) Check(ctx context.Context, sch *schema.Schema) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	idPos, _ := sch.Pos(schema.FieldID)
	errBad := errors.New("bad record")
	err := h.backend.Scan(ctx, func(d db.Document) error {
		fields := record.Decode(d.Record)
		if len(fields) != sch.Len() || fields[idPos] == "" || fields[idPos] != d.ID {
			h.logger.Warn("Integrity check failed",
				zap.String("index", h.name),
				zap.String("doc_id", d.ID),
				zap.Int("fields", len(fields)),
			)
			return errBad
		}
		grams := h.matcher.Grams(sch, fields)
		if len(grams) == 0 {
			return nil
		}
		ids, err := h.backend.Candidates(ctx, grams, 0)
		if err != nil {
			return err
		}
		if !slices.Contains(ids, d.ID) {
			h.logger.Warn("Integrity check failed: unreachable document",
				zap.String("index", h.name),
				zap.String("doc_id", d.ID),
			)
			return errBad
		}
		return nil
	})
	switch {
	case errors.Is(err, errBad):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("index %s: check: %w", h.name, err)
	}
	return true, nil
}

// Ping checks the backend.
func (h *Handle) Ping(ctx context.Context) error {
	return h.backend.Ping(ctx)
}

// Count returns the number of stored documents.
func (h *Handle) Count(ctx context.Context) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.backend.Count(ctx)
}

// Close closes the backend.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backend.Close()
}

// mutate runs fn against a new batch under the write lock and commits the
// batch on every exit path. A commit error only surfaces when fn succeeded.
func (h *Handle) mutate(ctx context.Context, op string, fn func(db.Batch) error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.backend.NewBatch()
	defer func() {
		cerr := b.Commit(context.WithoutCancel(ctx))
		if h.cache != nil {
			h.cache.Purge()
		}
		switch {
		case cerr != nil && err != nil:
			h.logger.Error("Commit after failed mutation",
				zap.String("index", h.name),
				zap.String("op", op),
				zap.NamedError("commit_error", cerr),
				zap.Error(err),
			)
		case cerr != nil:
			err = fmt.Errorf("index %s: %s: commit: %w", h.name, op, cerr)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.MutationsTotal.WithLabelValues(h.name, op, status).Inc()
	}()

	if err := fn(b); err != nil {
		return fmt.Errorf("index %s: %s: %w", h.name, op, err)
	}
	return nil
}
