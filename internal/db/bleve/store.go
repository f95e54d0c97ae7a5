// Package bleve implements db.Backend on a Bleve index, on disk or in memory.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	blevev2 "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/kailas-cloud/dedup/internal/db"
)

// Compile-time check: Store implements db.Backend.
var _ db.Backend = (*Store)(nil)

const (
	fieldRecord = "record"
	fieldGrams  = "grams"
	pageSize    = 1000
)

// document is the shape indexed by Bleve. Grams are keyword terms; the
// record is stored only.
type document struct {
	Record string   `json:"record"`
	Grams  []string `json:"grams"`
}

// Store wraps a Bleve index.
type Store struct {
	mu     sync.RWMutex
	index  blevev2.Index
	closed bool
}

// Open opens the Bleve index at path, creating it when missing.
// An empty path creates an in-memory index.
func Open(path string) (*Store, error) {
	m := newMapping()

	var (
		idx blevev2.Index
		err error
	)
	if path == "" {
		idx, err = blevev2.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		idx, err = blevev2.Open(path)
		if errors.Is(err, blevev2.ErrorIndexPathDoesNotExist) {
			idx, err = blevev2.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}
	return &Store{index: idx}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	record := blevev2.NewTextFieldMapping()
	record.Index = false
	record.Store = true
	record.IncludeInAll = false
	record.IncludeTermVectors = false

	grams := blevev2.NewKeywordFieldMapping()
	grams.Store = true
	grams.IncludeInAll = false
	grams.IncludeTermVectors = false

	doc := blevev2.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldRecord, record)
	doc.AddFieldMappingsAt(fieldGrams, grams)

	m := blevev2.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Ping reports whether the index is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}
	return nil
}

// Candidates runs a disjunction over the gram terms and ranks hits by the
// exact number of query grams their stored gram list contains.
func (s *Store) Candidates(ctx context.Context, grams []string, limit int) ([]string, error) {
	if len(grams) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpCandidates, Err: db.ErrClosed}
	}

	wanted := make(map[string]struct{}, len(grams))
	terms := make([]query.Query, 0, len(grams))
	for _, g := range grams {
		if _, dup := wanted[g]; dup {
			continue
		}
		wanted[g] = struct{}{}
		q := blevev2.NewTermQuery(g)
		q.SetField(fieldGrams)
		terms = append(terms, q)
	}
	disjunction := blevev2.NewDisjunctionQuery(terms...)

	shared := make(map[string]int)
	err := s.page(ctx, disjunction, []string{fieldGrams}, func(hit *search.DocumentMatch) error {
		n := 0
		for _, g := range storedStrings(hit.Fields[fieldGrams]) {
			if _, ok := wanted[g]; ok {
				n++
			}
		}
		shared[hit.ID] = n
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpCandidates, Err: err}
	}

	ids := make([]string, 0, len(shared))
	for id := range shared {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if shared[ids[i]] != shared[ids[j]] {
			return shared[ids[i]] > shared[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Fetch loads stored documents by id, preserving the order of ids.
func (s *Store) Fetch(ctx context.Context, ids []string) ([]db.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpFetch, Err: db.ErrClosed}
	}

	found := make(map[string]db.Document, len(ids))
	err := s.page(ctx, blevev2.NewDocIDQuery(ids), []string{fieldRecord, fieldGrams}, func(hit *search.DocumentMatch) error {
		found[hit.ID] = toDocument(hit)
		return nil
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpFetch, Err: err}
	}

	out := make([]db.Document, 0, len(found))
	for _, id := range ids {
		if d, ok := found[id]; ok {
			out = append(out, d)
			delete(found, id)
		}
	}
	return out, nil
}

// Scan visits every document in id order.
func (s *Store) Scan(ctx context.Context, fn func(db.Document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &db.Error{Op: db.OpScan, Err: db.ErrClosed}
	}

	var cbErr error
	err := s.page(ctx, blevev2.NewMatchAllQuery(), []string{fieldRecord, fieldGrams}, func(hit *search.DocumentMatch) error {
		if err := fn(toDocument(hit)); err != nil {
			cbErr = err
			return err
		}
		return nil
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return &db.Error{Op: db.OpScan, Err: err}
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, &db.Error{Op: db.OpCount, Err: db.ErrClosed}
	}
	n, err := s.index.DocCount()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return int(n), nil
}

// NewBatch starts a buffered mutation.
func (s *Store) NewBatch() db.Batch {
	return &batch{store: s}
}

// Close closes the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.index.Close()
}

// page runs q in id-sorted pages of pageSize and calls fn for each hit.
// Callers hold s.mu.
func (s *Store) page(ctx context.Context, q query.Query, fields []string, fn func(*search.DocumentMatch) error) error {
	for from := 0; ; from += pageSize {
		req := blevev2.NewSearchRequestOptions(q, pageSize, from, false)
		req.Fields = fields
		req.SortBy([]string{"_id"})
		res, err := s.index.SearchInContext(ctx, req)
		if err != nil {
			return err
		}
		for _, hit := range res.Hits {
			if err := fn(hit); err != nil {
				return err
			}
		}
		if len(res.Hits) < pageSize {
			return nil
		}
	}
}

func toDocument(hit *search.DocumentMatch) db.Document {
	rec, _ := hit.Fields[fieldRecord].(string)
	return db.Document{ID: hit.ID, Record: rec, Grams: storedStrings(hit.Fields[fieldGrams])}
}

// storedStrings normalizes a stored field, which Bleve returns as a string
// for a single value and []interface{} for several.
func storedStrings(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

type batch struct {
	db.Ops
	store *Store
}

// Commit applies buffered operations in one Bleve batch. A DeleteAll
// flushes what precedes it and then deletes every stored id.
func (b *batch) Commit(ctx context.Context) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := b.Ops
	b.Ops = nil
	if s.closed {
		return &db.Error{Op: db.OpCommit, Err: db.ErrClosed}
	}

	bb := s.index.NewBatch()
	for _, m := range ops {
		switch m.Op {
		case db.OpPut:
			if err := bb.Index(m.Doc.ID, document{Record: m.Doc.Record, Grams: m.Doc.Grams}); err != nil {
				return &db.Error{Op: db.OpCommit, Err: fmt.Errorf("index %s: %w", m.Doc.ID, err)}
			}
		case db.OpDelete:
			bb.Delete(m.Doc.ID)
		case db.OpDeleteAll:
			if err := s.index.Batch(bb); err != nil {
				return &db.Error{Op: db.OpCommit, Err: err}
			}
			bb = s.index.NewBatch()
			err := s.page(ctx, blevev2.NewMatchAllQuery(), nil, func(hit *search.DocumentMatch) error {
				bb.Delete(hit.ID)
				return nil
			})
			if err != nil {
				return &db.Error{Op: db.OpCommit, Err: err}
			}
		}
	}
	if bb.Size() == 0 {
		return nil
	}
	if err := s.index.Batch(bb); err != nil {
		return &db.Error{Op: db.OpCommit, Err: err}
	}
	return nil
}
