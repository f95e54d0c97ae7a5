// Package memory implements db.Backend with in-process maps.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kailas-cloud/dedup/internal/db"
)

// Compile-time check: Store implements db.Backend.
var _ db.Backend = (*Store)(nil)

// Store keeps documents and gram postings in memory.
type Store struct {
	mu       sync.RWMutex
	docs     map[string]db.Document
	postings map[string]map[string]struct{}
	closed   bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		docs:     make(map[string]db.Document),
		postings: make(map[string]map[string]struct{}),
	}
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return db.ErrClosed
	}
	return nil
}

// Candidates ranks documents by the number of grams they share with the query.
func (s *Store) Candidates(_ context.Context, grams []string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpCandidates, Err: db.ErrClosed}
	}

	shared := make(map[string]int)
	for _, g := range grams {
		for id := range s.postings[g] {
			shared[id]++
		}
	}
	return topShared(shared, limit), nil
}

// topShared orders ids by shared gram count desc, then id, and keeps limit.
func topShared(shared map[string]int, limit int) []string {
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
	return ids
}

// Fetch returns stored documents for ids.
func (s *Store) Fetch(_ context.Context, ids []string) ([]db.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &db.Error{Op: db.OpFetch, Err: db.ErrClosed}
	}

	out := make([]db.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Scan visits documents in id order.
func (s *Store) Scan(_ context.Context, fn func(db.Document) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return &db.Error{Op: db.OpScan, Err: db.ErrClosed}
	}
	docs := make([]db.Document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	for _, d := range docs {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// NewBatch starts a buffered mutation.
func (s *Store) NewBatch() db.Batch {
	return &batch{store: s}
}

// Close marks the store closed and drops its contents.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	s.postings = nil
	return nil
}

func (s *Store) put(doc db.Document) {
	s.remove(doc.ID)
	s.docs[doc.ID] = doc
	for _, g := range doc.Grams {
		ids, ok := s.postings[g]
		if !ok {
			ids = make(map[string]struct{})
			s.postings[g] = ids
		}
		ids[doc.ID] = struct{}{}
	}
}

func (s *Store) remove(id string) {
	old, ok := s.docs[id]
	if !ok {
		return
	}
	for _, g := range old.Grams {
		delete(s.postings[g], id)
		if len(s.postings[g]) == 0 {
			delete(s.postings, g)
		}
	}
	delete(s.docs, id)
}

type batch struct {
	db.Ops
	store *Store
}

// Commit applies buffered operations atomically with respect to readers.
func (b *batch) Commit(_ context.Context) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &db.Error{Op: db.OpCommit, Err: db.ErrClosed}
	}

	for _, m := range b.Ops {
		switch m.Op {
		case db.OpPut:
			s.put(m.Doc)
		case db.OpDelete:
			s.remove(m.Doc.ID)
		case db.OpDeleteAll:
			s.docs = make(map[string]db.Document)
			s.postings = make(map[string]map[string]struct{})
		}
	}
	b.Ops = nil
	return nil
}
