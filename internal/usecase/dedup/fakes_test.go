package dedup

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/record"
)

// --- Mocks ---

type fakeIndex struct {
	name  string
	hits  []string
	err   error
	delay time.Duration
	ok    bool

	mu       sync.Mutex
	searches []string
	inserted []string
	deleted  []string
	resets   int
	opts     int
}

func (f *fakeIndex) Name() string { return f.name }

func (f *fakeIndex) Search(ctx context.Context, _ *schema.Schema, expr string) ([]string, error) {
	f.mu.Lock()
	f.searches = append(f.searches, expr)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.hits, f.err
}

func (f *fakeIndex) Insert(_ context.Context, _ *schema.Schema, records []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, records...)
	return f.err
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeIndex) Reset(context.Context) error    { f.resets++; return f.err }
func (f *fakeIndex) Optimize(context.Context) error { f.opts++; return f.err }
func (f *fakeIndex) Close() error                   { return nil }

func (f *fakeIndex) Check(context.Context, *schema.Schema) (bool, error) {
	return f.ok, f.err
}

func (f *fakeIndex) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches) + len(f.inserted) + len(f.deleted) + f.resets + f.opts
}

type fakeRegistry struct {
	schemas map[string]*schema.Schema
	indexes map[string]*fakeIndex
}

func (r *fakeRegistry) Schema(name string) (*schema.Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	return nil, domain.NewSchemaNotFound(name)
}

func (r *fakeRegistry) Index(name string) (engine.Index, error) {
	if i, ok := r.indexes[name]; ok {
		return i, nil
	}
	return nil, domain.NewIndexNotFound(name)
}

func (r *fakeRegistry) SchemaNames() []string { return []string{"demo"} }
func (r *fakeRegistry) IndexNames() []string  { return []string{"idxA", "idxB"} }

func (r *fakeRegistry) engineCalls() int {
	n := 0
	for _, i := range r.indexes {
		n += i.calls()
	}
	return n
}

// demoSchema has fields {database:0, id:1, title:2}, indexed by title.
func demoSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("demo", "title", "UTF-8", []schema.Field{
		{Name: "database", Pos: 0},
		{Name: "id", Pos: 1},
		{Name: "title", Pos: 2},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return &s
}

func newFakeRegistry(t *testing.T, indexes ...*fakeIndex) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{
		schemas: map[string]*schema.Schema{"demo": demoSchema(t)},
		indexes: make(map[string]*fakeIndex),
	}
	for _, i := range indexes {
		r.indexes[i.name] = i
	}
	return r
}

// rawHit lays out a raw engine hit for the demo schema.
func rawHit(score, sim string, stored ...string) string {
	parts := []string{score, sim}
	for range stored {
		parts = append(parts, "", "0")
	}
	for _, v := range stored {
		parts = append(parts, v, "0")
	}
	return strings.Join(parts, record.FieldSeparator)
}
