// Package engine defines the index engine contract used by the duplicate
// query pipeline and a storage-backed implementation of it.
package engine

import (
	"context"

	"github.com/kailas-cloud/dedup/internal/domain/schema"
)

// Index is a named, long-lived handle to one physical index.
//
// Search returns raw hits encoded as flat records laid out as
//
//	score | similarity | (queryValue | fieldSimilarity) x N | (storedValue | fieldSimilarity) x N
//
// where N is the schema field count.
type Index interface {
	Name() string
	Search(ctx context.Context, sch *schema.Schema, expr string) ([]string, error)
	Insert(ctx context.Context, sch *schema.Schema, records []string) error
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	Optimize(ctx context.Context) error
	Check(ctx context.Context, sch *schema.Schema) (bool, error)
	Close() error
}

// OpenFunc opens the index registered under name at path.
type OpenFunc func(name, path string) (Index, error)

// Match is the outcome of comparing a query record with a stored record.
type Match struct {
	Similarity float64
	Score      int
	// Fields holds one similarity per schema position.
	Fields []float64
}

// Matcher is the matching algorithm behind a Handle.
type Matcher interface {
	// Grams returns the lookup terms of a record.
	Grams(sch *schema.Schema, fields []string) []string
	// Match compares query with stored; ok is false when stored is not a hit.
	Match(sch *schema.Schema, query, stored []string) (m Match, ok bool)
}

// Positions of the numeric fields in a raw hit.
const (
	ScorePos      = 0
	SimilarityPos = 1
)

// StoredFieldPos returns the position of stored field p inside a raw hit of
// length n.
func StoredFieldPos(n, p int) int {
	return (n-2)/2 + 2 + 2*p
}
