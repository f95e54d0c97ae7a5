package db

import "context"

// Document is one stored flat record together with its trigram postings.
type Document struct {
	ID     string
	Record string
	Grams  []string
}

// Backend is the physical document store behind one index.
//
//nolint:interfacebloat // facade -- the engine handle is the only consumer
type Backend interface {
	Reader
	Pinger
	NewBatch() Batch
	Close() error
}

// Pinger checks backend availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reader provides the read view used by searches and integrity checks.
type Reader interface {
	// Candidates returns up to limit ids of documents sharing at least one gram,
	// ordered by the number of shared grams (most first).
	Candidates(ctx context.Context, grams []string, limit int) ([]string, error)
	// Fetch returns the documents for ids. Unknown ids are skipped.
	Fetch(ctx context.Context, ids []string) ([]Document, error)
	// Scan calls fn for every stored document until fn returns an error.
	Scan(ctx context.Context, fn func(Document) error) error
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Batch buffers mutations until Commit. Operations apply in call order.
// A Batch is not safe for concurrent use.
type Batch interface {
	Put(doc Document)
	Delete(id string)
	DeleteAll()
	// Len reports the number of buffered operations.
	Len() int
	Commit(ctx context.Context) error
}

// Op kinds recorded by Batch implementations.
type Op int

const (
	// OpPut stores or replaces a document.
	OpPut Op = iota
	// OpDelete removes a document by id.
	OpDelete
	// OpDeleteAll removes every document.
	OpDeleteAll
)

// Mutation is one buffered batch operation.
type Mutation struct {
	Op  Op
	Doc Document // ID only for OpDelete
}

// Ops is a reusable in-order operation buffer for Batch implementations.
type Ops []Mutation

// Put appends a put operation.
func (o *Ops) Put(doc Document) { *o = append(*o, Mutation{Op: OpPut, Doc: doc}) }

// Delete appends a delete operation.
func (o *Ops) Delete(id string) { *o = append(*o, Mutation{Op: OpDelete, Doc: Document{ID: id}}) }

// DeleteAll appends a delete-all operation.
func (o *Ops) DeleteAll() { *o = append(*o, Mutation{Op: OpDeleteAll}) }

// Len reports the number of buffered operations.
func (o *Ops) Len() int { return len(*o) }
