package dedup

import (
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
)

// Registry resolves schema and index names.
type Registry interface {
	Schema(name string) (*schema.Schema, error)
	Index(name string) (engine.Index, error)
	SchemaNames() []string
	IndexNames() []string
}
