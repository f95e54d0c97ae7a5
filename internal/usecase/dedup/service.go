// Package dedup implements the duplicate query pipeline: query building,
// multi-index fan-out, ranking and response assembly, plus document ingestion
// and index administration on top of the same registry.
package dedup

import (
	"time"

	"go.uber.org/zap"
)

// DefaultQuantity is the number of hits returned when a request does not ask for a positive amount.
const DefaultQuantity = 10

// Config tunes the pipeline.
type Config struct {
	// DefaultQuantity replaces an absent or non-positive quantity.
	DefaultQuantity int
	// SearchTimeout bounds the fan-out stage when positive.
	SearchTimeout time.Duration
}

// Service runs duplicate queries and index operations.
type Service struct {
	reg    Registry
	cfg    Config
	logger *zap.Logger
}

// New creates a Service. logger may be nil.
func New(reg Registry, cfg Config, logger *zap.Logger) *Service {
	if cfg.DefaultQuantity <= 0 {
		cfg.DefaultQuantity = DefaultQuantity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reg: reg, cfg: cfg, logger: logger}
}

// Schemas returns the registered schema names.
func (s *Service) Schemas() []string { return s.reg.SchemaNames() }

// Indexes returns the registered index names.
func (s *Service) Indexes() []string { return s.reg.IndexNames() }
