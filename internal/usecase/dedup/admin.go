package dedup

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/logger"
)

// Delete removes the document id from every index named by selectors.
// Every index is resolved before the first deletion.
func (s *Service) Delete(ctx context.Context, selectors []string, id string) error {
	selectors = nonBlank(selectors)
	if len(selectors) == 0 {
		return domain.MissingParameter(ParamDatabase)
	}
	if id == "" {
		return domain.MissingParameter(ParamID)
	}
	targets, err := s.resolve(selectors)
	if err != nil {
		return err
	}
	for _, idx := range targets {
		if err := idx.Delete(ctx, id); err != nil {
			return err
		}
	}
	logger.FromContextOr(ctx, s.logger).Info("Document deleted",
		zap.String("id", id),
		zap.Strings("database", selectors),
	)
	return nil
}

// Reset removes every document of the index called name.
func (s *Service) Reset(ctx context.Context, name string) error {
	idx, err := s.lookupIndex(name)
	if err != nil {
		return err
	}
	if err := idx.Reset(ctx); err != nil {
		return err
	}
	logger.FromContextOr(ctx, s.logger).Info("Index reset", zap.String("index", name))
	return nil
}

// Optimize compacts the index called name.
func (s *Service) Optimize(ctx context.Context, name string) error {
	idx, err := s.lookupIndex(name)
	if err != nil {
		return err
	}
	return idx.Optimize(ctx)
}

// Test runs the integrity self-test of the index called name against a schema.
func (s *Service) Test(ctx context.Context, name, schemaName string) (bool, error) {
	idx, err := s.lookupIndex(name)
	if err != nil {
		return false, err
	}
	sch, err := s.lookupSchema(schemaName)
	if err != nil {
		return false, err
	}
	return idx.Check(ctx, sch)
}

func (s *Service) lookupIndex(name string) (engine.Index, error) {
	if strings.TrimSpace(name) == "" {
		return nil, domain.MissingParameter(ParamDatabase)
	}
	return s.reg.Index(name)
}
