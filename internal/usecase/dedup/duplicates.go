package dedup

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/logger"
	"github.com/kailas-cloud/dedup/internal/metrics"
	"github.com/kailas-cloud/dedup/internal/record"
)

// Duplicates answers a duplicate query expressed as request parameters.
// Every parameter is validated and every index resolved before the first search.
func (s *Service) Duplicates(ctx context.Context, params url.Values) (Response, error) {
	selectors := nonBlank(params[ParamDatabase])
	if len(selectors) == 0 {
		return Response{}, domain.MissingParameter(ParamDatabase)
	}
	sch, err := s.lookupSchema(params.Get(ParamSchema))
	if err != nil {
		return Response{}, err
	}

	params = withDefaultID(params)
	expr, err := BuildExpression(sch, params)
	if err != nil {
		return Response{}, err
	}
	quantity, err := ParseQuantity(params.Get(ParamQuantity), s.cfg.DefaultQuantity)
	if err != nil {
		return Response{}, err
	}
	targets, err := s.resolve(selectors)
	if err != nil {
		return Response{}, err
	}

	hits, err := s.search(ctx, targets, sch, expr)
	if err != nil {
		return Response{}, err
	}
	ranked, err := Rank(hits, engine.SimilarityPos, engine.ScorePos, quantity)
	if err != nil {
		return Response{}, err
	}
	metrics.RankedHits.Observe(float64(len(ranked)))

	logger.FromContextOr(ctx, s.logger).Debug("Duplicate query",
		zap.String("schema", sch.Name()),
		zap.Strings("database", selectors),
		zap.Int("targets", len(targets)),
		zap.Int("hits", len(hits)),
		zap.Int("returned", len(ranked)),
	)
	return ToStructured(sch, params, ranked), nil
}

// RawDuplicates searches every line of body as a pre-encoded query record and
// returns the raw hits of all lines and targets in order.
func (s *Service) RawDuplicates(ctx context.Context, selector, schemaName string, body []byte) ([]string, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, domain.MissingParameter(ParamDatabase)
	}
	sch, err := s.lookupSchema(schemaName)
	if err != nil {
		return nil, err
	}
	targets, err := s.resolve([]string{selector})
	if err != nil {
		return nil, err
	}
	text, err := decodeBody(sch, body)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range record.SplitLines(text) {
		hits, err := s.search(ctx, targets, sch, line)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			out = append(out, h.Raw)
		}
	}
	return out, nil
}

func (s *Service) lookupSchema(name string) (*schema.Schema, error) {
	if name == "" {
		return nil, domain.MissingParameter(ParamSchema)
	}
	return s.reg.Schema(name)
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
