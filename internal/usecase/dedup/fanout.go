package dedup

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/record"
)

// TaggedHit is a raw engine hit with the index it came from.
type TaggedHit struct {
	Index string
	Raw   string
}

// ResolveTargets splits a union-group selector into index names.
// Whitespace around names and around the separator is ignored.
func ResolveTargets(selector string) []string {
	parts := record.ExpandOccurrences(selector)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolve maps every selector to its index handles, in selector then target
// order. No handle is returned unless every name resolves.
func (s *Service) resolve(selectors []string) ([]engine.Index, error) {
	var out []engine.Index
	for _, sel := range selectors {
		for _, name := range ResolveTargets(sel) {
			idx, err := s.reg.Index(name)
			if err != nil {
				return nil, err
			}
			out = append(out, idx)
		}
	}
	return out, nil
}

// search runs expr against every target concurrently and concatenates the
// tagged hits in target order. Any failure, or the timeout expiring, discards
// every result.
func (s *Service) search(ctx context.Context, targets []engine.Index, sch *schema.Schema, expr string) ([]TaggedHit, error) {
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}

	results := make([][]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range targets {
		g.Go(func() error {
			hits, err := idx.Search(gctx, sch, expr)
			if err != nil {
				return fmt.Errorf("search %s: %w", idx.Name(), err)
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var tagged []TaggedHit
	for i, hits := range results {
		for _, h := range hits {
			tagged = append(tagged, TaggedHit{Index: targets[i].Name(), Raw: h})
		}
	}
	return tagged, nil
}
