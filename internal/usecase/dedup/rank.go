package dedup

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/record"
)

// RankedHit is a tagged hit with its parsed sort key.
type RankedHit struct {
	Similarity float64
	Score      float64
	Index      string
	Seq        int
	Record     []string
}

// Rank orders hits by similarity desc, score desc, then arrival order, and
// keeps at most quantity of them. A hit whose similarity or score is not a
// number fails the whole call.
func Rank(hits []TaggedHit, similarityPos, scorePos, quantity int) ([]RankedHit, error) {
	ranked := make([]RankedHit, 0, len(hits))
	for seq, h := range hits {
		rec := record.Decode(h.Raw)
		sim, err := numericField(rec, similarityPos)
		if err != nil {
			return nil, fmt.Errorf("hit %d from %s: similarity: %w", seq, h.Index, err)
		}
		score, err := numericField(rec, scorePos)
		if err != nil {
			return nil, fmt.Errorf("hit %d from %s: score: %w", seq, h.Index, err)
		}
		ranked = append(ranked, RankedHit{Similarity: sim, Score: score, Index: h.Index, Seq: seq, Record: rec})
	}

	slices.SortFunc(ranked, compareHits)
	if quantity < 0 {
		quantity = 0
	}
	if len(ranked) > quantity {
		ranked = ranked[:quantity]
	}
	return ranked, nil
}

func compareHits(a, b RankedHit) int {
	if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

func numericField(rec []string, pos int) (float64, error) {
	if pos < 0 || pos >= len(rec) {
		return 0, fmt.Errorf("no field at position %d: %w", pos, domain.ErrMalformedNumericField)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[pos]), 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%q: %w", rec[pos], domain.ErrMalformedNumericField)
	}
	return v, nil
}
