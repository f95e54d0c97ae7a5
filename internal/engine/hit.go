package engine

import (
	"strconv"

	"github.com/kailas-cloud/dedup/internal/record"
)

// formatHit lays out a raw hit from the query record, the stored record and
// their match.
func formatHit(query, stored []string, m Match) string {
	n := len(query)
	parts := make([]string, 0, 2+4*n)
	parts = append(parts, strconv.Itoa(m.Score), formatSimilarity(m.Similarity))
	for p, v := range query {
		parts = append(parts, v, formatSimilarity(fieldSim(m, p)))
	}
	for p, v := range stored {
		parts = append(parts, v, formatSimilarity(fieldSim(m, p)))
	}
	return record.Encode(parts)
}

func fieldSim(m Match, p int) float64 {
	if p < len(m.Fields) {
		return m.Fields[p]
	}
	return 0
}

func formatSimilarity(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
