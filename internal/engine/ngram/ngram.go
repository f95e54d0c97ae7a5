// Package ngram is the trigram matcher used by engine handles.
//
// The indexed field is compared by the Dice coefficient of padded trigram
// sets. Fields declared with exact matching add one point of score each when
// the query value equals a stored occurrence after normalization.
package ngram

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/record"
)

// Compile-time check: Matcher implements engine.Matcher.
var _ engine.Matcher = Matcher{}

// Matcher scores records by trigram similarity of the indexed field.
type Matcher struct {
	// MinSimilarity drops hits below the threshold.
	MinSimilarity float64
}

// New creates a Matcher with the given similarity threshold.
func New(minSimilarity float64) Matcher {
	return Matcher{MinSimilarity: minSimilarity}
}

// Normalize lower-cases s, keeps letters and digits, folds everything else to
// single spaces and trims the result.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Trigrams returns the padded trigram set of s after normalization.
func Trigrams(s string) map[string]struct{} {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	runes := []rune("  " + n + " ")
	set := make(map[string]struct{}, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// Dice returns the Dice coefficient of two gram sets.
func Dice(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

// Grams returns the sorted trigram union of every occurrence of the indexed field.
func (m Matcher) Grams(sch *schema.Schema, fields []string) []string {
	set := make(map[string]struct{})
	for _, occ := range record.ExpandOccurrences(fields[sch.IndexedPos()]) {
		for g := range Trigrams(occ) {
			set[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Match compares query with stored.
func (m Matcher) Match(sch *schema.Schema, query, stored []string) (engine.Match, bool) {
	pos := sch.IndexedPos()
	sim := bestDice(query[pos], stored[pos])
	if sim <= 0 || sim < m.MinSimilarity {
		return engine.Match{}, false
	}

	out := engine.Match{Similarity: sim, Fields: make([]float64, sch.Len())}
	out.Fields[pos] = sim
	for _, f := range sch.Fields() {
		if f.Match != schema.MatchExact {
			continue
		}
		if exactMatch(query[f.Pos], stored[f.Pos]) {
			out.Score++
			out.Fields[f.Pos] = 1
		}
	}
	return out, true
}

// bestDice is the highest similarity over every pair of occurrences.
func bestDice(query, stored string) float64 {
	var best float64
	storedGrams := make([]map[string]struct{}, 0, 1)
	for _, s := range record.ExpandOccurrences(stored) {
		storedGrams = append(storedGrams, Trigrams(s))
	}
	for _, q := range record.ExpandOccurrences(query) {
		qg := Trigrams(q)
		for _, sg := range storedGrams {
			if d := Dice(qg, sg); d > best {
				best = d
			}
		}
	}
	return best
}

func exactMatch(query, stored string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}
	for _, q := range record.ExpandOccurrences(query) {
		nq := Normalize(q)
		if nq == "" {
			continue
		}
		for _, s := range record.ExpandOccurrences(stored) {
			if Normalize(s) == nq {
				return true
			}
		}
	}
	return false
}
