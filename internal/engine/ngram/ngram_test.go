package ngram

import (
	"context"
	"math"
	"testing"

	"github.com/kailas-cloud/dedup/internal/db/memory"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/record"
)

func demoSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("lilacs_Sas", "titulo_artigo", "ISO-8859-1", []schema.Field{
		{Name: "database", Pos: 0},
		{Name: "id", Pos: 1},
		{Name: "titulo_artigo", Pos: 2},
		{Name: "ano_publicacao", Pos: 3, Match: schema.MatchExact},
		{Name: "volume_fasciculo", Pos: 4, Match: schema.MatchExact},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &s
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Cancer Treatment", "cancer treatment"},
		{"  Câncer,  de   mama! ", "câncer de mama"},
		{"a--b__c", "a b c"},
		{"!!!", ""},
		{"2021/v.3", "2021 v 3"},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTrigrams(t *testing.T) {
	g := Trigrams("Ab")
	for _, want := range []string{"  a", " ab", "ab "} {
		if _, ok := g[want]; !ok {
			t.Errorf("missing trigram %q in %v", want, g)
		}
	}
	if len(g) != 3 {
		t.Errorf("expected 3 trigrams, got %d", len(g))
	}
	if Trigrams("  ") != nil {
		t.Error("blank input should have no trigrams")
	}
}

func TestDice(t *testing.T) {
	a := Trigrams("cancer")
	if d := Dice(a, a); d != 1 {
		t.Errorf("Dice(a, a) = %f", d)
	}
	if d := Dice(a, Trigrams("zzzz")); d != 0 {
		t.Errorf("Dice of disjoint sets = %f", d)
	}
	if d := Dice(a, nil); d != 0 {
		t.Errorf("Dice with empty set = %f", d)
	}
	d := Dice(a, Trigrams("cancers"))
	if d <= 0.5 || d >= 1 {
		t.Errorf("Dice(cancer, cancers) = %f", d)
	}
}

func TestMatch_BestOccurrenceAndExactScore(t *testing.T) {
	sch := demoSchema(t)
	m := New(0.3)

	query := []string{"", "?", "Breast cancer", "2020", "v.3"}
	stored := []string{"lilacs", "7", "Heart attack//@//breast cancer", "2020", "v 4"}

	got, ok := m.Match(sch, query, stored)
	if !ok {
		t.Fatal("expected a hit")
	}
	if math.Abs(got.Similarity-1) > 1e-9 {
		t.Errorf("Similarity = %f, want 1 (best occurrence)", got.Similarity)
	}
	if got.Score != 1 {
		t.Errorf("Score = %d, want 1 (year only)", got.Score)
	}
	if got.Fields[3] != 1 || got.Fields[4] != 0 || got.Fields[2] != got.Similarity {
		t.Errorf("Fields = %v", got.Fields)
	}
}

func TestMatch_Threshold(t *testing.T) {
	sch := demoSchema(t)
	query := []string{"", "?", "cancer", "", ""}
	stored := []string{"lilacs", "1", "cancer registry of brazil", "", ""}

	if _, ok := New(0.9).Match(sch, query, stored); ok {
		t.Error("hit below threshold should be dropped")
	}
	if _, ok := New(0).Match(sch, query, stored); !ok {
		t.Error("hit should pass a zero threshold")
	}
	if _, ok := New(0).Match(sch, query, []string{"lilacs", "1", "xyz", "", ""}); ok {
		t.Error("zero similarity is never a hit")
	}
}

func TestGrams_UnionOfOccurrences(t *testing.T) {
	sch := demoSchema(t)
	grams := New(0).Grams(sch, []string{"", "", "ab//@//ab", "", ""})
	if len(grams) != 3 {
		t.Errorf("Grams = %v, want 3 unique trigrams", grams)
	}
}

func TestHandleWithMatcher_EndToEnd(t *testing.T) {
	sch := demoSchema(t)
	h, err := engine.NewHandle("lilacs", memory.New(), New(0.2), engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	records := []string{
		record.Encode([]string{"lilacs", "1", "Tratamento do cancer de mama", "2019", "v1"}),
		record.Encode([]string{"lilacs", "2", "Tratamento do cancer", "2020", "v1"}),
		record.Encode([]string{"lilacs", "3", "Epidemiologia da dengue", "2020", "v2"}),
	}
	if err := h.Insert(ctx, sch, records); err != nil {
		t.Fatal(err)
	}

	hits, err := h.Search(ctx, sch, record.Encode([]string{"", "?", "tratamento do cancer", "2020", ""}))
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %v", len(hits), hits)
	}
	best := record.Decode(hits[0])
	if id := best[engine.StoredFieldPos(len(best), 1)]; id != "2" {
		t.Errorf("best hit id = %s, want 2", id)
	}
	if best[engine.ScorePos] != "1" {
		t.Errorf("best hit score = %s, want 1", best[engine.ScorePos])
	}

	if ok, err := h.Check(ctx, sch); err != nil || !ok {
		t.Errorf("Check = %v, %v", ok, err)
	}
}
