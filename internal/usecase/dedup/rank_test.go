package dedup

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/engine"
)

func TestRank_SimilarityThenScoreThenArrival(t *testing.T) {
	hits := []TaggedHit{
		{Index: "a", Raw: rawHit("8", "0.95", "a", "1", "x")},
		{Index: "a", Raw: rawHit("10", "0.95", "a", "2", "x")},
		{Index: "b", Raw: rawHit("20", "0.5", "b", "3", "x")},
		{Index: "b", Raw: rawHit("10", "0.95", "b", "4", "x")},
		{Index: "b", Raw: rawHit("1", "1", "b", "5", "x")},
	}

	ranked, err := Rank(hits, engine.SimilarityPos, engine.ScorePos, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var order []int
	for _, h := range ranked {
		order = append(order, h.Seq)
	}
	if want := []int{4, 1, 3, 0, 2}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestRank_NumericNotLexicalComparison(t *testing.T) {
	hits := []TaggedHit{
		{Index: "a", Raw: rawHit("9", "0.9", "a", "1", "x")},
		{Index: "a", Raw: rawHit("10", "0.9", "a", "2", "x")},
	}
	ranked, _ := Rank(hits, engine.SimilarityPos, engine.ScorePos, 10)
	if ranked[0].Score != 10 {
		t.Errorf("score 10 should precede 9, got %v first", ranked[0].Score)
	}
}

func TestRank_Quantity(t *testing.T) {
	var hits []TaggedHit
	for range 15 {
		hits = append(hits, TaggedHit{Index: "a", Raw: rawHit("1", "0.5", "a", "1", "x")})
	}
	for _, q := range []int{0, 3, 15, 20} {
		ranked, err := Rank(hits, engine.SimilarityPos, engine.ScorePos, q)
		if err != nil {
			t.Fatal(err)
		}
		if len(ranked) > q || len(ranked) < 0 {
			t.Errorf("quantity %d: got %d hits", q, len(ranked))
		}
	}
	if ranked, _ := Rank(hits, engine.SimilarityPos, engine.ScorePos, -1); len(ranked) != 0 {
		t.Errorf("negative quantity returned %d hits", len(ranked))
	}
}

func TestRank_DeterministicAndIdempotent(t *testing.T) {
	hits := []TaggedHit{
		{Index: "a", Raw: rawHit("1", "0.7", "a", "1", "x")},
		{Index: "b", Raw: rawHit("1", "0.7", "b", "2", "y")},
		{Index: "a", Raw: rawHit("2", "0.7", "a", "3", "z")},
	}
	first, _ := Rank(hits, engine.SimilarityPos, engine.ScorePos, 10)
	for range 5 {
		again, _ := Rank(hits, engine.SimilarityPos, engine.ScorePos, 10)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("Rank is not deterministic")
		}
	}
}

func TestRank_MalformedNumericField(t *testing.T) {
	tests := map[string]string{
		"not a number": rawHit("1", "high", "a", "1", "x"),
		"NaN":          rawHit("NaN", "0.5", "a", "1", "x"),
		"too short":    "1",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Rank([]TaggedHit{{Index: "a", Raw: raw}}, engine.SimilarityPos, engine.ScorePos, 10)
			if !errors.Is(err, domain.ErrMalformedNumericField) {
				t.Errorf("expected ErrMalformedNumericField, got %v", err)
			}
		})
	}
}

func TestRank_PaddedNumericFields(t *testing.T) {
	hits := []TaggedHit{
		{Index: "a", Raw: rawHit(" 8 ", "0.5", "a", "1", "x")},
		{Index: "b", Raw: rawHit("3", " 0.95\t", "b", "2", "y")},
	}
	ranked, err := Rank(hits, engine.SimilarityPos, engine.ScorePos, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranked[0].Similarity != 0.95 || ranked[0].Score != 3 {
		t.Errorf("first = %v/%v, want 0.95/3", ranked[0].Similarity, ranked[0].Score)
	}
	if ranked[1].Score != 8 {
		t.Errorf("second score = %v, want 8", ranked[1].Score)
	}
}
