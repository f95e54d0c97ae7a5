package schema

import (
	"strings"
	"testing"
)

func demoFields() []Field {
	return []Field{
		{Name: "title", Pos: 2},
		{Name: "database", Pos: 0},
		{Name: "id", Pos: 1},
		{Name: "year", Pos: 3, Match: MatchExact},
	}
}

func TestNew_Valid(t *testing.T) {
	s, err := New("demo", "title", "utf-8", demoFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "demo" {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
	if s.IndexedPos() != 2 {
		t.Errorf("IndexedPos() = %d, want 2", s.IndexedPos())
	}
	for i, f := range s.Fields() {
		if f.Pos != i {
			t.Errorf("Fields()[%d].Pos = %d, fields must be ordered by position", i, f.Pos)
		}
	}
	if s.FieldAt(2).Match != MatchNGram {
		t.Errorf("indexed field match = %q, want %q", s.FieldAt(2).Match, MatchNGram)
	}
	if s.FieldAt(0).Match != MatchIgnore {
		t.Errorf("default match = %q, want %q", s.FieldAt(0).Match, MatchIgnore)
	}
	if p, ok := s.Pos("year"); !ok || p != 3 {
		t.Errorf("Pos(year) = %d, %v", p, ok)
	}
}

func TestNew_FieldsCopied(t *testing.T) {
	s, err := New("demo", "title", "utf-8", demoFields())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := s.Fields()
	f[0].Name = "mutated"
	if s.FieldAt(0).Name != "database" {
		t.Error("Fields() must return a copy")
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		indexed string
		fields  []Field
		wantErr string
	}{
		{"gap", "title", []Field{{Name: "database", Pos: 0}, {Name: "id", Pos: 1}, {Name: "title", Pos: 3}}, "without gaps"},
		{"duplicate", "title", []Field{{Name: "database", Pos: 0}, {Name: "id", Pos: 1}, {Name: "id", Pos: 2}}, "duplicate"},
		{"missing id", "title", []Field{{Name: "database", Pos: 0}, {Name: "title", Pos: 1}}, `"id"`},
		{"missing indexed", "abstract", demoFields(), `"abstract"`},
		{"bad match", "title", []Field{{Name: "database", Pos: 0}, {Name: "id", Pos: 1}, {Name: "title", Pos: 2, Match: "fuzzy"}}, "invalid match"},
		{"empty", "title", nil, "at least one field"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("demo", tc.indexed, "utf-8", tc.fields)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}
