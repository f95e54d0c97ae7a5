package schema

import (
	"fmt"
	"sort"
)

// Names of the fields every schema must declare.
const (
	FieldID       = "id"
	FieldDatabase = "database"
)

// Match selects how the reference engine compares a field.
type Match string

const (
	// MatchIgnore excludes the field from scoring.
	MatchIgnore Match = "ignore"
	// MatchExact scores one point when query and stored values agree.
	MatchExact Match = "exact"
	// MatchNGram compares the field by trigram similarity (indexed field only).
	MatchNGram Match = "ngram"
)

// IsValid checks if the match mode is supported.
func (m Match) IsValid() bool {
	return m == MatchIgnore || m == MatchExact || m == MatchNGram
}

// Field is one positional field of a schema.
type Field struct {
	Name  string
	Pos   int
	Match Match
}

// Schema is the record schema descriptor (immutable value object).
type Schema struct {
	name         string
	indexedField string
	encoding     string
	fields       []Field // ordered by position
	positions    map[string]int
}

// New validates and creates a Schema.
// Positions must be unique and dense (0..n-1), names unique, and the schema
// must declare the indexed field plus the id and database fields.
func New(name, indexedField, encoding string, fields []Field) (Schema, error) {
	if name == "" {
		return Schema{}, fmt.Errorf("schema name is required")
	}
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("schema %s: at least one field is required", name)
	}

	ordered := make([]Field, len(fields))
	copy(ordered, fields)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Pos < ordered[j].Pos })

	positions := make(map[string]int, len(ordered))
	for i, f := range ordered {
		if f.Name == "" {
			return Schema{}, fmt.Errorf("schema %s: field at position %d has no name", name, f.Pos)
		}
		if f.Pos != i {
			return Schema{}, fmt.Errorf("schema %s: field positions must be 0..%d without gaps, got %d for %q",
				name, len(ordered)-1, f.Pos, f.Name)
		}
		if _, dup := positions[f.Name]; dup {
			return Schema{}, fmt.Errorf("schema %s: duplicate field name: %s", name, f.Name)
		}
		if f.Match == "" {
			ordered[i].Match = MatchIgnore
		} else if !f.Match.IsValid() {
			return Schema{}, fmt.Errorf("schema %s: invalid match %q for field %q", name, f.Match, f.Name)
		}
		positions[f.Name] = f.Pos
	}

	for _, required := range []string{indexedField, FieldID, FieldDatabase} {
		if required == "" {
			return Schema{}, fmt.Errorf("schema %s: indexed field is required", name)
		}
		if _, ok := positions[required]; !ok {
			return Schema{}, fmt.Errorf("schema %s: field %q is not declared", name, required)
		}
	}
	ordered[positions[indexedField]].Match = MatchNGram

	return Schema{
		name:         name,
		indexedField: indexedField,
		encoding:     encoding,
		fields:       ordered,
		positions:    positions,
	}, nil
}

// Name returns the schema name.
func (s Schema) Name() string { return s.name }

// IndexedField returns the name of the primary match field.
func (s Schema) IndexedField() string { return s.indexedField }

// IndexedPos returns the position of the primary match field.
func (s Schema) IndexedPos() int { return s.positions[s.indexedField] }

// Encoding returns the declared character encoding tag.
func (s Schema) Encoding() string { return s.encoding }

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields ordered by position.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Pos returns the position of a field by name.
func (s Schema) Pos(name string) (int, bool) {
	p, ok := s.positions[name]
	return p, ok
}

// FieldAt returns the field at position pos.
func (s Schema) FieldAt(pos int) Field {
	return s.fields[pos]
}
