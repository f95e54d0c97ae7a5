// Package record implements the flat delimited record format shared by
// stored documents and duplicate queries.
//
// A flat record joins one value per schema position with FieldSeparator.
// A single value may carry several occurrences joined by OccurrenceSeparator.
package record

import (
	"regexp"
	"strings"
)

const (
	// FieldSeparator joins schema positions inside a flat record.
	FieldSeparator = "|"
	// FieldSubstitute replaces FieldSeparator found inside a value.
	// The substitution is not reversible.
	FieldSubstitute = "!"
	// OccurrenceSeparator joins repeated values of one field. Union groups of
	// index names use the same token.
	OccurrenceSeparator = "//@//"
	// WildcardID is the id placeholder that matches records with any id.
	WildcardID = "?"
)

var (
	occurrenceSplit = regexp.MustCompile(` *` + regexp.QuoteMeta(OccurrenceSeparator) + ` *`)
	lineSplit       = regexp.MustCompile(` *\r?\n *`)
)

// Escape replaces every FieldSeparator in v with FieldSubstitute.
func Escape(v string) string {
	return strings.ReplaceAll(v, FieldSeparator, FieldSubstitute)
}

// Encode joins fields into a flat record, escaping separators inside values.
func Encode(fields []string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteString(FieldSeparator)
		}
		b.WriteString(Escape(f))
	}
	return b.String()
}

// Decode splits a flat record into its positional fields.
// Trailing empty fields are preserved.
func Decode(rec string) []string {
	return strings.Split(rec, FieldSeparator)
}

// HasOccurrences reports whether v carries an occurrence group.
func HasOccurrences(v string) bool {
	return strings.Contains(v, OccurrenceSeparator)
}

// ExpandOccurrences splits v on OccurrenceSeparator, tolerating spaces around
// the token. A value without the token yields a single element.
func ExpandOccurrences(v string) []string {
	if !HasOccurrences(v) {
		return []string{v}
	}
	return occurrenceSplit.Split(v, -1)
}

// JoinOccurrences is the inverse of ExpandOccurrences.
func JoinOccurrences(values []string) string {
	return strings.Join(values, OccurrenceSeparator)
}

// SplitLines splits a line-oriented body into records. HTML non-breaking
// space entities are folded to plain spaces and blank bodies yield nil.
func SplitLines(body string) []string {
	body = strings.TrimSpace(strings.ReplaceAll(body, "&nbsp;", " "))
	if body == "" {
		return nil
	}
	return lineSplit.Split(body, -1)
}
