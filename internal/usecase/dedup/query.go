package dedup

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/record"
)

// Reserved request parameters. They never map to schema fields.
const (
	ParamToken    = "token"
	ParamQuantity = "quantity"
	ParamSchema   = "schema"
)

// Parameters that are also schema fields.
const (
	ParamDatabase = schema.FieldDatabase
	ParamID       = schema.FieldID
)

func isReserved(name string) bool {
	return name == ParamToken || name == ParamQuantity || name == ParamSchema
}

// BuildExpression turns request parameters into a flat query record for sch.
// The indexed field is required. Repeated values of a field become an
// occurrence group and fields without a parameter stay blank. An absent id
// becomes the wildcard.
func BuildExpression(sch *schema.Schema, params url.Values) (string, error) {
	if _, ok := params[sch.IndexedField()]; !ok {
		return "", domain.MissingParameter(sch.IndexedField())
	}

	fields := make([]string, sch.Len())
	if _, ok := params[ParamID]; !ok {
		idPos, _ := sch.Pos(schema.FieldID)
		fields[idPos] = record.WildcardID
	}
	for name, values := range params {
		if isReserved(name) {
			continue
		}
		pos, ok := sch.Pos(name)
		if !ok {
			return "", fmt.Errorf("'%s' parameter is not declared by schema %s: %w",
				name, sch.Name(), domain.ErrUnknownField)
		}
		fields[pos] = record.JoinOccurrences(values)
	}
	return record.Encode(fields), nil
}

// withDefaultID returns a copy of params carrying the wildcard id when none was given.
func withDefaultID(params url.Values) url.Values {
	out := make(url.Values, len(params)+1)
	for k, v := range params {
		out[k] = append([]string(nil), v...)
	}
	if _, ok := out[ParamID]; !ok {
		out.Set(ParamID, record.WildcardID)
	}
	return out
}

// ParseQuantity reads the quantity parameter. Absent or non-positive values
// yield def; anything that is not an integer is rejected.
func ParseQuantity(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	q, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("'%s' parameter is not an integer: %s: %w", ParamQuantity, raw, domain.ErrInvalidParameter)
	}
	if q <= 0 {
		return def, nil
	}
	return q, nil
}
