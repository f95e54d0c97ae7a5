package dedup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/record"
)

// PutJSON stores a JSON object as a document of every index named by
// selector. The database field is set to each target index and the id field
// to id. It returns the indexes written.
func (s *Service) PutJSON(ctx context.Context, selector, schemaName, id string, body []byte) ([]string, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, domain.MissingParameter(ParamDatabase)
	}
	sch, err := s.lookupSchema(schemaName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, domain.MissingParameter(ParamID)
	}
	targets, err := s.resolve([]string{selector})
	if err != nil {
		return nil, err
	}
	fields, err := jsonToFields(sch, body)
	if err != nil {
		return nil, err
	}

	idPos, _ := sch.Pos(schema.FieldID)
	dbPos, _ := sch.Pos(schema.FieldDatabase)
	fields[idPos] = id

	written := make([]string, 0, len(targets))
	for _, idx := range targets {
		fields[dbPos] = idx.Name()
		if err := idx.Insert(ctx, sch, []string{record.Encode(fields)}); err != nil {
			return nil, err
		}
		written = append(written, idx.Name())
	}
	return written, nil
}

// jsonToFields maps a flat JSON object onto schema positions. Arrays become
// occurrence groups; nested objects are rejected.
func jsonToFields(sch *schema.Schema, body []byte) ([]string, error) {
	body = bytes.ReplaceAll(body, []byte("&nbsp;"), []byte(" "))
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("parse document: %w: %w", domain.ErrInvalidDocument, err)
	}

	fields := make([]string, sch.Len())
	for k, v := range obj {
		pos, ok := sch.Pos(k)
		if !ok {
			return nil, fmt.Errorf("'%s' field is not declared by schema %s: %w", k, sch.Name(), domain.ErrUnknownField)
		}
		val, err := jsonValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields[pos] = val
	}
	return fields, nil
}

func jsonValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case []any:
		occ := make([]string, 0, len(t))
		for _, e := range t {
			if _, nested := e.([]any); nested {
				return "", fmt.Errorf("nested array: %w", domain.ErrInvalidDocument)
			}
			s, err := jsonValue(e)
			if err != nil {
				return "", err
			}
			occ = append(occ, s)
		}
		return record.JoinOccurrences(occ), nil
	}
	return "", fmt.Errorf("unsupported value %T: %w", v, domain.ErrInvalidDocument)
}

// PutRaw stores each line of body in every index named by selector, with the
// database position rewritten to the target index.
func (s *Service) PutRaw(ctx context.Context, selector, schemaName string, body []byte) error {
	if strings.TrimSpace(selector) == "" {
		return domain.MissingParameter(ParamDatabase)
	}
	sch, err := s.lookupSchema(schemaName)
	if err != nil {
		return err
	}
	targets, err := s.resolve([]string{selector})
	if err != nil {
		return err
	}
	rows, err := s.decodeRecords(sch, body)
	if err != nil {
		return err
	}

	dbPos, _ := sch.Pos(schema.FieldDatabase)
	for _, idx := range targets {
		records := make([]string, len(rows))
		for i, row := range rows {
			fields := append([]string(nil), row...)
			fields[dbPos] = idx.Name()
			records[i] = record.Encode(fields)
		}
		if err := idx.Insert(ctx, sch, records); err != nil {
			return err
		}
	}
	return nil
}

// PutDocs stores each line of body as-is in the single index called name.
func (s *Service) PutDocs(ctx context.Context, name, schemaName string, body []byte) error {
	if name == "" {
		return domain.MissingParameter(ParamDatabase)
	}
	sch, err := s.lookupSchema(schemaName)
	if err != nil {
		return err
	}
	idx, err := s.reg.Index(name)
	if err != nil {
		return err
	}
	text, err := decodeBody(sch, body)
	if err != nil {
		return err
	}
	lines := record.SplitLines(text)
	if len(lines) == 0 {
		return domain.MissingParameter("multiLinePipedDocs")
	}
	return idx.Insert(ctx, sch, lines)
}

// decodeRecords splits body into records and checks each fits sch.
func (s *Service) decodeRecords(sch *schema.Schema, body []byte) ([][]string, error) {
	text, err := decodeBody(sch, body)
	if err != nil {
		return nil, err
	}
	lines := record.SplitLines(text)
	if len(lines) == 0 {
		return nil, domain.MissingParameter("multiLinePipedDocs")
	}
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		fields := record.Decode(line)
		if len(fields) != sch.Len() {
			return nil, fmt.Errorf("invalid document: %s: %w", line, domain.ErrInvalidDocument)
		}
		rows = append(rows, fields)
	}
	return rows, nil
}

// decodeBody converts body from the schema's character encoding to UTF-8.
func decodeBody(sch *schema.Schema, body []byte) (string, error) {
	enc, err := htmlindex.Get(sch.Encoding())
	if err != nil {
		return "", fmt.Errorf("schema %s: encoding %q: %w", sch.Name(), sch.Encoding(), domain.ErrInvalidParameter)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode body as %s: %w: %w", sch.Encoding(), domain.ErrInvalidDocument, err)
	}
	return string(out), nil
}
