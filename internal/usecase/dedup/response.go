package dedup

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"net/url"
	"sort"
	"strings"

	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/record"
)

// Value is one echoed parameter or hit field. Multi renders it as an array.
type Value struct {
	Values []string
	Multi  bool
}

// MarshalJSON renders a string or an array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Multi {
		return json.Marshal(v.Values)
	}
	if len(v.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(v.Values[0])
}

// NamedValue pairs a name with its value.
type NamedValue struct {
	Name  string
	Value Value
}

// Object is a JSON object that keeps its key order.
type Object []NamedValue

// MarshalJSON renders the members in order.
func (o Object) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(m.Name)
		if err != nil {
			return nil, err
		}
		v, err := m.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Response is the structured duplicate query result.
type Response struct {
	Params Object   `json:"params"`
	Total  int      `json:"total"`
	Result []Object `json:"result"`
}

// ToStructured converts ranked hits into a Response. Each entry starts with
// score and similarity, followed by the stored fields in position order.
func ToStructured(sch *schema.Schema, params url.Values, ranked []RankedHit) Response {
	resp := Response{
		Params: echoParams(params),
		Total:  len(ranked),
		Result: make([]Object, 0, len(ranked)),
	}
	for _, h := range ranked {
		resp.Result = append(resp.Result, hitObject(sch, h))
	}
	return resp
}

func echoParams(params url.Values) Object {
	names := make([]string, 0, len(params))
	for name := range params {
		if name != ParamToken {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make(Object, 0, len(names))
	for _, name := range names {
		values := params[name]
		var v Value
		switch {
		case len(values) > 1:
			v = Value{Values: values, Multi: true}
		case len(values) == 1 && record.HasOccurrences(values[0]):
			v = Value{Values: record.ExpandOccurrences(values[0]), Multi: true}
		default:
			v = Value{Values: values}
		}
		out = append(out, NamedValue{Name: name, Value: v})
	}
	return out
}

func hitObject(sch *schema.Schema, h RankedHit) Object {
	rec := h.Record
	out := make(Object, 0, sch.Len()+2)
	out = append(out,
		NamedValue{Name: "score", Value: Value{Values: []string{rec[engine.ScorePos]}}},
		NamedValue{Name: "similarity", Value: Value{Values: []string{rec[engine.SimilarityPos]}}},
	)
	for _, f := range sch.Fields() {
		var content string
		if p := engine.StoredFieldPos(len(rec), f.Pos); p < len(rec) {
			content = rec[p]
		}
		v := Value{Values: []string{sanitize(content)}}
		if record.HasOccurrences(content) {
			occ := record.ExpandOccurrences(content)
			for i := range occ {
				occ[i] = sanitize(occ[i])
			}
			v = Value{Values: occ, Multi: true}
		}
		out = append(out, NamedValue{Name: f.Name, Value: v})
	}
	return out
}

func sanitize(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}

// SchemaDoc is the introspection view of a schema.
type SchemaDoc struct {
	XMLName      xml.Name      `json:"-" xml:"schema"`
	Name         string        `json:"name" xml:"name"`
	IndexedField string        `json:"indexedField" xml:"indexedField"`
	Encoding     string        `json:"encoding" xml:"encoding"`
	Fields       []SchemaField `json:"fields" xml:"fields>field"`
}

// SchemaField is one field of a SchemaDoc.
type SchemaField struct {
	Name  string `json:"name" xml:"name"`
	Pos   int    `json:"pos" xml:"pos"`
	Match string `json:"match" xml:"match"`
}

// Schema returns the introspection view of the schema called name.
func (s *Service) Schema(name string) (SchemaDoc, error) {
	sch, err := s.reg.Schema(name)
	if err != nil {
		return SchemaDoc{}, err
	}
	doc := SchemaDoc{Name: sch.Name(), IndexedField: sch.IndexedField(), Encoding: sch.Encoding()}
	for _, f := range sch.Fields() {
		doc.Fields = append(doc.Fields, SchemaField{Name: f.Name, Pos: f.Pos, Match: string(f.Match)})
	}
	return doc, nil
}

// SchemaJSON renders the schema declaration as JSON.
func (s *Service) SchemaJSON(name string) ([]byte, error) {
	doc, err := s.Schema(name)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// SchemaXML renders the schema declaration as XML.
func (s *Service) SchemaXML(name string) ([]byte, error) {
	doc, err := s.Schema(name)
	if err != nil {
		return nil, err
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
