package dedup

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/record"
)

func TestToStructured_JSONShape(t *testing.T) {
	sch := demoSchema(t)
	hit := rawHit("3", "0.8750", "idxA", "7", `The "best" cure//@//Cure`)
	ranked, err := Rank([]TaggedHit{{Index: "idxA", Raw: hit}}, 1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	params := url.Values{
		"schema":   {"demo"},
		"database": {"idxA//@//idxB"},
		"title":    {"cure", "cures"},
		"token":    {"secret"},
	}

	b, err := json.Marshal(ToStructured(sch, params, ranked))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"params":{"database":["idxA","idxB"],"schema":"demo","title":["cure","cures"]},` +
		`"total":1,"result":[{"score":"3","similarity":"0.8750","database":"idxA","id":"7",` +
		`"title":["The 'best' cure","Cure"]}]}`
	if string(b) != want {
		t.Errorf("json mismatch\n got: %s\nwant: %s", b, want)
	}
}

func TestToStructured_Empty(t *testing.T) {
	b, err := json.Marshal(ToStructured(demoSchema(t), url.Values{"schema": {"demo"}}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"params":{"schema":"demo"},"total":0,"result":[]}` {
		t.Errorf("got %s", b)
	}
}

func TestHitObject_ShortRecordBlankFields(t *testing.T) {
	h := RankedHit{Record: record.Decode("1|0.5")}
	b, _ := json.Marshal(hitObject(demoSchema(t), h))
	if string(b) != `{"score":"1","similarity":"0.5","database":"","id":"","title":""}` {
		t.Errorf("got %s", b)
	}
}

func TestSchemaJSON(t *testing.T) {
	svc := New(newFakeRegistry(t), Config{}, nil)
	b, err := svc.SchemaJSON("demo")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"demo","indexedField":"title","encoding":"UTF-8","fields":[` +
		`{"name":"database","pos":0,"match":"ignore"},` +
		`{"name":"id","pos":1,"match":"ignore"},` +
		`{"name":"title","pos":2,"match":"ngram"}]}`
	if string(b) != want {
		t.Errorf("got %s", b)
	}

	if _, err := svc.SchemaJSON("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSchemaXML(t *testing.T) {
	svc := New(newFakeRegistry(t), Config{}, nil)
	b, err := svc.SchemaXML("demo")
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, part := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<schema><name>demo</name><indexedField>title</indexedField>`,
		`<fields><field><name>database</name><pos>0</pos><match>ignore</match></field>`,
		`<field><name>title</name><pos>2</pos><match>ngram</match></field></fields></schema>`,
	} {
		if !strings.Contains(s, part) {
			t.Errorf("xml missing %q in %s", part, s)
		}
	}
}
