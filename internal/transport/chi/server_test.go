package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/db/memory"
	"github.com/kailas-cloud/dedup/internal/domain"
	"github.com/kailas-cloud/dedup/internal/domain/schema"
	"github.com/kailas-cloud/dedup/internal/engine"
	"github.com/kailas-cloud/dedup/internal/engine/ngram"
	dedupuc "github.com/kailas-cloud/dedup/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/dedup/internal/usecase/health"
)

// --- Test registry ---

type testRegistry struct {
	schemas map[string]*schema.Schema
	indexes map[string]engine.Index
}

func (r *testRegistry) Schema(name string) (*schema.Schema, error) {
	if s, ok := r.schemas[name]; ok {
		return s, nil
	}
	return nil, domain.NewSchemaNotFound(name)
}

func (r *testRegistry) Index(name string) (engine.Index, error) {
	if i, ok := r.indexes[name]; ok {
		return i, nil
	}
	return nil, domain.NewIndexNotFound(name)
}

func (r *testRegistry) SchemaNames() []string { return keys(r.schemas) }
func (r *testRegistry) IndexNames() []string  { return keys(r.indexes) }

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// newTestRouter wires two in-memory trigram indexes behind the full middleware chain.
func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	sch, err := schema.New("demo", "title", "UTF-8", []schema.Field{
		{Name: "database", Pos: 0},
		{Name: "id", Pos: 1},
		{Name: "title", Pos: 2},
		{Name: "year", Pos: 3, Match: schema.MatchExact},
	})
	if err != nil {
		t.Fatal(err)
	}

	reg := &testRegistry{schemas: map[string]*schema.Schema{"demo": &sch}, indexes: map[string]engine.Index{}}
	pingers := map[string]healthuc.Pinger{}
	for _, name := range []string{"idxA", "idxB"} {
		h, err := engine.NewHandle(name, memory.New(), ngram.New(0.3), engine.Options{})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = h.Close() })
		reg.indexes[name] = h
		pingers["index:"+name] = h
	}

	svc := dedupuc.New(reg, dedupuc.Config{}, zap.NewNop())
	server := NewServer(svc, healthuc.New(pingers), 1<<10, zap.NewNop())
	if cfg.BasePath == "" {
		cfg.BasePath = "/services"
	}
	return NewRouter(server, cfg, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["ERROR"]
}

// --- Tests ---

func TestPutThenDuplicates(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "POST", "/services/put/idxA/demo/1", `{"title":"Cancer treatment","year":"2001"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put: %d %s", rr.Code, rr.Body)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"indexes":["idxA"]}` {
		t.Errorf("put body = %s", rr.Body)
	}

	q := url.Values{"database": {"idxA"}, "schema": {"demo"}, "title": {"Cancer treatment"}, "year": {"2001"}}
	rr = do(t, h, "GET", "/services/get/duplicates?"+q.Encode(), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicates: %d %s", rr.Code, rr.Body)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	var resp struct {
		Total  int                 `json:"total"`
		Result []map[string]string `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Result) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	hit := resp.Result[0]
	if hit["id"] != "1" || hit["similarity"] != "1.0000" || hit["score"] != "1" || hit["database"] != "idxA" {
		t.Errorf("unexpected hit %v", hit)
	}
}

func TestPostDuplicates_Form(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	do(t, h, "POST", "/services/put/idxB/demo/9", `{"title":"Malaria vaccine"}`)

	form := url.Values{"database": {"idxA//@//idxB"}, "schema": {"demo"}, "title": {"Malaria vaccines"}}
	req := httptest.NewRequest("POST", "/services/duplicates", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"database":["idxA","idxB"]`) {
		t.Errorf("params not echoed as array: %s", rr.Body)
	}
	if !strings.Contains(rr.Body.String(), `"id":"9"`) {
		t.Errorf("expected hit from idxB: %s", rr.Body)
	}
}

func TestPutJSON_EscapedUnionGroup(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "POST", "/services/put/idxA%2F%2F%40%2F%2FidxB/demo/2", `{"title":"Dengue"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"indexes":["idxA","idxB"]}` {
		t.Errorf("body = %s", rr.Body)
	}
}

func TestDuplicates_Errors(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	tests := []struct {
		name   string
		query  string
		status int
		msg    string
	}{
		{"missing schema", "database=idxA&title=x", http.StatusBadRequest, "missing 'schema' parameter"},
		{"missing database", "schema=demo&title=x", http.StatusBadRequest, "missing 'database' parameter"},
		{"unknown schema", "database=idxA&schema=nope&title=x", http.StatusNotFound, "invalid 'schema' parameter: nope"},
		{"unknown index", "database=nope&schema=demo&title=x", http.StatusNotFound, "invalid 'index' parameter: nope"},
		{"bad quantity", "database=idxA&schema=demo&title=x&quantity=many", http.StatusBadRequest, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, "GET", "/services/get/duplicates?"+tc.query, "")
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			msg := decodeError(t, rr)
			if tc.msg != "" && msg != tc.msg {
				t.Errorf("ERROR = %q, want %q", msg, tc.msg)
			}
		})
	}
}

func TestLineOperations(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "POST", "/services/raw/put/idxA/demo", "src|1|Zika virus|2016\nsrc|2|Yellow fever|1999")
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("raw put: %d %s", rr.Code, rr.Body)
	}

	rr = do(t, h, "POST", "/services/raw/duplicates/idxA/demo", "idxA|?|Zika virus|")
	if rr.Code != http.StatusOK {
		t.Fatalf("raw duplicates: %d %s", rr.Code, rr.Body)
	}
	lines := strings.Split(rr.Body.String(), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "0|1.0000|") || !strings.Contains(lines[0], "|idxA|") {
		t.Errorf("raw hits = %q", lines)
	}

	rr = do(t, h, "POST", "/services/putDocs/idxB/demo", "idxB|5|Ebola|2014")
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("putDocs: %d %s", rr.Code, rr.Body)
	}

	rr = do(t, h, "GET", "/services/test/idxA/demo", "")
	if rr.Body.String() != "Index is OK!" {
		t.Errorf("test = %q", rr.Body)
	}
	rr = do(t, h, "GET", "/services/optimize/idxA", "")
	if rr.Body.String() != "OK" {
		t.Errorf("optimize = %q", rr.Body)
	}
	rr = do(t, h, "GET", "/services/reset/idxA", "")
	if rr.Body.String() != "OK" {
		t.Errorf("reset = %q", rr.Body)
	}
	rr = do(t, h, "POST", "/services/raw/duplicates/idxA/demo", "idxA|?|Zika virus|")
	if rr.Body.String() != "" {
		t.Errorf("hits after reset = %q", rr.Body)
	}
}

func TestLineOperations_TextErrors(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "POST", "/services/raw/put/idxA/demo", "too|short")
	if rr.Code != http.StatusBadRequest || !strings.HasPrefix(rr.Body.String(), "ERROR: invalid document") {
		t.Errorf("raw put error: %d %q", rr.Code, rr.Body)
	}
	rr = do(t, h, "GET", "/services/reset/nope", "")
	if rr.Code != http.StatusNotFound || rr.Body.String() != "ERROR: invalid 'index' parameter: nope" {
		t.Errorf("reset error: %d %q", rr.Code, rr.Body)
	}
	rr = do(t, h, "POST", "/services/putDocs/idxA/demo", "")
	if rr.Body.String() != "ERROR: missing 'multiLinePipedDocs' parameter" {
		t.Errorf("putDocs error: %q", rr.Body)
	}
	rr = do(t, h, "POST", "/services/putDocs/idxA/demo", strings.Repeat("x", 2<<10))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: %d", rr.Code)
	}
}

func TestDelete(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	do(t, h, "POST", "/services/put/idxA/demo/1", `{"title":"Cholera"}`)

	rr := do(t, h, "GET", "/services/delete?database=idxA&id=1", "")
	if strings.TrimSpace(rr.Body.String()) != `{"STATUS":"OK"}` {
		t.Fatalf("delete = %d %s", rr.Code, rr.Body)
	}
	rr = do(t, h, "GET", "/services/delete?database=idxA", "")
	if rr.Code != http.StatusBadRequest || decodeError(t, rr) != "missing 'id' parameter" {
		t.Errorf("delete without id: %d", rr.Code)
	}
}

func TestSchemaAndListings(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "GET", "/services/schema/demo", "")
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Body.String(), `{"name":"demo","indexedField":"title"`) {
		t.Errorf("schema json: %d %s", rr.Code, rr.Body)
	}
	rr = do(t, h, "GET", "/services/schema/xml/demo", "")
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "application/xml") ||
		!strings.Contains(rr.Body.String(), "<schema><name>demo</name>") {
		t.Errorf("schema xml: %s", rr.Body)
	}
	rr = do(t, h, "GET", "/services/schema/xml/nope", "")
	if rr.Body.String() != "ERROR: invalid 'schema' parameter: nope" {
		t.Errorf("schema xml error: %q", rr.Body)
	}
	rr = do(t, h, "GET", "/services/schemas", "")
	if strings.TrimSpace(rr.Body.String()) != `{"schemas":["demo"]}` {
		t.Errorf("schemas: %s", rr.Body)
	}
	rr = do(t, h, "GET", "/services/indexes", "")
	if strings.TrimSpace(rr.Body.String()) != `{"indexes":["idxA","idxB"]}` {
		t.Errorf("indexes: %s", rr.Body)
	}
}

func TestHealthAndUnknownRoute(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})

	rr := do(t, h, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: %d %s", rr.Code, rr.Body)
	}
	var body healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Checks["index:idxA"] != "ok" {
		t.Errorf("health = %+v", body)
	}

	rr = do(t, h, "GET", "/services/nope", "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr) != "unknown operation" {
		t.Errorf("unknown route: %d", rr.Code)
	}
}

func TestClassify_InternalErrorHidden(t *testing.T) {
	s := NewServer(nil, nil, 0, nil)
	status, msg := s.classify(errors.New("redis: connection reset"))
	if status != http.StatusInternalServerError || msg != "internal error" {
		t.Errorf("classify = %d %q", status, msg)
	}
	status, msg = s.classify(domain.MissingParameter("schema"))
	if status != http.StatusBadRequest || msg != "missing 'schema' parameter" {
		t.Errorf("classify = %d %q", status, msg)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := jsonRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError || decodeError(t, rr) != "internal error" {
		t.Errorf("recovered = %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestRouter(t, RouterConfig{})
	rr := do(t, h, "GET", "/services/schemas", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}
