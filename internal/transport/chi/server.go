package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dedup/internal/domain"
	dedupuc "github.com/kailas-cloud/dedup/internal/usecase/dedup"
	healthuc "github.com/kailas-cloud/dedup/internal/usecase/health"
)

// DefaultMaxBodyBytes caps request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 32 << 20

// Index self-test answers.
const (
	indexOK  = "Index is OK!"
	indexBAD = "Index is BAD!"
)

// errorHandler maps a domain error to an HTTP status. Returns false if unmatched.
type errorHandler func(err error) (int, bool)

// Server exposes the duplicate query service over HTTP.
type Server struct {
	dedup         *dedupuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	maxBodyBytes  int64
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. maxBodyBytes <= 0 uses DefaultMaxBodyBytes.
func NewServer(dedup *dedupuc.Service, health *healthuc.Service, maxBodyBytes int64, logger *zap.Logger) *Server {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dedup:        dedup,
		health:       health,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound),
		sentinelHandler(domain.ErrMissingParameter, http.StatusBadRequest),
		sentinelHandler(domain.ErrUnknownField, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidParameter, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest),
		sentinelHandler(domain.ErrInvalidToken, http.StatusUnauthorized),
		sentinelHandler(domain.ErrMalformedNumericField, http.StatusBadGateway),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout),
	}
	return s
}

// Mount registers the service routes under basePath, plus /health and /metrics at the root.
func (s *Server) Mount(r chi.Router, basePath string) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route(basePath, func(r chi.Router) {
		r.Use(allowAnyOrigin)

		r.Get("/get/duplicates", s.GetDuplicates)
		r.Post("/duplicates", s.PostDuplicates)
		r.Post("/raw/duplicates/{database}/{schema}", s.RawDuplicates)

		r.Post("/put/{database}/{schema}/{id}", s.PutJSON)
		r.Post("/raw/put/{database}/{schema}", s.PutRaw)
		r.Post("/putDocs/{database}/{schema}", s.PutDocs)

		r.Get("/delete", s.Delete)
		r.Get("/reset/{database}", s.Reset)
		r.Get("/optimize/{database}", s.Optimize)
		r.Get("/test/{database}/{schema}", s.Test)

		r.Get("/schema/{schema}", s.SchemaJSON)
		r.Get("/schema/xml/{schema}", s.SchemaXML)
		r.Get("/schemas", s.ListSchemas)
		r.Get("/indexes", s.ListIndexes)
	})
}

// GetDuplicates handles GET /get/duplicates.
func (s *Server) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	s.duplicates(w, r, r.URL.Query())
}

// PostDuplicates handles POST /duplicates with form-encoded parameters.
func (s *Server) PostDuplicates(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	s.duplicates(w, r, r.Form)
}

func (s *Server) duplicates(w http.ResponseWriter, r *http.Request, params url.Values) {
	resp, err := s.dedup.Duplicates(r.Context(), params)
	if err != nil {
		s.handleJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RawDuplicates handles POST /raw/duplicates/{database}/{schema}.
func (s *Server) RawDuplicates(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, writeTextError)
	if !ok {
		return
	}
	hits, err := s.dedup.RawDuplicates(r.Context(), pathParam(r, "database"), pathParam(r, "schema"), body)
	if err != nil {
		s.handleTextError(w, err)
		return
	}
	writeText(w, http.StatusOK, strings.Join(hits, "\n"))
}

// PutJSON handles POST /put/{database}/{schema}/{id}.
func (s *Server) PutJSON(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, writeJSONError)
	if !ok {
		return
	}
	written, err := s.dedup.PutJSON(r.Context(),
		pathParam(r, "database"), pathParam(r, "schema"), pathParam(r, "id"), body)
	if err != nil {
		s.handleJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"indexes": written})
}

// PutRaw handles POST /raw/put/{database}/{schema}.
func (s *Server) PutRaw(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, writeTextError)
	if !ok {
		return
	}
	if err := s.dedup.PutRaw(r.Context(), pathParam(r, "database"), pathParam(r, "schema"), body); err != nil {
		s.handleTextError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// PutDocs handles POST /putDocs/{database}/{schema}.
func (s *Server) PutDocs(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, writeTextError)
	if !ok {
		return
	}
	if err := s.dedup.PutDocs(r.Context(), pathParam(r, "database"), pathParam(r, "schema"), body); err != nil {
		s.handleTextError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// Delete handles GET /delete?database=..&id=..
func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := s.dedup.Delete(r.Context(), q[dedupuc.ParamDatabase], q.Get(dedupuc.ParamID)); err != nil {
		s.handleJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"STATUS": "OK"})
}

// Reset handles GET /reset/{database}.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	if err := s.dedup.Reset(r.Context(), pathParam(r, "database")); err != nil {
		s.handleTextError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// Optimize handles GET /optimize/{database}.
func (s *Server) Optimize(w http.ResponseWriter, r *http.Request) {
	if err := s.dedup.Optimize(r.Context(), pathParam(r, "database")); err != nil {
		s.handleTextError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// Test handles GET /test/{database}/{schema}.
func (s *Server) Test(w http.ResponseWriter, r *http.Request) {
	ok, err := s.dedup.Test(r.Context(), pathParam(r, "database"), pathParam(r, "schema"))
	if err != nil {
		s.handleTextError(w, err)
		return
	}
	if ok {
		writeText(w, http.StatusOK, indexOK)
		return
	}
	writeText(w, http.StatusOK, indexBAD)
}

// SchemaJSON handles GET /schema/{schema}.
func (s *Server) SchemaJSON(w http.ResponseWriter, r *http.Request) {
	out, err := s.dedup.SchemaJSON(pathParam(r, "schema"))
	if err != nil {
		s.handleJSONError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// SchemaXML handles GET /schema/xml/{schema}.
func (s *Server) SchemaXML(w http.ResponseWriter, r *http.Request) {
	out, err := s.dedup.SchemaXML(pathParam(r, "schema"))
	if err != nil {
		s.handleTextError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ListSchemas handles GET /schemas.
func (s *Server) ListSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"schemas": s.dedup.Schemas()})
}

// ListIndexes handles GET /indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"indexes": s.dedup.Indexes()})
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, fail func(http.ResponseWriter, int, string)) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		fail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	return body, true
}

// pathParam returns the URL-unescaped route parameter, so union groups may be
// sent percent-encoded.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// allowAnyOrigin lets browser clients on other origins call the service.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"ERROR": message})
}

func writeTextError(w http.ResponseWriter, status int, message string) {
	writeText(w, status, "ERROR: "+message)
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int) errorHandler {
	return func(err error) (int, bool) {
		if !errors.Is(err, sentinel) {
			return 0, false
		}
		return status, true
	}
}

// classify returns the status and client message for err. Unmatched errors
// are internal and their text is not exposed.
func (s *Server) classify(err error) (int, string) {
	for _, h := range s.errorHandlers {
		if status, ok := h(err); ok {
			s.logger.Warn("domain error", zap.Error(err))
			return status, err.Error()
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) handleJSONError(w http.ResponseWriter, err error) {
	status, msg := s.classify(err)
	writeJSONError(w, status, msg)
}

func (s *Server) handleTextError(w http.ResponseWriter, err error) {
	status, msg := s.classify(err)
	writeTextError(w, status, msg)
}
