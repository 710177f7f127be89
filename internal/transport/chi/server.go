// Package chi exposes the search API over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/mode"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/request"
	healthuc "github.com/chabad-mafteach/mafteach/internal/usecase/health"
	searchuc "github.com/chabad-mafteach/mafteach/internal/usecase/search"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server holds the HTTP handlers for the search API.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		invalidQueryHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "Not found"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests,
			"Too many requests. Please try again in a moment."),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusInternalServerError, "Search failed"),
		sentinelHandler(domain.ErrUpstream, http.StatusInternalServerError, "Search failed"),
	}
	return s
}

// Router assembles the API routes. searchLimit and semanticLimit guard
// the smart and semantic endpoints respectively; nil disables limiting.
func (s *Server) Router(searchLimit, semanticLimit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/search", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if searchLimit != nil {
				r.Use(searchLimit)
			}
			r.Get("/", s.SmartSearch)
		})
		r.Group(func(r chi.Router) {
			if semanticLimit != nil {
				r.Use(semanticLimit)
			}
			r.Post("/semantic", s.SemanticSearch)
			r.Get("/semantic", s.SemanticSearchGET)
		})
	})

	return r
}

// SmartSearch handles GET /api/search.
func (s *Server) SmartSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Limit must be a number")
		return
	}

	resp, err := s.search.Smart(r.Context(), q.Get("q"), mode.Mode(q.Get("mode")), limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// semanticRequest is the POST /api/search/semantic body.
type semanticRequest struct {
	Query       string   `json:"query"`
	Collections []string `json:"collections"`
	Limit       int      `json:"limit"`
	Threshold   float64  `json:"threshold"`
}

// SemanticSearch handles POST /api/search/semantic.
func (s *Server) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	var body semanticRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.runSemantic(w, r, body)
}

// SemanticSearchGET handles GET /api/search/semantic, accepting the same
// parameters as the POST body via the query string.
func (s *Server) SemanticSearchGET(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	body := semanticRequest{Query: q.Get("q")}
	if body.Query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter (q) is required")
		return
	}
	if raw := q.Get("collections"); raw != "" {
		body.Collections = strings.Split(raw, ",")
	}

	limit, err := intParam(q, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Limit must be a number")
		return
	}
	body.Limit = limit

	if raw := q.Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Threshold must be a number")
			return
		}
		body.Threshold = t
	}

	s.runSemantic(w, r, body)
}

func (s *Server) runSemantic(w http.ResponseWriter, r *http.Request, body semanticRequest) {
	cols := make([]collection.Name, 0, len(body.Collections))
	for _, c := range body.Collections {
		cols = append(cols, collection.Name(strings.TrimSpace(c)))
	}

	req, err := request.NewSemantic(body.Query, cols, body.Limit, body.Threshold)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Semantic(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health. The CMS is the core dependency; an
// unreachable embedding provider degrades the report but keyword search
// still works, so only a CMS failure takes the service out of rotation.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Checks["cms"] == healthuc.CheckError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func intParam(q map[string][]string, name string) (int, error) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return 0, nil
	}
	return strconv.Atoi(vals[0])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// invalidQueryHandler surfaces validation messages verbatim; they are
// written for API consumers and carry no internals.
func invalidQueryHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	writeError(w, http.StatusBadRequest, validationMessage(err))
	return true
}

// validationMessage strips the sentinel prefix from a wrapped invalid
// query error, leaving the client-facing text.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, message string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, message)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
