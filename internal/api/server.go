package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/config"
	"github.com/JakeFAU/nexus-search/internal/crawler"
	"github.com/JakeFAU/nexus-search/internal/metrics"
	"github.com/JakeFAU/nexus-search/internal/search"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxLimit              = 100
)

// Searcher resolves a keyword to ranked postings.
type Searcher interface {
	Find(ctx context.Context, keyword string) ([]crawler.Posting, error)
}

// Submitter accepts a URL for crawling and returns its normalized form.
type Submitter interface {
	Enqueue(ctx context.Context, rawURL string) (string, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the resolver and queue.
type Server struct {
	router    chi.Router
	searcher  Searcher
	submitter Submitter
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithSubmitter enables POST /v1/urls.
func WithSubmitter(s Submitter) Option {
	return func(srv *Server) { srv.submitter = s }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(srv *Server) { srv.checks[name] = check }
}

// NewServer constructs a Server with middleware and routes.
func NewServer(searcher Searcher, cfg config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		searcher: searcher,
		checks:   make(map[string]ReadinessCheck),
		logger:   logger.Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/search", s.search)
		if s.submitter != nil {
			r.Post("/urls", s.submitURL)
		}
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchResult struct {
	Keyword string `json:"keyword"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Score   int    `json:"score"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []searchResult `json:"results"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := search.Normalize(r.URL.Query().Get("q"))
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	postings, err := s.searcher.Find(r.Context(), query)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrIndexUnavailable) {
			status = http.StatusBadGateway
		}
		s.writeError(w, status, err.Error())
		return
	}
	if limit > 0 && len(postings) > limit {
		postings = postings[:limit]
	}

	resp := searchResponse{Query: query, Count: len(postings), Results: make([]searchResult, 0, len(postings))}
	for _, p := range postings {
		resp.Results = append(resp.Results, searchResult{Keyword: p.Keyword, URL: p.URL, Title: p.Title, Score: p.Score})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and 100")
	}
	return n, nil
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitURL(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	normalized, err := s.submitter.Enqueue(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, crawler.ErrMalformedWorkItem) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("enqueue failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"url": normalized})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
