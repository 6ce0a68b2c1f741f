// Package httpapi exposes the match engine over HTTP. Responses use the
// envelope {"success": true, "data": {...}}; failures return
// {"success": false, "error": "..."} with a 4xx/5xx status.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitri-lerko/gcpiam-search/internal/logger"
	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
	"github.com/dmitri-lerko/gcpiam-search/pkg/match"
)

// Options bound the query surface. Zero values fall back to defaults.
type Options struct {
	// DefaultLimit is used when the request omits the limit param. Defaults to 20.
	DefaultLimit int
	// MaxLimit caps the limit param. Defaults to 64.
	MaxLimit int
	// MaxQuery caps the query length in runes. Defaults to 100.
	MaxQuery int
	// FuzzyThreshold is the minimum similarity for fuzzy mode. Defaults to 0.5.
	FuzzyThreshold float64
}

// Server answers search queries against a shared match engine.
type Server struct {
	engine *match.Engine
	opts   Options
	log    *log.Logger
}

// NewServer builds a Server around engine.
func NewServer(engine *match.Engine, opts Options) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 64
	}
	if opts.MaxQuery <= 0 {
		opts.MaxQuery = 100
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = 0.5
	}
	return &Server{engine: engine, opts: opts, log: logger.New("api")}
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})
	return r
}

type searchData struct {
	Permissions []iam.ScoredPermission `json:"permissions"`
	Roles       []iam.ScoredRole       `json:"roles"`
	Query       string                 `json:"query"`
	Mode        string                 `json:"mode"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if utf8.RuneCountInString(query) > s.opts.MaxQuery {
		writeError(w, http.StatusBadRequest, "query too long")
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "prefix"
	}

	limit := s.opts.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	var res iam.SearchResults
	switch mode {
	case "exact":
		res = s.engine.Exact(query)
	case "prefix":
		res = s.engine.Prefix(query, limit)
	case "fuzzy":
		res = s.engine.Fuzzy(query, s.opts.FuzzyThreshold, limit)
	default:
		writeError(w, http.StatusBadRequest, "mode must be one of exact, prefix, fuzzy")
		return
	}

	s.log.Debugf("search q=%q mode=%s -> %d permissions, %d roles", query, mode, len(res.Permissions), len(res.Roles))
	writeData(w, searchData{
		Permissions: res.Permissions,
		Roles:       res.Roles,
		Query:       query,
		Mode:        mode,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	permissions, roles := s.engine.Stats()
	writeData(w, map[string]int{
		"total_permissions": permissions,
		"total_roles":       roles,
	})
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	}); err != nil {
		log.Errorf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	}); err != nil {
		log.Errorf("encode error response: %v", err)
	}
}
