// Package server exposes the engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/engine"
)

// Engine is the set of operations served over HTTP. *engine.Engine
// satisfies it.
type Engine interface {
	CreateAndLink(ctx context.Context, content string) (core.Note, []core.MemoryLink, error)
	Recall(ctx context.Context, query string, limit int) ([]core.Cluster, error)
	Related(ctx context.Context, noteID string, minStrength float64) ([]core.RelatedNote, error)
	GetNote(ctx context.Context, id string) (core.Note, error)
	Graph(ctx context.Context, query string, minStrength float64) (core.Graph, error)
	EmbedPending(ctx context.Context, batchSize int) (engine.BackfillResult, error)
	Relink(ctx context.Context, noteID string) ([]core.MemoryLink, error)
	Metrics() engine.MetricsSummary
}

// Config configures a new Server instance.
type Config struct {
	Engine Engine
	// CORSOrigins lists allowed browser origins; "*" allows any. Empty
	// defaults to "*".
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server is an HTTP server for the resurface engine.
type Server struct {
	engine  Engine
	origins []string
	logger  *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine is required")
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		engine:  cfg.Engine,
		origins: origins,
		logger:  logger.With("component", "server"),
	}, nil
}

// Handler returns an http.Handler for the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/notes", s.handleCreateNote)
	mux.HandleFunc("POST /api/notes/backfill", s.handleBackfill)
	mux.HandleFunc("GET /api/notes/{id}", s.handleGetNote)
	mux.HandleFunc("GET /api/notes/{id}/related", s.handleRelated)
	mux.HandleFunc("POST /api/notes/{id}/relink", s.handleRelink)

	mux.HandleFunc("POST /api/recall", s.handleRecall)
	mux.HandleFunc("GET /api/graph", s.handleGraph)
	mux.HandleFunc("GET /api/metrics/summary", s.handleMetricsSummary)

	return s.logRequests(s.corsMiddleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	anyOrigin := slices.Contains(s.origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case anyOrigin:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if strings.HasPrefix(r.URL.Path, "/health") {
			return
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
