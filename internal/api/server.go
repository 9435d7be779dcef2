package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/papergest/internal/config"
	"github.com/dgallion1/papergest/internal/enhance"
	"github.com/dgallion1/papergest/internal/pipeline"
	"github.com/dgallion1/papergest/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes extraction and pipeline runs over HTTP. Everything under
// /api requires the bearer key; /health does not.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	pipeline     *pipeline.Pipeline
	store        *store.Store
	stats        *enhance.LLMStats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer wires the routes. stats is nil when no enhancement provider
// is configured.
func NewServer(orch *pipeline.Orchestrator, pipe *pipeline.Pipeline, st *store.Store, stats *enhance.LLMStats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		pipeline:     pipe,
		store:        st,
		stats:        stats,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.RequestID, RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey))
		r.Post("/extract", s.handleExtract)
		r.Post("/pipeline", s.handleSubmitRun)
		r.Get("/runs/{runID}", s.handleRunStatus)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{fingerprint}", s.handleGetDocument)
		r.Get("/stats/llm", s.handleLLMStats)
	})
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"documents":   s.store.Len(),
	})
}
