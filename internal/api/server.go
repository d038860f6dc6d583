package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/underwrite-labs/harrier/internal/coverage"
	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/learning"
	"github.com/underwrite-labs/harrier/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, matcher *coverage.Matcher, recorder *learning.Recorder, similarity *learning.Similarity, insights *learning.Insights, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, matcher, recorder, similarity, insights, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Case management and evaluation
		r.Post("/cases", handler.CreateCase)
		r.Get("/cases/{id}", handler.GetCase)
		r.Post("/cases/{id}/evaluate", handler.EvaluateCase)
		r.Get("/cases/{id}/similar", handler.SimilarCases)
		r.Get("/cases/{id}/insights", handler.CaseInsights)
		r.Get("/cases/{id}/coverage", handler.CaseCoverage)
		r.Get("/cases/{id}/overrides", handler.ListCaseOverrides)

		// Ad-hoc evaluation of an inline case (not persisted)
		r.Post("/evaluate", handler.Evaluate)

		// Override lifecycle
		r.Post("/overrides", handler.RecordOverride)
		r.Get("/overrides/pending", handler.PendingOverrides)
		r.Get("/overrides/training", handler.TrainingOverrides)
		r.Get("/overrides/{id}", handler.GetOverride)
		r.Post("/overrides/{id}/validate", handler.ValidateOverride)
		r.Post("/overrides/{id}/flag", handler.FlagOverride)

		// Mined override patterns
		r.Get("/patterns", handler.Patterns)

		// Rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/validate", handler.ValidateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
