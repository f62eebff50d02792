// Package api provides the HTTP server and routing.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/awebisam/chemezy/internal/api/handlers"
	"github.com/awebisam/chemezy/internal/auth"
	"github.com/awebisam/chemezy/internal/awards"
	"github.com/awebisam/chemezy/internal/config"
	"github.com/awebisam/chemezy/internal/leaderboard"
	"github.com/awebisam/chemezy/internal/metrics"
	"github.com/awebisam/chemezy/internal/reaction"
	"github.com/awebisam/chemezy/internal/storage"
)

// Deps carries the service components the HTTP layer exposes.
type Deps struct {
	Store       storage.Storage
	Cache       *reaction.Cache
	Ledger      *reaction.Ledger
	Engine      *awards.Engine
	Dispatcher  *awards.Dispatcher
	Leaderboard *leaderboard.Service
	Verifier    *auth.Verifier
	Metrics     *metrics.Metrics
}

// Server represents the HTTP server.
type Server struct {
	config  *config.Config
	deps    Deps
	router  chi.Router
	server  *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		config:  cfg,
		deps:    deps,
		logger:  logger,
		metrics: m,
	}

	s.setupRouter()
	return s
}

// Metrics returns the metrics instance for recording custom metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)
	// Reaction resolution can wait on the synthesizer; the timeout has
	// to outlive it.
	r.Use(middleware.Timeout(60 * time.Second))

	// Create handlers
	h := handlers.New(s.deps.Store, s.deps.Cache, s.deps.Ledger, s.deps.Engine, s.deps.Dispatcher, s.deps.Leaderboard)

	// Ops endpoints are open: probes and scrapers carry no tokens.
	r.Get("/health/live", h.LivenessCheck)
	r.Get("/health/ready", h.ReadinessCheck)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(s.deps.Verifier.Middleware)

		r.Post("/reactions", h.ResolveReaction)
		r.Get("/discoveries", h.ListDiscoveries)

		r.Get("/awards", h.GetOwnAwards)
		r.Get("/awards/available", h.GetAvailableAwards)
		r.Get("/users/{user_id}/awards", h.GetUserAwards)

		r.Get("/leaderboard/{category}", h.GetLeaderboard)
		r.Get("/leaderboard/{category}/rank/{user_id}", h.GetRank)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/admin/templates", h.ListTemplates)
			r.Post("/admin/templates", h.CreateTemplate)
			r.Put("/admin/templates/{id}", h.UpdateTemplate)
			r.Delete("/admin/templates/{id}", h.DeactivateTemplate)

			r.Post("/admin/awards/grant", h.GrantAward)
			r.Post("/admin/awards/revoke", h.RevokeAward)
			r.Post("/admin/awards/tier", h.SetAwardTier)

			r.Post("/admin/discoveries/revoke", h.RevokeDiscovery)
			r.Post("/admin/contributions", h.RecordContribution)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Address returns the server address.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s", s.config.Address())
}
