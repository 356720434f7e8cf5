// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer for HTTP. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// Services and the store come ready-made from internal/app; the server only
// wraps them in handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/runquest/internal/app"
	"github.com/sakif/runquest/internal/auth"
	"github.com/sakif/runquest/internal/handler"
	"github.com/sakif/runquest/internal/middleware"
	"github.com/sakif/runquest/internal/observability"
)

// Server owns the router and the app it serves.
//
// RESOURCE MANAGEMENT:
// The app holds the database. Run closes it after the HTTP server has
// drained, so no in-flight request ever sees a closed store.
type Server struct {
	router *chi.Mux
	app    *app.App
	logger *slog.Logger
}

// New builds the router. a.EnableSessions must have been called.
func New(a *app.App, logger *slog.Logger) (*Server, error) {
	if a.Sessions == nil || a.Auth == nil {
		return nil, errors.New("server: sessions are not enabled")
	}

	s := &Server{
		router: chi.NewRouter(),
		app:    a,
		logger: logger,
	}
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                        → dashboard (HTML, optional session)
// GET    /healthz                 → database ping
// GET    /metrics                 → Prometheus (when enabled)
// GET    /auth/strava/login       → redirect to Strava
// GET    /auth/strava/callback    → finish sign-in
// POST   /auth/logout             → sign out
// GET    /api/catalog             → achievement definitions (public)
// GET    /api/me                  → owner profile            ┐
// GET    /api/stats               → live athlete stats       │
// GET    /api/achievements        → evaluated achievements   │
// POST   /api/achievements/sync   → grow the unlock ledger   │ session
// POST   /api/activities/sync     → refresh activity mirror  │ required
// GET    /api/activities          → mirrored activities      │
// GET    /api/insights/weekly     → weekly totals            │
// GET    /api/insights/pace       → pace histogram           ┘
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns an id the logger and the response header share
// 2. RealIP: extracts the client IP from proxy headers
// 3. Logger: logs each request and records its duration metric
// 4. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	cfg := s.app.Config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(s.app.Auth, cfg.Server.CookieSecure, s.logger)
	achievementHandler := handler.NewAchievementHandler(
		s.app.Achievements, s.app.Sync, s.app.Catalog, cfg.Sync.Timeout.Duration, s.logger)
	activityHandler := handler.NewActivityHandler(s.app.Activities, cfg.Sync.Timeout.Duration, s.logger)
	insightsHandler := handler.NewInsightsHandler(s.app.Stats, s.app.Insights, s.logger)
	dashboardHandler, err := handler.NewDashboardHandler(s.app.Auth, s.app.Catalog, s.logger)
	if err != nil {
		return fmt.Errorf("creating dashboard handler: %w", err)
	}

	requireAuth := auth.RequireAuth(s.app.Sessions)
	optionalAuth := auth.OptionalAuth(s.app.Sessions)

	// === Page and operational routes ===
	s.router.With(optionalAuth).Get("/", dashboardHandler.HandleDashboard)
	s.router.Get("/healthz", handler.HandleHealth(s.app.Store))
	if cfg.Metrics.Enabled {
		s.router.Handle(cfg.Metrics.Path, observability.Handler())
	}

	// === Auth routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/strava/login", authHandler.HandleStravaLogin)
		r.Get("/strava/callback", authHandler.HandleStravaCallback)
		r.With(optionalAuth).Post("/logout", authHandler.HandleLogout)
	})

	// === API routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/catalog", achievementHandler.HandleCatalog)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/stats", insightsHandler.HandleStats)
			r.Get("/achievements", achievementHandler.HandleList)
			r.Post("/achievements/sync", achievementHandler.HandleSync)
			r.Post("/activities/sync", activityHandler.HandleSync)
			r.Get("/activities", activityHandler.HandleList)
			r.Get("/insights/weekly", insightsHandler.HandleWeekly)
			r.Get("/insights/pace", insightsHandler.HandlePace)
		})
	})

	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (shutdown_timeout)
// 3. Close the database (flushes WAL, releases the file lock)
//
// The caller cancels ctx on SIGINT/SIGTERM (see signal.NotifyContext in
// the serve command).
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.app.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	cfg := s.app.Config.Server
	srv := &http.Server{
		Addr:         s.app.Config.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", cfg.Port),
			slog.String("storage", s.app.Config.Storage.Driver),
			slog.String("callback", s.app.Config.Strava.CallbackURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
