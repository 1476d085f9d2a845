// Package core provides the API chassis: a chi router with the cross-cutting
// middleware (request IDs, logging, recovery, auth, security headers) applied
// before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wbpulse/internal/config"
)

// Server bundles the router with the dependencies every handler needs.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	router *chi.Mux
	http   *http.Server
	checks []HealthChecker
}

// NewServer builds the chassis with the standard middleware chain mounted.
// Routes are registered afterwards via MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(RequestID)
	s.router.Use(SecurityHeaders)
	s.router.Use(RequestLogger(logger))

	return s, nil
}

// MountRoutes registers the health and metrics endpoints, then hands an
// auth-protected subrouter to the given registrar.
func (s *Server) MountRoutes(register func(chi.Router)) {
	s.router.Get("/healthz", s.healthHandler)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.Auth)
		register(r)
	})
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the HTTP server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "port", s.Config.Server.Port)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.Logger.Info("http server stopped")
	return nil
}
