// Package core provides the HTTP chassis for the weather read API. It owns
// the chi router, the middleware chain, the JSON response envelope and the
// health endpoint; domain handlers register themselves under /v1.
package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"weatheringest/internal/config"
)

// defaultRequestTimeout bounds every request when the config is silent.
const defaultRequestTimeout = 15 * time.Second

// Server carries the read API dependencies. Routes are mounted explicitly
// with MountRoutes so tests can build a bare router.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	// V1RouteRegistrars are applied to the /v1 group by MountRoutes.
	V1RouteRegistrars []func(chi.Router)

	// OnShutdown hooks run in order during Shutdown (pool close, flushes).
	OnShutdown []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer builds a Server with an empty router.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests and custom mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered hooks. Every hook runs even when an earlier
// one fails; the errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.OnShutdown {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
