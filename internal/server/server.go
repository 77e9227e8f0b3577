package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"

	"github.com/nestmatch/engine/internal/config"
)

// Registrar mounts a service's routes onto the shared router.
type Registrar interface {
	Register(r chi.Router)
}

// Server wraps chi.Router with the base middlewares, the operational
// endpoints, and graceful shutdown.
type Server struct {
	router chi.Router
	srv    *http.Server
	log    *slog.Logger
}

// New builds the HTTP server and mounts every registrar.
func New(cfg *config.Config, log *slog.Logger, registrars ...Registrar) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	for _, reg := range registrars {
		reg.Register(r)
	}

	addr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	return &Server{
		router: r,
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		log: log,
	}
}

// Handler exposes the composed router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
