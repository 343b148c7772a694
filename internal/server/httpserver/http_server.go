// Package httpserver wires the exporter's HTTP endpoints: the metrics
// exposition, /healthz and a landing page.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
	"git.home.luguber.info/inful/buildbot-exporter/internal/logfields"
	"git.home.luguber.info/inful/buildbot-exporter/internal/metrics"
	"git.home.luguber.info/inful/buildbot-exporter/internal/server/handlers"
	smw "git.home.luguber.info/inful/buildbot-exporter/internal/server/middleware"
)

// Server serves the metrics exposition over HTTP.
type Server struct {
	cfg    config.ExpositionConfig
	router *chi.Mux
	logger *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// New builds the router. gatherer is scraped on every request to cfg.Path;
// status backs /healthz and may be nil.
func New(cfg config.ExpositionConfig, gatherer prometheus.Gatherer, status handlers.StatusProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.setupRoutes(gatherer, status)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer, status handlers.StatusProvider) {
	adapter := ferrors.NewHTTPErrorAdapter(s.logger)
	monitoring := handlers.NewMonitoringHandlers(status, s.cfg.Path, s.logger)

	s.router.Use(middleware.RequestID)
	s.router.Use(smw.Chain(s.logger, adapter))

	s.router.Get(s.cfg.Path, metrics.HTTPHandler(gatherer, s.cfg.OpenMetrics, s.logger).ServeHTTP)
	s.router.Get("/healthz", monitoring.HandleHealth)
	s.router.Get("/", monitoring.HandleIndex)

	s.router.NotFound(monitoring.HandleNotFound)
	s.router.MethodNotAllowed(monitoring.HandleMethodNotAllowed)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds the listen address and serves in the background. Binding
// happens synchronously so address conflicts surface as an error here.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryExposition, "failed to bind exposition address").
			WithContext("address", s.cfg.Address).
			Fatal().
			Build()
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.server, s.listener, s.done = srv, ln, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Exposition server stopped unexpectedly", logfields.Error(err))
		}
	}()

	s.logger.Info("Exposition server started",
		slog.String("address", ln.Addr().String()),
		slog.String("path", s.cfg.Path))
	return nil
}

// Addr reports the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.listener, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryExposition, "exposition server shutdown").Build()
	}
	<-done
	return nil
}
