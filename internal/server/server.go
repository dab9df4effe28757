// Package server provides the HTTP API for the semantic index.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/internal/scheduler"
	"github.com/hyperjump/semindex/internal/service"
)

const defaultMaxImportBytes = 512 << 20

// Server is the HTTP server for the semindex API.
type Server struct {
	svc       *service.Service
	scheduler *scheduler.Scheduler
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. sched may be nil.
func NewServer(
	svc *service.Service,
	sched *scheduler.Scheduler,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		svc:       svc,
		scheduler: sched,
		config:    cfg,
		logger:    logger,
	}
}

// Handler returns the router with every route and middleware mounted.
func (s *Server) Handler() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5, "application/json"))

	r.Get("/", s.handleRoot)
	r.Post("/insert", s.handleInsert)
	r.Post("/delete", s.handleDelete)
	r.Get("/data_amount", s.handleDataAmount)
	r.Get("/search", s.handleSearch)
	r.Get("/export", s.handleExport)
	r.Post("/import", s.handleImport)
	r.Post("/clear", s.handleClear)
	r.Post("/checkpoint", s.handleCheckpoint)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
