// Package server provides the HTTP API in front of the embedding worker.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bertlib/internal/config"
	"github.com/hyperjump/bertlib/internal/embedding"
	"github.com/hyperjump/bertlib/internal/worker"
)

// WorkerControl is the part of worker.Handle the API exposes.
type WorkerControl interface {
	Status() worker.Status
	Restart(ctx context.Context) error
}

// CacheStats reports the disk cache, when one is configured.
type CacheStats interface {
	Count(ctx context.Context) (int64, error)
	DiskUsage() (int64, error)
}

// Server is the HTTP server for the bertlib API.
type Server struct {
	embedder embedding.Embedder
	worker   WorkerControl
	cache    CacheStats
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. cache may be nil.
func NewServer(
	embedder embedding.Embedder,
	ctl WorkerControl,
	cache CacheStats,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		embedder: embedder,
		worker:   ctl,
		cache:    cache,
		config:   cfg,
		logger:   logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/encode", s.handleEncode)
	r.Post("/api/v1/similar", s.handleSimilar)
	r.Get("/api/v1/ping", s.handlePing)
	r.Post("/api/v1/ping/sentences", s.handlePingSentences)
	r.Get("/api/v1/worker", s.handleWorkerStatus)
	r.Post("/api/v1/worker/restart", s.handleWorkerRestart)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
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
