// Package server exposes the dashboard HTTP API: query introspection, log
// history, live streaming, and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"containeryard/internal/logging"
	"containeryard/internal/metrics"
	"containeryard/internal/stream"
)

// ErrNoListenAddr is returned by Run when the configured address is empty.
var ErrNoListenAddr = errors.New("no listen address configured")

// MetricsSource provides sampled history for /api/metrics.
// *metrics.Sampler satisfies it.
type MetricsSource interface {
	History() []metrics.Sample
}

// Config configures a Server.
type Config struct {
	// Addr is the TCP listen address, e.g. ":8080".
	Addr string
	// Hub is the record source for log queries and streams.
	Hub *stream.Hub
	// Metrics provides sampler history. If nil, /api/metrics serves an
	// empty list.
	Metrics MetricsSource
	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	addr      string
	hub       *stream.Hub
	metrics   MetricsSource
	logger    *slog.Logger
	startTime time.Time
}

// New creates a server from the config.
func New(cfg Config) *Server {
	return &Server{
		addr:    cfg.Addr,
		hub:     cfg.Hub,
		metrics: cfg.Metrics,
		logger:  logging.Default(cfg.Logger).With("component", "server"),
	}
}

// Handler builds the gin engine with all routes registered. Split from Run
// so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), compressMiddleware())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/query", s.handleQuery)
	r.GET("/api/logs", s.handleLogs)
	r.GET("/api/logs/stream", s.handleStream)
	r.GET("/api/metrics", s.handleMetrics)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.addr == "" {
		return ErrNoListenAddr
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startTime = time.Now()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		s.logger.Info("http server stopped")
		return err
	case err := <-errCh:
		return err
	}
}
