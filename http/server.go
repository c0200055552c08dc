// Package http serves the training, prediction and recommendation API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mlplayground/config"
	"mlplayground/monitoring"
)

type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewRouter builds the full handler. JSON routes get the timeout and body
// limit; the websocket and metrics routes do not.
func NewRouter(cfg config.HTTP, api *API, hub *monitoring.Hub, metrics *monitoring.Metrics, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	api.Register(mux, Chain(
		TimeoutMiddleware(cfg.Timeout),
		RequestSizeMiddleware(cfg.MaxBodyBytes),
	))
	if hub != nil {
		mux.HandleFunc("GET /api/ws/training", hub.HandleWebSocket)
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger, metrics),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(mux)
}

func NewServer(cfg config.HTTP, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks until the server stops. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "/api/ws/training"))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
