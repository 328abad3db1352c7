// Package server exposes the HTTP control surface and the WebSocket push
// endpoint for the monitoring pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/calderhq/traderpulse/internal/domain"
	"github.com/calderhq/traderpulse/internal/server/handler"
	"github.com/calderhq/traderpulse/internal/server/middleware"
	"github.com/calderhq/traderpulse/internal/server/ws"
)

// apiRateLimit caps authenticated API traffic per client IP when a rate
// limiter is configured.
const (
	apiRateLimit       = 60
	apiRateLimitWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Monitor *handler.MonitorHandler
}

// Server is the headless HTTP + WebSocket API server for the activity
// monitor.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Monitor control endpoints.
	mux.HandleFunc("POST /api/monitor/start", handlers.Monitor.StartMonitor)
	mux.HandleFunc("POST /api/monitor/stop", handlers.Monitor.StopMonitor)
	mux.HandleFunc("POST /api/monitor/trigger", handlers.Monitor.TriggerCycle)
	mux.HandleFunc("GET /api/monitor/status", handlers.Monitor.GetStatus)

	// Score and history queries.
	mux.HandleFunc("GET /api/scores", handlers.Monitor.ListScores)
	mux.HandleFunc("GET /api/heatmap/{id}", handlers.Monitor.GetHeatmap)
	mux.HandleFunc("GET /api/history/{id}", handlers.Monitor.GetHistory)
	mux.HandleFunc("POST /api/history/reset", handlers.Monitor.ResetHistory)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateLimitWindow)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
