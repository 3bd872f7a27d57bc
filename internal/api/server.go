package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/auth"
)

// Server is the consumer-facing HTTP API server.
type Server struct {
	httpServer     *http.Server
	commands       CommandPort
	telemetry      TelemetryPort
	media          MediaPort
	shutdown       ShutdownFunc
	authMiddleware *auth.Middleware
	corsOrigin     string
	startTime      time.Time
	log            zerolog.Logger
}

// NewServer creates the API server. corsOrigin is the allowed
// cross-origin value ("*" or a specific origin); shutdown is invoked
// asynchronously by the shutdown endpoint.
func NewServer(commands CommandPort, telemetry TelemetryPort, media MediaPort, shutdown ShutdownFunc, authMiddleware *auth.Middleware, corsOrigin string, log zerolog.Logger) *Server {
	return &Server{
		commands:       commands,
		telemetry:      telemetry,
		media:          media,
		shutdown:       shutdown,
		authMiddleware: authMiddleware,
		corsOrigin:     corsOrigin,
		startTime:      time.Now(),
		log:            log.With().Str("component", "api").Logger(),
	}
}

// Start runs the HTTP server on addr until it is shut down.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
