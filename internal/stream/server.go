package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Server accepts WebSocket subscribers on its own listener; every
// accepted connection is registered for chunk delivery until it closes.
type Server struct {
	registry *Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
}

// NewServer creates the subscriber-accepting transport. allowedOrigin
// "*" disables the origin check.
func NewServer(registry *Registry, allowedOrigin string, log zerolog.Logger) *Server {
	s := &Server{
		registry: registry,
		log:      log.With().Str("component", "stream-server").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
	return s
}

// Start runs the WebSocket listener. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSubscribe)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("Stream server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stream server failed: %w", err)
	}
	return nil
}

// Stop closes the listener and waits for in-flight handshakes to drain.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down stream server: %w", err)
	}
	return nil
}

// handleSubscribe upgrades the connection and parks it in the registry
// until the client goes away.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sub := s.registry.Add(conn)
	defer func() {
		s.registry.Remove(sub.ID)
		_ = conn.Close()
	}()

	// Drain the read side; subscribers only receive. The read returning
	// an error is how we learn the client disconnected.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
