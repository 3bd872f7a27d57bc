// Command dcb runs the drone control bridge: one UDP command link and
// one video ingest on the device side, HTTP/SSE/WebSocket surfaces on
// the consumer side.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/api"
	"github.com/drone-control/dcb/internal/audit"
	"github.com/drone-control/dcb/internal/auth"
	"github.com/drone-control/dcb/internal/command"
	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/drone"
	"github.com/drone-control/dcb/internal/session"
	"github.com/drone-control/dcb/internal/shutdown"
	"github.com/drone-control/dcb/internal/stream"
	"github.com/drone-control/dcb/internal/telemetry"
	"github.com/drone-control/dcb/internal/video"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dcb: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	log.Info().Str("version", version).Msg("Starting drone control bridge")

	if err := cfg.Media.EnsureMediaDirs(); err != nil {
		return fmt.Errorf("failed to prepare media directories: %w", err)
	}

	auditLogger, err := audit.NewLogger("logs")
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer func() {
		if err := auditLogger.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	sess := session.New()
	store := telemetry.NewStore()
	hub := telemetry.NewHub(store, log)

	link, err := drone.Dial(cfg.Drone, store, hub, log)
	if err != nil {
		return fmt.Errorf("failed to open device link: %w", err)
	}

	registry := stream.NewRegistry(log)
	streamServer := stream.NewServer(registry, cfg.CORSOrigin, log)

	supervisor := video.NewSupervisor(cfg.Drone, cfg.Media, cfg.Timing, sess, registry, log)

	orchestrator := command.NewOrchestrator(link, supervisor, sess, cfg.Timing, auditLogger, log)

	teardown := shutdown.NewOrchestrator(link, streamServer, supervisor, registry, hub, sess, cfg.Timing, log)

	authMiddleware := auth.NewMiddleware(cfg.Auth.Secret)
	if authMiddleware.Enabled() {
		log.Info().Msg("Bearer-token authentication enabled on control endpoints")
	}

	apiServer := api.NewServer(orchestrator, hub, supervisor, teardown.Shutdown, authMiddleware, cfg.CORSOrigin, log)

	serverErr := make(chan error, 2)
	go func() {
		if err := streamServer.Start(cfg.StreamAddr); err != nil {
			serverErr <- fmt.Errorf("stream server failed: %w", err)
		}
	}()
	go func() {
		if err := apiServer.Start(cfg.HTTPAddr); err != nil {
			serverErr <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("Signal received, shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server error, shutting down")
	case <-teardown.Done():
		// Shutdown requested through the API.
	}

	teardown.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.HTTPShutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Error stopping API server")
	}

	log.Info().Msg("Drone control bridge stopped")
	return nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	case "console":
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log output %q: %w", cfg.Output, err)
		}
		out = file
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
