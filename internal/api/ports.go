// Package api exposes the HTTP surface: command relay, telemetry
// stream, media capture, and shutdown.
package api

import (
	"context"
	"net/http"

	"github.com/drone-control/dcb/internal/command"
	"github.com/drone-control/dcb/internal/telemetry"
	"github.com/drone-control/dcb/internal/video"
)

// CommandPort is the surface the API needs from the command
// orchestrator.
type CommandPort interface {
	Connect(ctx context.Context) (*command.Result, error)
	StreamOn(ctx context.Context) (*command.Result, error)
	StreamOff(ctx context.Context) (*command.Result, error)
	Forward(ctx context.Context, cmd string) (*command.Result, error)
}

// TelemetryPort serves the live state stream.
type TelemetryPort interface {
	ServeSSE(w http.ResponseWriter, r *http.Request) error
}

// MediaPort is the surface the API needs from the video pipeline.
type MediaPort interface {
	CapturePhoto() (fileName string, timestamp int64, err error)
	StartRecording() error
	StopRecording() (fileName string, err error)
}

// ShutdownFunc triggers the orchestrated teardown.
type ShutdownFunc func()

// Compile-time assertions that the real implementations satisfy the ports.
var (
	_ CommandPort   = (*command.Orchestrator)(nil)
	_ TelemetryPort = (*telemetry.Hub)(nil)
	_ MediaPort     = (*video.Supervisor)(nil)
)
