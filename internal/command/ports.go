// Package command routes validated API intents to the device link and
// the video pipeline.
package command

import (
	"context"
	"time"
)

// DeviceLink is the minimal surface the orchestrator needs from the
// datagram link.
type DeviceLink interface {
	SendCommand(ctx context.Context, cmd string) (string, error)
	ArmMonitor(interval time.Duration)
}

// VideoSupervisor is the minimal surface the orchestrator needs from
// the video pipeline.
type VideoSupervisor interface {
	StartTranscoder() error
	TranscoderRunning() bool
	SetStreamActive(active bool)
}

// AuditLogger records the outcome of each command exchange.
type AuditLogger interface {
	LogAction(user, action, command, outcome string, latency time.Duration)
}
