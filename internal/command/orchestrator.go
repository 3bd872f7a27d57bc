package command

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/audit"
	"github.com/drone-control/dcb/internal/auth"
	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/drone"
	"github.com/drone-control/dcb/internal/session"
	"github.com/drone-control/dcb/internal/video"
)

// Compile-time assertions that the real implementations satisfy the ports.
var (
	_ DeviceLink      = (*drone.Link)(nil)
	_ VideoSupervisor = (*video.Supervisor)(nil)
	_ AuditLogger     = (*audit.Logger)(nil)
)

// Result is the outcome of a command exchange as presented to API
// consumers.
type Result struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// Orchestrator serializes command intents into the device link and
// applies their side effects on the session and video pipeline.
type Orchestrator struct {
	link    DeviceLink
	video   VideoSupervisor
	session *session.Session
	timing  config.TimingConfig
	audit   AuditLogger
	log     zerolog.Logger
}

// NewOrchestrator creates a command orchestrator.
func NewOrchestrator(link DeviceLink, vid VideoSupervisor, sess *session.Session, timing config.TimingConfig, auditLog AuditLogger, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		link:    link,
		video:   vid,
		session: sess,
		timing:  timing,
		audit:   auditLog,
		log:     log.With().Str("component", "command").Logger(),
	}
}

// Connect enters command mode. The exact reply "ok" marks the session
// connected and arms periodic telemetry polling.
func (o *Orchestrator) Connect(ctx context.Context) (*Result, error) {
	start := time.Now()

	reply, err := o.link.SendCommand(ctx, "command")
	if err != nil {
		o.logAudit(ctx, "connect", "command", "ERROR", time.Since(start))
		return nil, err
	}

	status := "failed"
	if reply == "ok" {
		status = "connected"
		o.session.SetConnected(true)
		o.link.ArmMonitor(o.timing.MonitorInterval)
	}

	o.logAudit(ctx, "connect", "command", reply, time.Since(start))
	return &Result{Status: status, Response: reply}, nil
}

// StreamOn requests the device video feed. On the exact reply "ok" the
// transcoder is launched if absent and live fan-out is enabled.
func (o *Orchestrator) StreamOn(ctx context.Context) (*Result, error) {
	start := time.Now()

	reply, err := o.link.SendCommand(ctx, "streamon")
	if err != nil {
		o.logAudit(ctx, "streamOn", "streamon", "ERROR", time.Since(start))
		return nil, err
	}

	if reply == "ok" {
		if !o.video.TranscoderRunning() {
			if startErr := o.video.StartTranscoder(); startErr != nil {
				o.log.Error().Err(startErr).Msg("Failed to start transcoder")
			}
		}
		o.session.SetLastCommand("streamon")
		o.video.SetStreamActive(true)
	}

	o.logAudit(ctx, "streamOn", "streamon", reply, time.Since(start))
	return &Result{Status: "ok", Response: reply}, nil
}

// StreamOff asks the device to stop sending video. The transcoder is
// left running; only the recorded intent changes, which disables the
// automatic restart policy.
func (o *Orchestrator) StreamOff(ctx context.Context) (*Result, error) {
	start := time.Now()

	reply, err := o.link.SendCommand(ctx, "streamoff")
	if err != nil {
		o.logAudit(ctx, "streamOff", "streamoff", "ERROR", time.Since(start))
		return nil, err
	}

	o.session.SetLastCommand("streamoff")

	o.logAudit(ctx, "streamOff", "streamoff", reply, time.Since(start))
	return &Result{Status: "ok", Response: reply}, nil
}

// Forward relays any other control command verbatim and records it as
// the session's last command.
func (o *Orchestrator) Forward(ctx context.Context, cmd string) (*Result, error) {
	start := time.Now()

	reply, err := o.link.SendCommand(ctx, cmd)
	if err != nil {
		o.logAudit(ctx, "forward", cmd, "ERROR", time.Since(start))
		return nil, err
	}

	o.session.SetLastCommand(cmd)

	o.logAudit(ctx, "forward", cmd, reply, time.Since(start))
	return &Result{Status: "ok", Response: reply}, nil
}

func (o *Orchestrator) logAudit(ctx context.Context, action, cmd, outcome string, latency time.Duration) {
	if o.audit == nil {
		return
	}
	o.audit.LogAction(auth.Subject(ctx), action, cmd, outcome, latency)
}
