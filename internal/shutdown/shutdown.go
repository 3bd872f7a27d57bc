// Package shutdown runs the ordered teardown: polling stops first, the
// binary stream drains, a safety command goes to the device while it is
// still reachable, then sockets and subprocesses are released.
package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/drone"
	"github.com/drone-control/dcb/internal/session"
	"github.com/drone-control/dcb/internal/stream"
	"github.com/drone-control/dcb/internal/telemetry"
	"github.com/drone-control/dcb/internal/video"
)

// DeviceLink is the surface the teardown needs from the datagram link.
type DeviceLink interface {
	DisarmMonitor()
	Emergency(timeout time.Duration) error
	Close() error
}

// StreamServer drains and stops the binary stream listener.
type StreamServer interface {
	Stop(ctx context.Context) error
}

// VideoPipeline terminates the media subprocesses.
type VideoPipeline interface {
	Shutdown()
}

// SubscriberRegistry force-closes all binary subscribers.
type SubscriberRegistry interface {
	CloseAll()
}

// TelemetryHub drops all state-stream subscribers.
type TelemetryHub interface {
	Clear()
}

// Compile-time assertions that the real implementations satisfy the ports.
var (
	_ DeviceLink         = (*drone.Link)(nil)
	_ StreamServer       = (*stream.Server)(nil)
	_ VideoPipeline      = (*video.Supervisor)(nil)
	_ SubscriberRegistry = (*stream.Registry)(nil)
	_ TelemetryHub       = (*telemetry.Hub)(nil)
)

// Orchestrator executes the teardown exactly once. A step failure is
// logged and never stops the remaining steps.
type Orchestrator struct {
	link     DeviceLink
	streams  StreamServer
	video    VideoPipeline
	registry SubscriberRegistry
	hub      TelemetryHub
	session  *session.Session
	timing   config.TimingConfig
	log      zerolog.Logger

	once sync.Once
	done chan struct{}
}

// NewOrchestrator creates a shutdown orchestrator.
func NewOrchestrator(link DeviceLink, streams StreamServer, vid VideoPipeline, registry SubscriberRegistry, hub TelemetryHub, sess *session.Session, timing config.TimingConfig, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		link:     link,
		streams:  streams,
		video:    vid,
		registry: registry,
		hub:      hub,
		session:  sess,
		timing:   timing,
		log:      log.With().Str("component", "shutdown").Logger(),
		done:     make(chan struct{}),
	}
}

// Shutdown runs the teardown. Concurrent and repeated invocations are
// safe; only the first runs the steps, later callers return once the
// first run completes.
func (o *Orchestrator) Shutdown() {
	o.once.Do(func() {
		defer close(o.done)
		o.run()
	})
	<-o.done
}

// Done is closed when the teardown has completed.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) run() {
	o.log.Info().Msg("Starting graceful shutdown")

	o.step("stop telemetry polling", func() error {
		o.link.DisarmMonitor()
		return nil
	})

	o.step("stop stream server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), o.timing.StreamDrainTimeout)
		defer cancel()
		return o.streams.Stop(ctx)
	})

	// Safety command goes out while the socket is still open.
	if o.session.Connected() {
		o.step("send emergency command", func() error {
			return o.link.Emergency(o.timing.EmergencyTimeout)
		})
	}

	o.step("close device link", func() error {
		return o.link.Close()
	})

	o.step("terminate media pipeline", func() error {
		o.video.Shutdown()
		return nil
	})

	o.step("close binary subscribers", func() error {
		o.registry.CloseAll()
		return nil
	})

	o.step("drop state-stream subscribers", func() error {
		o.hub.Clear()
		return nil
	})

	o.log.Info().Msg("Graceful shutdown completed")
}

// step runs one teardown action, converting panics and errors into log
// entries so the sequence always continues.
func (o *Orchestrator) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("step", name).Msg("Shutdown step panicked")
		}
	}()

	if err := fn(); err != nil {
		o.log.Error().Err(err).Str("step", name).Msg("Shutdown step failed")
		return
	}
	o.log.Debug().Str("step", name).Msg("Shutdown step completed")
}
