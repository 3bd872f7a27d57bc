package drone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/telemetry"
)

// ErrClosed is returned by SendCommand after the link has been closed.
var ErrClosed = errors.New("device link closed")

// Link is the command/telemetry channel to the device.
type Link struct {
	conn  *net.UDPConn
	store *telemetry.Store
	hub   *telemetry.Hub
	log   zerolog.Logger

	// cmdMu serializes SendCommand callers: one command in flight, FIFO.
	cmdMu sync.Mutex

	mu      sync.Mutex
	pending chan string
	monitor chan struct{}
	closed  bool

	wg sync.WaitGroup
}

// Dial opens the datagram socket to the device and starts the inbound
// read loop.
func Dial(cfg config.DroneConfig, store *telemetry.Store, hub *telemetry.Hub, log zerolog.Logger) (*Link, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.CommandPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device address: %w", err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open device socket: %w", err)
	}

	l := &Link{
		conn:  conn,
		store: store,
		hub:   hub,
		log:   log.With().Str("component", "drone").Logger(),
	}

	l.wg.Add(1)
	go l.readLoop()

	return l, nil
}

// SendCommand sends one text command and waits for the device's next
// acknowledgement datagram, trimmed of whitespace. Callers are
// serialized; a caller that needs a bound on the wait passes a context
// with a deadline. A send failure is a transport error surfaced to the
// caller and is never fatal to the process.
func (l *Link) SendCommand(ctx context.Context, cmd string) (string, error) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	ack := make(chan string, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	l.pending = ack
	l.mu.Unlock()

	if _, err := l.conn.Write([]byte(cmd)); err != nil {
		l.clearPending()
		return "", fmt.Errorf("failed to send %q to device: %w", cmd, err)
	}

	l.log.Debug().Str("command", cmd).Msg("Command sent")

	select {
	case resp := <-ack:
		return resp, nil
	case <-ctx.Done():
		l.clearPending()
		return "", fmt.Errorf("no acknowledgement for %q: %w", cmd, ctx.Err())
	}
}

// Emergency sends the safety command, waiting at most timeout for any
// acknowledgement. It bypasses command serialization: shutdown must not
// queue behind a pending command, so the datagram goes out immediately
// and the one-shot reply slot is taken over. A superseded command keeps
// waiting on its own context.
func (l *Link) Emergency(timeout time.Duration) error {
	ack := make(chan string, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.pending = ack
	l.mu.Unlock()

	if _, err := l.conn.Write([]byte("emergency")); err != nil {
		l.clearPending()
		return fmt.Errorf("failed to send emergency to device: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ack:
		l.log.Info().Str("response", resp).Msg("Emergency command acknowledged")
		return nil
	case <-timer.C:
		l.clearPending()
		return fmt.Errorf("no acknowledgement for emergency within %s", timeout)
	}
}

// Close shuts the datagram socket. The read loop exits; a pending
// SendCommand keeps waiting until its context is done.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	monitor := l.monitor
	l.monitor = nil
	l.mu.Unlock()

	if monitor != nil {
		close(monitor)
	}

	err := l.conn.Close()
	l.wg.Wait()
	return err
}

// readLoop classifies every inbound datagram: telemetry updates mutate
// the store and trigger a broadcast; anything else resolves the armed
// one-shot command handler.
func (l *Link) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 2048)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				l.log.Error().Err(err).Msg("Device socket read failed")
			}
			return
		}
		l.classify(strings.TrimSpace(string(buf[:n])))
	}
}

// classify routes one inbound payload. Priority order: numeric battery,
// speed ("cm/s"), flight time ("s"), then command acknowledgement.
func (l *Link) classify(payload string) {
	switch {
	case payload == "":
		return
	case isNumeric(payload):
		value, _ := strconv.ParseFloat(payload, 64)
		l.store.SetBattery(int(value))
		l.broadcast()
	case strings.Contains(payload, "cm/s"):
		l.store.SetSpeed(payload)
		l.broadcast()
	case strings.Contains(payload, "s"):
		l.store.SetTime(payload)
		l.broadcast()
	default:
		l.deliverAck(payload)
	}
	l.log.Debug().Str("payload", payload).Msg("Device datagram")
}

func (l *Link) broadcast() {
	l.hub.Broadcast(l.store.Snapshot())
}

// deliverAck resolves the one-shot handler armed by SendCommand, if any.
func (l *Link) deliverAck(payload string) {
	l.mu.Lock()
	ack := l.pending
	l.pending = nil
	l.mu.Unlock()

	if ack == nil {
		l.log.Warn().Str("payload", payload).Msg("Unmatched device acknowledgement")
		return
	}
	ack <- payload
}

func (l *Link) clearPending() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}

// isNumeric reports whether the payload parses entirely as a number.
func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
