package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/session"
)

// stubLink scripts command replies and records what was sent.
type stubLink struct {
	replies map[string]string
	sendErr error
	sent    []string
	armed   []time.Duration
}

func (s *stubLink) SendCommand(_ context.Context, cmd string) (string, error) {
	s.sent = append(s.sent, cmd)
	if s.sendErr != nil {
		return "", s.sendErr
	}
	if reply, ok := s.replies[cmd]; ok {
		return reply, nil
	}
	return "ok", nil
}

func (s *stubLink) ArmMonitor(interval time.Duration) {
	s.armed = append(s.armed, interval)
}

// stubVideo records pipeline calls.
type stubVideo struct {
	running      bool
	startErr     error
	starts       int
	activeStates []bool
}

func (s *stubVideo) StartTranscoder() error {
	s.starts++
	if s.startErr == nil {
		s.running = true
	}
	return s.startErr
}

func (s *stubVideo) TranscoderRunning() bool { return s.running }

func (s *stubVideo) SetStreamActive(active bool) {
	s.activeStates = append(s.activeStates, active)
}

// stubAudit records audit calls.
type auditCall struct {
	user, action, command, outcome string
}

type stubAudit struct {
	calls []auditCall
}

func (s *stubAudit) LogAction(user, action, command, outcome string, _ time.Duration) {
	s.calls = append(s.calls, auditCall{user, action, command, outcome})
}

func newTestOrchestrator(link *stubLink, vid *stubVideo, auditLog *stubAudit) (*Orchestrator, *session.Session) {
	sess := session.New()
	timing := config.TimingConfig{MonitorInterval: 10 * time.Second}
	return NewOrchestrator(link, vid, sess, timing, auditLog, zerolog.Nop()), sess
}

func TestConnectOK(t *testing.T) {
	link := &stubLink{replies: map[string]string{"command": "ok"}}
	auditLog := &stubAudit{}
	o, sess := newTestOrchestrator(link, &stubVideo{}, auditLog)

	result, err := o.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "connected", result.Status)
	assert.Equal(t, "ok", result.Response)
	assert.True(t, sess.Connected())
	assert.Equal(t, []string{"command"}, link.sent)
	assert.Equal(t, []time.Duration{10 * time.Second}, link.armed)

	require.Len(t, auditLog.calls, 1)
	assert.Equal(t, auditCall{"", "connect", "command", "ok"}, auditLog.calls[0])
}

func TestConnectNonOKLeavesMonitorDisarmed(t *testing.T) {
	link := &stubLink{replies: map[string]string{"command": "error"}}
	o, sess := newTestOrchestrator(link, &stubVideo{}, &stubAudit{})

	result, err := o.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, "error", result.Response)
	assert.False(t, sess.Connected())
	assert.Empty(t, link.armed)
}

func TestConnectSendError(t *testing.T) {
	link := &stubLink{sendErr: errors.New("socket closed")}
	auditLog := &stubAudit{}
	o, sess := newTestOrchestrator(link, &stubVideo{}, auditLog)

	_, err := o.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, sess.Connected())
	assert.Empty(t, link.armed)

	require.Len(t, auditLog.calls, 1)
	assert.Equal(t, "ERROR", auditLog.calls[0].outcome)
}

func TestStreamOnStartsTranscoder(t *testing.T) {
	link := &stubLink{}
	vid := &stubVideo{}
	o, sess := newTestOrchestrator(link, vid, &stubAudit{})

	result, err := o.StreamOn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, 1, vid.starts)
	assert.Equal(t, []bool{true}, vid.activeStates)
	assert.Equal(t, "streamon", sess.LastCommand())
}

func TestStreamOnSkipsRunningTranscoder(t *testing.T) {
	vid := &stubVideo{running: true}
	o, _ := newTestOrchestrator(&stubLink{}, vid, &stubAudit{})

	_, err := o.StreamOn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, vid.starts)
	assert.Equal(t, []bool{true}, vid.activeStates)
}

func TestStreamOnNonOKHasNoSideEffects(t *testing.T) {
	link := &stubLink{replies: map[string]string{"streamon": "error"}}
	vid := &stubVideo{}
	o, sess := newTestOrchestrator(link, vid, &stubAudit{})

	result, err := o.StreamOn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "error", result.Response)
	assert.Equal(t, 0, vid.starts)
	assert.Empty(t, vid.activeStates)
	assert.Empty(t, sess.LastCommand())
}

func TestStreamOffRecordsIntentOnly(t *testing.T) {
	vid := &stubVideo{running: true}
	o, sess := newTestOrchestrator(&stubLink{}, vid, &stubAudit{})

	result, err := o.StreamOff(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "streamoff", sess.LastCommand())
	// The pipeline is untouched: fan-out stays in whatever state it was.
	assert.True(t, vid.running)
	assert.Empty(t, vid.activeStates)
	assert.Equal(t, 0, vid.starts)
}

func TestForwardSetsLastCommand(t *testing.T) {
	link := &stubLink{replies: map[string]string{"takeoff": "ok"}}
	auditLog := &stubAudit{}
	o, sess := newTestOrchestrator(link, &stubVideo{}, auditLog)

	result, err := o.Forward(context.Background(), "takeoff")
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "takeoff", sess.LastCommand())

	require.Len(t, auditLog.calls, 1)
	assert.Equal(t, "forward", auditLog.calls[0].action)
	assert.Equal(t, "takeoff", auditLog.calls[0].command)
}

func TestForwardSendError(t *testing.T) {
	link := &stubLink{sendErr: errors.New("send failed")}
	o, sess := newTestOrchestrator(link, &stubVideo{}, &stubAudit{})

	_, err := o.Forward(context.Background(), "land")
	require.Error(t, err)
	assert.Empty(t, sess.LastCommand())
}
