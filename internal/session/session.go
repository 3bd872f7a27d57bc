// Package session holds the single device session state shared by the
// command orchestrator, the video supervisor, and the shutdown sequence.
package session

import "sync"

// Session tracks connection status and the last command issued to the
// device. There is exactly one Session per process; it is created at
// startup and injected, never reached through package globals.
type Session struct {
	mu          sync.Mutex
	connected   bool
	lastCommand string
}

// New creates an empty, disconnected session.
func New() *Session {
	return &Session{}
}

// SetConnected marks the device handshake result.
func (s *Session) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Connected reports whether the connect handshake succeeded.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetLastCommand records the most recent acknowledged command. The video
// supervisor consults it to decide whether a dead transcoder should be
// restarted ("streamon" keeps the restart policy armed).
func (s *Session) SetLastCommand(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = cmd
}

// LastCommand returns the most recent acknowledged command.
func (s *Session) LastCommand() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommand
}
