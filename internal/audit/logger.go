// Package audit records every command forwarded to the drone as an
// append-only JSON Lines trail.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Command   string    `json:"command,omitempty"`
	Outcome   string    `json:"outcome"`
	LatencyMS int64     `json:"latencyMs"`
}

// Logger appends audit entries to a size-rotated JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
	now      func() time.Time
}

// NewLogger creates an audit logger writing to audit.jsonl under logDir.
// Rotation keeps a handful of compressed backups around.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")
	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			Compress:   true,
		},
		now: time.Now,
	}, nil
}

// LogAction records the outcome of one command exchange.
func (l *Logger) LogAction(user, action, command, outcome string, latency time.Duration) {
	if user == "" {
		user = "unknown"
	}
	l.writeEntry(Entry{
		Timestamp: l.now().UTC(),
		User:      user,
		Action:    action,
		Command:   command,
		Outcome:   outcome,
		LatencyMS: latency.Milliseconds(),
	})
}

func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}
	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// FilePath returns the path to the audit log file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}
