package video

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drone-control/dcb/internal/config"
	"github.com/drone-control/dcb/internal/session"
)

var (
	// ErrStreamNotActive is returned when an operation needs the live
	// video pipeline and it is not running.
	ErrStreamNotActive = errors.New("video stream not active")

	// ErrRecordingActive is returned when a recording is already in
	// progress.
	ErrRecordingActive = errors.New("recording already in progress")

	// ErrNoRecording is returned when stopping without an active
	// recording.
	ErrNoRecording = errors.New("no active recording")

	// ErrRecorderUnavailable is returned when the recorder subprocess
	// could not be brought to a writable state.
	ErrRecorderUnavailable = errors.New("recorder input not writable")
)

// ChunkSink receives transcoder output chunks for fan-out.
type ChunkSink interface {
	Broadcast(chunk []byte)
}

// Supervisor owns zero-or-one live transcoder and zero-or-one recorder
// subprocess and moves bytes between them and the subscribers.
type Supervisor struct {
	drone   config.DroneConfig
	media   config.MediaConfig
	timing  config.TimingConfig
	session *session.Session
	sink    ChunkSink
	log     zerolog.Logger

	// execCommand is the subprocess factory; tests swap it out.
	execCommand func(name string, arg ...string) *exec.Cmd

	mu           sync.Mutex
	transcoder   *exec.Cmd
	streamActive bool
	restarts     int
	stopped      bool

	recorder        *exec.Cmd
	recorderIn      io.WriteCloser
	recordingActive bool
	recordingPath   string
}

// NewSupervisor creates a supervisor with no subprocesses running.
func NewSupervisor(drone config.DroneConfig, media config.MediaConfig, timing config.TimingConfig, sess *session.Session, sink ChunkSink, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		drone:       drone,
		media:       media,
		timing:      timing,
		session:     sess,
		sink:        sink,
		log:         log.With().Str("component", "video").Logger(),
		execCommand: exec.Command,
	}
}

// StartTranscoder launches the live transcoder. Starting while one
// already exists is a no-op. A fresh explicit start resets the
// automatic-restart counter.
func (s *Supervisor) StartTranscoder() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts = 0
	return s.startTranscoderLocked()
}

// startTranscoderLocked launches the subprocess; caller holds s.mu.
func (s *Supervisor) startTranscoderLocked() error {
	if s.stopped {
		return nil
	}
	if s.transcoder != nil {
		s.log.Debug().Msg("Transcoder already running")
		return nil
	}

	cmd := s.execCommand(s.media.FFmpegPath, transcoderArgs(s.drone, s.media)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open transcoder output: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open transcoder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		s.scheduleRestartLocked()
		return fmt.Errorf("failed to start transcoder: %w", err)
	}

	s.transcoder = cmd
	s.log.Info().Int("pid", cmd.Process.Pid).Msg("Transcoder started")

	go s.logProcessErrors("transcoder", stderr)
	go s.routeOutput(stdout)
	go s.reapTranscoder(cmd)

	return nil
}

// reapTranscoder waits for the subprocess and applies the restart
// policy: fixed delay, retried while the last intended command is still
// "streamon", optionally capped by TranscoderRestartMax (0 = no cap).
func (s *Supervisor) reapTranscoder(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.transcoder != cmd {
		// Superseded or already cleaned up during shutdown.
		s.mu.Unlock()
		return
	}
	s.transcoder = nil

	if err != nil {
		s.log.Error().Err(err).Msg("Transcoder exited")
	} else {
		s.log.Info().Msg("Transcoder exited cleanly")
	}

	s.scheduleRestartLocked()
	s.mu.Unlock()
}

// scheduleRestartLocked arms one delayed restart attempt if the intent
// is still streaming; caller holds s.mu.
func (s *Supervisor) scheduleRestartLocked() {
	if s.stopped || s.session.LastCommand() != "streamon" {
		return
	}
	if max := s.timing.TranscoderRestartMax; max > 0 && s.restarts >= max {
		s.log.Error().Int("attempts", s.restarts).Msg("Transcoder restart cap reached")
		return
	}
	s.restarts++

	s.log.Info().Dur("delay", s.timing.TranscoderRestartDelay).Msg("Scheduling transcoder restart")
	time.AfterFunc(s.timing.TranscoderRestartDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.startTranscoderLocked(); err != nil {
			s.log.Error().Err(err).Msg("Transcoder restart failed")
		}
	})
}

// routeOutput reads transcoder stdout and routes each chunk: broadcast
// to subscribers while streaming is active, teed to the recorder while
// recording is active. A recorder write failure tears down only the
// recording; the live broadcast continues.
func (s *Supervisor) routeOutput(stdout io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.route(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *Supervisor) route(chunk []byte) {
	s.mu.Lock()
	active := s.streamActive
	recording := s.recordingActive
	recorderIn := s.recorderIn
	s.mu.Unlock()

	if !active {
		return
	}

	s.sink.Broadcast(chunk)

	if recording && recorderIn != nil {
		if _, err := recorderIn.Write(chunk); err != nil {
			s.log.Error().Err(err).Msg("Failed to write to recorder, stopping recording")
			s.clearFailedRecorder(recorderIn)
		}
	}
}

// clearFailedRecorder ends the recorder's input and clears recording
// state after a write failure. The subprocess itself is left to finish
// whatever it already received; its reaper does the final cleanup.
func (s *Supervisor) clearFailedRecorder(recorderIn io.WriteCloser) {
	_ = recorderIn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorderIn != recorderIn {
		return
	}
	s.recorder = nil
	s.recorderIn = nil
	s.recordingActive = false
	s.recordingPath = ""
}

// SetStreamActive marks whether chunks should be delivered to
// subscribers.
func (s *Supervisor) SetStreamActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamActive = active
}

// StreamActive reports whether live fan-out is enabled.
func (s *Supervisor) StreamActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamActive
}

// TranscoderRunning reports whether a transcoder subprocess exists.
func (s *Supervisor) TranscoderRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcoder != nil
}

// RecordingActive reports whether a recording is in progress.
func (s *Supervisor) RecordingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingActive
}

// StartRecording ensures the recorder subprocess exists and marks
// recording active. Frames are only ever sourced from the live
// transcode, so this fails while no transcoder subprocess exists.
func (s *Supervisor) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordingActive {
		return ErrRecordingActive
	}
	if s.transcoder == nil {
		return ErrStreamNotActive
	}

	if s.recorder == nil {
		if err := s.startRecorderLocked(); err != nil {
			return err
		}
	}
	if s.recorderIn == nil {
		return ErrRecorderUnavailable
	}

	s.recordingActive = true
	s.log.Info().Str("file", filepath.Base(s.recordingPath)).Msg("Recording started")
	return nil
}

// startRecorderLocked launches the recorder subprocess; caller holds s.mu.
func (s *Supervisor) startRecorderLocked() error {
	outputPath := filepath.Join(s.media.RecordingsDir(), fmt.Sprintf("video_%d.mp4", time.Now().UnixMilli()))

	cmd := s.execCommand(s.media.FFmpegPath, recorderArgs(outputPath)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open recorder input: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open recorder stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	s.recorder = cmd
	s.recorderIn = stdin
	s.recordingPath = outputPath
	s.log.Info().Int("pid", cmd.Process.Pid).Str("file", filepath.Base(outputPath)).Msg("Recorder started")

	go s.logProcessErrors("recorder", stderr)
	go s.reapRecorder(cmd)

	return nil
}

// reapRecorder clears recording state when the subprocess exits. The
// recorder is never auto-restarted.
func (s *Supervisor) reapRecorder(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorder != cmd {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Recorder exited")
	}
	s.recorder = nil
	s.recorderIn = nil
	s.recordingActive = false
	s.recordingPath = ""
}

// StopRecording ends the recorder's input, terminates the subprocess,
// clears all recording state, and returns the recording's base name.
func (s *Supervisor) StopRecording() (string, error) {
	s.mu.Lock()
	if !s.recordingActive {
		s.mu.Unlock()
		return "", ErrNoRecording
	}

	fileName := filepath.Base(s.recordingPath)
	recorder := s.recorder
	recorderIn := s.recorderIn
	s.recorder = nil
	s.recorderIn = nil
	s.recordingActive = false
	s.recordingPath = ""
	s.mu.Unlock()

	if recorderIn != nil {
		_ = recorderIn.Close()
	}
	if recorder != nil && recorder.Process != nil {
		_ = recorder.Process.Kill()
	}

	s.log.Info().Str("file", fileName).Msg("Recording stopped")
	return fileName, nil
}

// CapturePhoto copies the transcoder's current still image to a new
// timestamped file and returns its name and timestamp. Fails while the
// stream is not active.
func (s *Supervisor) CapturePhoto() (string, int64, error) {
	s.mu.Lock()
	active := s.streamActive
	s.mu.Unlock()
	if !active {
		return "", 0, ErrStreamNotActive
	}

	timestamp := time.Now().UnixMilli()
	fileName := fmt.Sprintf("photo_%d.jpg", timestamp)

	if err := copyFile(s.media.CurrentFramePath(), filepath.Join(s.media.PhotosDir(), fileName)); err != nil {
		return "", 0, fmt.Errorf("failed to capture photo: %w", err)
	}

	s.log.Info().Str("file", fileName).Msg("Photo captured")
	return fileName, timestamp, nil
}

// Shutdown forcibly terminates both subprocesses, clears all pipeline
// state, and blocks any further restarts. Safe to call more than once.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.streamActive = false

	transcoder := s.transcoder
	s.transcoder = nil

	recorder := s.recorder
	recorderIn := s.recorderIn
	s.recorder = nil
	s.recorderIn = nil
	s.recordingActive = false
	s.recordingPath = ""
	s.mu.Unlock()

	if transcoder != nil && transcoder.Process != nil {
		_ = transcoder.Process.Kill()
	}
	if recorderIn != nil {
		_ = recorderIn.Close()
	}
	if recorder != nil && recorder.Process != nil {
		_ = recorder.Process.Kill()
	}
}

// logProcessErrors forwards subprocess stderr lines to the log.
func (s *Supervisor) logProcessErrors(name string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.log.Warn().Str("process", name).Msg(line)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
