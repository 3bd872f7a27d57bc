package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/drone-control/dcb/internal/video"
)

// RegisterRoutes registers all endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		if s.authMiddleware == nil {
			return h
		}
		return s.authMiddleware.RequireAuth(h)
	}

	mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	mux.HandleFunc("/drone-state-stream", s.withCORS(s.handleStateStream))

	// /drone/shutdown is more specific than /drone/ and wins routing.
	mux.HandleFunc("/drone/shutdown", s.withCORS(protect(s.handleShutdown)))
	mux.HandleFunc("/drone/", s.withCORS(protect(s.handleDroneCommand)))

	mux.HandleFunc("/capture-photo", s.withCORS(protect(s.handleCapturePhoto)))
	mux.HandleFunc("/start-recording", s.withCORS(protect(s.handleStartRecording)))
	mux.HandleFunc("/stop-recording", s.withCORS(protect(s.handleStopRecording)))
}

// withCORS applies the configured cross-origin policy and answers
// preflight requests.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.corsOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// handleDroneCommand handles GET /drone/{command}: the command text is
// relayed verbatim, with connect and stream commands applying their
// session side effects.
func (s *Server) handleDroneCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	cmd := strings.TrimPrefix(r.URL.Path, "/drone/")
	if cmd == "" || strings.Contains(cmd, "/") {
		writeError(w, http.StatusNotFound, "Unknown command path")
		return
	}

	var (
		result interface{}
		err    error
	)
	switch cmd {
	case "command":
		result, err = s.commands.Connect(r.Context())
	case "streamon":
		result, err = s.commands.StreamOn(r.Context())
	case "streamoff":
		result, err = s.commands.StreamOff(r.Context())
	default:
		result, err = s.commands.Forward(r.Context(), cmd)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleStateStream handles GET /drone-state-stream as a long-lived
// server-sent events subscription.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	if err := s.telemetry.ServeSSE(w, r); err != nil {
		s.log.Error().Err(err).Msg("State stream ended with error")
	}
}

// handleCapturePhoto handles POST /capture-photo.
func (s *Server) handleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	fileName, timestamp, err := s.media.CapturePhoto()
	if err != nil {
		if errors.Is(err, video.ErrStreamNotActive) {
			writeError(w, http.StatusBadRequest, "Video stream not active")
			return
		}
		s.log.Error().Err(err).Msg("Failed to capture photo")
		writeError(w, http.StatusInternalServerError, "Failed to capture photo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fileName":  fileName,
		"timestamp": timestamp,
	})
}

// handleStartRecording handles POST /start-recording.
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	if err := s.media.StartRecording(); err != nil {
		switch {
		case errors.Is(err, video.ErrRecordingActive):
			writeError(w, http.StatusBadRequest, "Recording already in progress")
		case errors.Is(err, video.ErrStreamNotActive):
			writeError(w, http.StatusBadRequest, "Video stream not active")
		default:
			s.log.Error().Err(err).Msg("Failed to start recording")
			writeError(w, http.StatusInternalServerError, "Failed to initialize recorder")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Recording started successfully",
	})
}

// handleStopRecording handles POST /stop-recording.
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	fileName, err := s.media.StopRecording()
	if err != nil {
		if errors.Is(err, video.ErrNoRecording) {
			writeError(w, http.StatusBadRequest, "No active recording")
			return
		}
		s.log.Error().Err(err).Msg("Failed to stop recording")
		writeError(w, http.StatusInternalServerError, "Failed to stop recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"message":  "Recording stopped",
		"fileName": fileName,
	})
}

// handleShutdown handles POST /drone/shutdown: the response is sent
// before the teardown starts.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Shutdown initiated",
	})

	if s.shutdown != nil {
		go s.shutdown()
	}
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptimeSec": time.Since(s.startTime).Seconds(),
	})
}
