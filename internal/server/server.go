// Package server exposes the session control API over HTTP. The endpoints
// are a thin layer over the orchestrator and the activity analyzers; all
// session semantics live in internal/session.
//
//	POST /sessions/start       — begin a new voice session
//	POST /sessions/end         — end the active session
//	POST /sessions/mute        — toggle the microphone mute
//	GET  /sessions/status      — lifecycle status of the orchestrator
//	GET  /sessions/transcripts — accumulated transcripts
//	GET  /audio/frame          — latest capture/playback activity frames
//
// Health probes and the Prometheus scrape endpoint are mounted alongside.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loquihq/loqui/internal/health"
	"github.com/loquihq/loqui/internal/observe"
	"github.com/loquihq/loqui/internal/session"
	"github.com/loquihq/loqui/pkg/audio/activity"
)

// Server handles the HTTP control API for one orchestrator.
type Server struct {
	orch     *session.Orchestrator
	capture  *activity.Analyzer
	playback *activity.Analyzer
	health   *health.Handler
	metrics  *observe.Metrics
}

// Config wires the server's collaborators. Orchestrator is required; nil
// analyzers disable the corresponding half of /audio/frame, and a nil
// health handler serves probes with no checkers.
type Config struct {
	Orchestrator *session.Orchestrator
	Capture      *activity.Analyzer
	Playback     *activity.Analyzer
	Health       *health.Handler
	Metrics      *observe.Metrics
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("server: config needs an orchestrator")
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{
		orch:     cfg.Orchestrator,
		capture:  cfg.Capture,
		playback: cfg.Playback,
		health:   cfg.Health,
		metrics:  cfg.Metrics,
	}, nil
}

// Handler returns the full route set wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/start", s.handleStart)
	mux.HandleFunc("POST /sessions/end", s.handleEnd)
	mux.HandleFunc("POST /sessions/mute", s.handleMute)
	mux.HandleFunc("GET /sessions/status", s.handleStatus)
	mux.HandleFunc("GET /sessions/transcripts", s.handleTranscripts)
	mux.HandleFunc("GET /audio/frame", s.handleAudioFrame)
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// startRequest is the JSON body for the start endpoint.
type startRequest struct {
	TrackKind          string `json:"track_kind"`
	ScenarioLabel      string `json:"scenario_label"`
	SystemInstructions string `json:"system_instructions"`
	VoiceID            string `json:"voice_id"`
}

// startResponse is the JSON body returned from the start endpoint.
type startResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// handleStart handles POST /sessions/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackKind == "" {
		http.Error(w, "track_kind is required", http.StatusBadRequest)
		return
	}

	err := s.orch.Start(r.Context(), session.StartConfig{
		TrackKind:          req.TrackKind,
		ScenarioLabel:      req.ScenarioLabel,
		SystemInstructions: req.SystemInstructions,
		VoiceID:            req.VoiceID,
	})
	switch {
	case errors.Is(err, session.ErrSessionActive):
		http.Error(w, "a session is already active", http.StatusConflict)
		return
	case err != nil:
		observe.Logger(r.Context()).Error("session start failed", "error", err)
		http.Error(w, "failed to start session: "+err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, startResponse{
		SessionID: s.orch.SessionID(),
		Status:    s.orch.Status().String(),
	})
}

// statusResponse is the JSON body for status, end, and mute responses.
type statusResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status"`
	Muted     bool   `json:"muted"`
}

// handleEnd handles POST /sessions/end.
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.End(r.Context()); err != nil {
		observe.Logger(r.Context()).Error("session end failed", "error", err)
		http.Error(w, "failed to end session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: s.orch.SessionID(),
		Status:    s.orch.Status().String(),
		Muted:     s.orch.Muted(),
	})
}

// handleMute handles POST /sessions/mute.
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	if s.orch.Status() != session.StatusConnected {
		http.Error(w, "no connected session", http.StatusConflict)
		return
	}
	muted := s.orch.ToggleMute()
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: s.orch.SessionID(),
		Status:    s.orch.Status().String(),
		Muted:     muted,
	})
}

// handleStatus handles GET /sessions/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		SessionID: s.orch.SessionID(),
		Status:    s.orch.Status().String(),
		Muted:     s.orch.Muted(),
	})
}

// transcriptsResponse is the JSON body for the transcripts endpoint.
type transcriptsResponse struct {
	SessionID      string `json:"session_id,omitempty"`
	UserTranscript string `json:"user_transcript"`
	AITranscript   string `json:"ai_transcript"`
}

// handleTranscripts handles GET /sessions/transcripts.
func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transcriptsResponse{
		SessionID:      s.orch.SessionID(),
		UserTranscript: s.orch.UserTranscript(),
		AITranscript:   s.orch.AITranscript(),
	})
}

// frameJSON is one analyzer frame as exposed over the API.
type frameJSON struct {
	Level  float64 `json:"level"`
	Low    float64 `json:"low"`
	Mid    float64 `json:"mid"`
	High   float64 `json:"high"`
	Active bool    `json:"active"`
}

func toFrameJSON(f activity.Frame) frameJSON {
	return frameJSON{
		Level:  f.Level,
		Low:    f.Bands.Low,
		Mid:    f.Bands.Mid,
		High:   f.Bands.High,
		Active: f.Active,
	}
}

// audioFrameResponse is the JSON body for the audio frame endpoint.
type audioFrameResponse struct {
	Capture  *frameJSON `json:"capture,omitempty"`
	Playback *frameJSON `json:"playback,omitempty"`
}

// handleAudioFrame handles GET /audio/frame. It returns the analyzers'
// latest frames without forcing a tick; the polling loops keep them fresh.
func (s *Server) handleAudioFrame(w http.ResponseWriter, _ *http.Request) {
	var resp audioFrameResponse
	if s.capture != nil {
		f := toFrameJSON(s.capture.Frame())
		resp.Capture = &f
	}
	if s.playback != nil {
		f := toFrameJSON(s.playback.Frame())
		resp.Playback = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "error", err)
	}
}
