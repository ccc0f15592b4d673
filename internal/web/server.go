// Package web is the HTTP surface over the agent core: a streaming chat
// endpoint, event-bus subscriptions over SSE, screenshot serving, config,
// status, and metrics. It consumes only the runtime handle.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Wick-Lim/helper/internal/events"
	"github.com/Wick-Lim/helper/internal/redact"
	"github.com/Wick-Lim/helper/internal/runtime"
	"github.com/Wick-Lim/helper/internal/store"
	"github.com/Wick-Lim/helper/internal/tools/browser"
	"github.com/Wick-Lim/helper/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// heartbeatInterval paces SSE liveness comments.
const heartbeatInterval = 15 * time.Second

// Server is the HTTP surface.
type Server struct {
	rt     *runtime.Runtime
	mux    *http.ServeMux
	logger *slog.Logger
}

// NewServer builds the surface over a runtime handle.
func NewServer(rt *runtime.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{rt: rt, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/events/{stream}", s.handleEvents)
	s.mux.HandleFunc("GET /api/screenshots/{id}", s.handleScreenshot)
	s.mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	s.mux.HandleFunc("GET /api/config", s.handleConfigGet)
	s.mux.HandleFunc("PUT /api/config/{key}", s.handleConfigPut)
	s.mux.HandleFunc("DELETE /api/config/{key}", s.handleConfigDelete)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.rt.Metrics.Gatherer(), promhttp.HandlerOpts{}))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http surface listening", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Images    []models.Image `json:"images,omitempty"`
}

// handleChat streams the agent run as SSE events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	stream, err := s.rt.RunChat(r.Context(), req.Message, req.SessionID, req.Images)
	if errors.Is(err, runtime.ErrTooManyRuns) {
		httpError(w, http.StatusTooManyRequests, "too many concurrent runs, retry later")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, redact.Message(err.Error()))
		return
	}

	flusher := startSSE(w)
	if flusher == nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			writeSSEComment(w, flusher, "heartbeat")
		case ev, ok := <-stream:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, string(ev.Type), ev)
		}
	}
}

// handleEvents subscribes the client to one bus stream over SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("stream")
	var stream events.Stream
	switch name {
	case "timeline":
		stream = events.StreamTimeline
	case "thoughts":
		stream = events.StreamThoughts
	case "tasks":
		stream = events.StreamTasks
	default:
		httpError(w, http.StatusNotFound, "unknown stream, use timeline, thoughts, or tasks")
		return
	}

	flusher := startSSE(w)
	if flusher == nil {
		return
	}

	sub := s.rt.Bus.Subscribe(r.Context(), stream)
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-sub:
			if !ok {
				return
			}
			if msg.Type == events.Heartbeat {
				writeSSEComment(w, flusher, "heartbeat")
				continue
			}
			writeSSEEvent(w, flusher, msg.Type, msg)
		}
	}
}

// handleScreenshot serves a stored browser screenshot by id.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path := browser.ScreenshotPath(s.rt.Config.ScreenshotDir(), id)
	if path == "" {
		httpError(w, http.StatusNotFound, "screenshot not found")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rt.Store.Timeline(r.Context(), 50)
	if err != nil {
		httpError(w, http.StatusInternalServerError, redact.Message(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string)
	for _, key := range store.ConfigKeys() {
		value, err := s.rt.Store.GetConfig(r.Context(), key)
		if err != nil {
			continue
		}
		out[key] = value
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.rt.Store.SetConfig(r.Context(), key, body.Value); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, _ := s.rt.Store.GetConfig(r.Context(), key)
	writeJSON(w, http.StatusOK, map[string]string{key: value})
}

func (s *Server) handleConfigDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Store.DeleteConfig(r.Context(), r.PathValue("key")); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	balance, _ := s.rt.Store.Balance(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"active_runs":      s.rt.ActiveRuns(),
		"survival_balance": balance,
		"usage":            s.rt.Usage.Snapshot(),
	})
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
