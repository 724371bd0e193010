// Package server exposes the orchestrator over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/core"
)

type Options struct {
	// MaxUploadBytes bounds multipart uploads; zero means 32 MiB.
	MaxUploadBytes int64
	// Stream is the default for chat requests that do not say.
	Stream bool
}

type Server struct {
	orch      *chat.Orchestrator
	maxUpload int64
	stream    bool
}

func New(orch *chat.Orchestrator, opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Server{orch: orch, maxUpload: maxUpload, stream: opts.Stream}
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/ocr", s.handleOCR)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions", s.handleClearHistory)
	mux.HandleFunc("GET /api/sessions/{name}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{name}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{name}/activate", s.handleActivateSession)
	mux.HandleFunc("POST /api/sessions/{name}/reset", s.handleResetSession)
	mux.HandleFunc("PATCH /api/sessions/{name}", s.handleRenameSession)

	mux.HandleFunc("GET /ws/chat", s.handleChatWebSocket)

	return withRequestID(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.orch.State().String(),
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration", time.Since(start),
		)
	})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorResponse(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the error taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound  *core.NotFoundError
		ingestErr *core.IngestError
		transport *core.TransportError
	)

	switch {
	case errors.As(err, &notFound):
		errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyAction):
		errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ingestErr):
		errorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &transport):
		errorResponse(w, http.StatusBadGateway, err.Error())
	default:
		slog.Error("request failed", "error", err)
		errorResponse(w, http.StatusInternalServerError, "internal server error")
	}
}
