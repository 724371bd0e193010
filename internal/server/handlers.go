package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/ingest"
)

// handleChat accepts either a JSON chatRequest or a multipart form with "text", "session",
// "stream" fields and an optional "file". Streaming replies are sent as newline-delimited JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, artifact, err := s.parseChatRequest(w, r)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	stream := s.stream
	if req.Stream != nil {
		stream = *req.Stream
	}

	action := chat.Action{Session: req.Session, Text: req.Text, Artifact: artifact, Stream: stream}
	if !stream {
		outcome, err := s.orch.Submit(r.Context(), action, nil)
		if err != nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if outcome.Err != nil {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, toChatResponse(outcome))
		return
	}

	s.streamChat(w, r, action)
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, action chat.Action) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	outcome, err := s.orch.Submit(r.Context(), action, func(fragment string) bool {
		if err := enc.Encode(map[string]string{"fragment": fragment}); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	})
	if err != nil {
		writeError(w, err)
		return
	}

	_ = enc.Encode(struct {
		Done bool `json:"done"`
		chatResponse
	}{Done: true, chatResponse: toChatResponse(outcome)})
}

func (s *Server) parseChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, *ingest.Artifact, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return chatRequest{}, nil, errors.New("invalid JSON body")
		}
		return req, nil, nil
	}

	artifact, err := s.readUpload(w, r, false)
	if err != nil {
		return chatRequest{}, nil, err
	}

	req := chatRequest{
		Text:    r.FormValue("text"),
		Session: r.FormValue("session"),
	}
	if raw := r.FormValue("stream"); raw != "" {
		stream, err := strconv.ParseBool(raw)
		if err != nil {
			return chatRequest{}, nil, fmt.Errorf("invalid stream value %q", raw)
		}
		req.Stream = &stream
	}
	return req, artifact, nil
}

// readUpload parses the multipart form and returns the "file" part, or nil when absent and not
// required.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, required bool) (*ingest.Artifact, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) && !required {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file is required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	artifact := ingest.NewArtifact(header.Filename, data)
	if artifact.Kind == ingest.KindUnknown {
		artifact.Kind = ingest.KindFromMIME(header.Header.Get("Content-Type"))
	}
	return &artifact, nil
}

// handleOCR extracts text from an upload without touching any session. With ?summarize=true the
// model also summarises the text.
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.readUpload(w, r, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ocrResponse{Error: err.Error()})
		return
	}

	summarize, _ := strconv.ParseBool(r.URL.Query().Get("summarize"))
	if !summarize {
		text, err := s.orch.Ingest(r.Context(), *artifact)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ocrResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, ocrResponse{ExtractedText: text})
		return
	}

	text, reply, err := s.orch.Summarize(r.Context(), *artifact)
	switch {
	case text == "" && err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, ocrResponse{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusBadGateway, ocrResponse{ExtractedText: text, Error: "summary failed: " + err.Error()})
	default:
		writeJSON(w, http.StatusOK, ocrResponse{ExtractedText: text, AISummary: reply.Content})
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query != "" {
		writeJSON(w, http.StatusOK, toSessionsResponse(s.orch.Search(query)))
		return
	}
	writeJSON(w, http.StatusOK, toSessionsResponse(s.orch.Sessions()))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errorResponse(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	name, err := s.orch.NewChat(r.Context(), req.Name)
	if !writeSessionResult(w, http.StatusCreated, sessionResult{Name: name}, err) {
		writeError(w, err)
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	err := s.orch.ClearHistory(r.Context())
	if !writeSessionResult(w, http.StatusNoContent, sessionResult{}, err) {
		writeError(w, err)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	turns, err := s.orch.Transcript(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Name: name, Turns: turns})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.orch.Delete(r.Context(), r.PathValue("name"))
	if !writeSessionResult(w, http.StatusNoContent, sessionResult{}, err) {
		writeError(w, err)
	}
}

func (s *Server) handleActivateSession(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := s.orch.Activate(r.Context(), name)
	if !writeSessionResult(w, http.StatusOK, sessionResult{Active: name}, err) {
		writeError(w, err)
	}
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	err := s.orch.ResetSession(r.Context(), r.PathValue("name"))
	if !writeSessionResult(w, http.StatusNoContent, sessionResult{}, err) {
		writeError(w, err)
	}
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		errorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	name, err := s.orch.Rename(r.Context(), r.PathValue("name"), req.Name)
	if !writeSessionResult(w, http.StatusOK, sessionResult{Name: name}, err) {
		writeError(w, err)
	}
}

// writeSessionResult answers a session operation that took effect in memory. A failed history
// write is reported as persist_error next to the result, and a 204 becomes a 200 so the field
// has a body to travel in. It returns false when err is anything else and nothing was written.
func writeSessionResult(w http.ResponseWriter, status int, result sessionResult, err error) bool {
	var persistErr *core.PersistenceError
	switch {
	case err == nil:
	case errors.As(err, &persistErr):
		result.PersistError = persistErr.Error()
		if status == http.StatusNoContent {
			status = http.StatusOK
		}
	default:
		return false
	}

	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return true
	}
	writeJSON(w, status, result)
	return true
}
