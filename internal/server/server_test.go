package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/ingest"
)

type fakeGateway struct {
	fragments []string
	err       error
}

func (g *fakeGateway) Complete(_ context.Context, _ []core.Turn) (core.Reply, error) {
	if g.err != nil {
		return core.Reply{}, g.err
	}
	return core.Reply{Content: strings.Join(g.fragments, "")}, nil
}

func (g *fakeGateway) Stream(_ context.Context, _ []core.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.err != nil {
			yield("", g.err)
			return
		}
		for _, fragment := range g.fragments {
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

func newTestServer(t *testing.T, gateway *fakeGateway) (*chat.Orchestrator, http.Handler) {
	t.Helper()

	ingestor := ingest.IngestorFunc(func(_ context.Context, artifact ingest.Artifact) (string, error) {
		return "extracted: " + string(artifact.Data), nil
	})
	orch := chat.New(conversation.NewStore(), gateway, ingestor, nil, chat.Options{
		Assembler: conversation.PromptAssembler{DocumentBudget: 6000},
	})
	return orch, New(orch, Options{MaxUploadBytes: 1 << 20}).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["state"] != "idle" {
		t.Fatalf("expected idle state, got %q", body["state"])
	}
}

func TestChatBatch(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"Hi", " there"}})

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "hello", "stream": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "Hi there" || !resp.Appended {
		t.Fatalf("unexpected response: %+v", resp)
	}

	turns, err := orch.Transcript(resp.Session)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
}

func TestChatRejectsEmptyText(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatTransportFailure(t *testing.T) {
	gateway := &fakeGateway{err: &core.TransportError{Op: "chat", Err: context.DeadlineExceeded}}
	_, handler := newTestServer(t, gateway)

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "hello", "stream": false})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.Reply, chat.TransportErrorPrefix) || resp.Error == "" {
		t.Fatalf("expected synthetic error turn, got %+v", resp)
	}
}

func TestChatStreamNDJSON(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{fragments: []string{"a", "b", "c"}})

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "hello", "stream": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var fragments []string
	var done map[string]any
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		if fragment, ok := line["fragment"].(string); ok {
			fragments = append(fragments, fragment)
			continue
		}
		done = line
	}

	if strings.Join(fragments, "") != "abc" {
		t.Fatalf("unexpected fragments: %v", fragments)
	}
	if done == nil || done["done"] != true || done["reply"] != "abc" {
		t.Fatalf("unexpected final line: %v", done)
	}
}

func TestChatMultipartWithFile(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"summary"}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("quarterly numbers"))
	mw.WriteField("stream", "false")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	turns, err := orch.Transcript(resp.Session)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(turns) != 2 || !strings.Contains(turns[0].Content, "extracted: quarterly numbers") {
		t.Fatalf("expected document context in user turn, got %+v", turns)
	}
	if !strings.Contains(turns[0].Content, chat.DefaultArtifactPrompt) {
		t.Fatalf("expected default prompt, got %q", turns[0].Content)
	}
}

func TestOCR(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantText  string
		wantSumm  string
		wantState int
	}{
		{name: "extract only", wantText: "extracted: scan", wantState: http.StatusOK},
		{name: "with summary", query: "?summarize=true", wantText: "extracted: scan", wantSumm: "short", wantState: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"short"}})

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			part, _ := mw.CreateFormFile("file", "scan.txt")
			part.Write([]byte("scan"))
			mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/ocr"+tt.query, &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantState {
				t.Fatalf("expected %d, got %d: %s", tt.wantState, rec.Code, rec.Body.String())
			}

			var resp ocrResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.ExtractedText != tt.wantText || resp.AISummary != tt.wantSumm {
				t.Fatalf("unexpected response: %+v", resp)
			}
			sessions := orch.Sessions()
			if len(sessions) != 1 || sessions[0].TurnCount != 0 {
				t.Fatalf("ocr must not touch sessions, got %+v", sessions)
			}
		})
	}
}

func TestOCRRequiresFile(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("text", "no file")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ocr", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"ok"}})

	rec := doJSON(t, handler, http.MethodPost, "/api/sessions", map[string]string{"name": "Research"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}

	doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "first", "stream": false})

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions", nil)
	var list []sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Research" || !list[0].Active || list[0].TurnCount != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/sessions/Research", nil)
	var transcript transcriptResponse
	if err := json.NewDecoder(rec.Body).Decode(&transcript); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(transcript.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(transcript.Turns))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sessions/Research/reset", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset: expected 204, got %d", rec.Code)
	}
	if turns, _ := orch.Transcript("Research"); len(turns) != 0 {
		t.Fatalf("expected empty session after reset, got %d turns", len(turns))
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/sessions/Research", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if sessions := orch.Sessions(); len(sessions) != 1 || sessions[0].Name != conversation.DefaultSessionName {
		t.Fatalf("expected only the placeholder after delete, got %+v", sessions)
	}
}

func TestSessionNotFound(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/sessions/missing"},
		{http.MethodDelete, "/api/sessions/missing"},
		{http.MethodPost, "/api/sessions/missing/activate"},
		{http.MethodPost, "/api/sessions/missing/reset"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := doJSON(t, handler, tt.method, tt.path, nil)
			if rec.Code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", rec.Code)
			}
		})
	}
}

func TestClearHistoryLeavesPlaceholder(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"ok"}})
	doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "first", "stream": false})

	rec := doJSON(t, handler, http.MethodDelete, "/api/sessions", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	sessions := orch.Sessions()
	if len(sessions) != 1 || sessions[0].Name != conversation.DefaultSessionName {
		t.Fatalf("expected only the placeholder, got %+v", sessions)
	}
}

func TestChatWebSocket(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{fragments: []string{"x", "y"}})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(wsRequest{Text: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var content strings.Builder
	for {
		var frame wsFrame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read: %v", err)
		}
		if frame.Type == frameFragment {
			content.WriteString(frame.Content)
			continue
		}
		if frame.Type != frameDone {
			t.Fatalf("unexpected frame: %+v", frame)
		}
		if frame.Outcome == nil || frame.Outcome.Reply != "xy" {
			t.Fatalf("unexpected outcome: %+v", frame.Outcome)
		}
		break
	}

	if content.String() != "xy" {
		t.Fatalf("expected streamed xy, got %q", content.String())
	}
}

func TestChatWebSocketEmptyText(t *testing.T) {
	_, handler := newTestServer(t, &fakeGateway{})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ws.WriteJSON(wsRequest{Text: ""})

	var frame wsFrame
	if err := ws.ReadJSON(&frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.Type != frameError {
		t.Fatalf("expected error frame, got %+v", frame)
	}
}

func TestChatUnknownSession(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"ok"}})

	rec := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{"text": "hi", "session": "missing", "stream": false})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if sessions := orch.Sessions(); len(sessions) != 1 || sessions[0].TurnCount != 0 {
		t.Fatalf("no session should change, got %+v", sessions)
	}
}

func TestChatConcurrentClientsKeepTheirSessions(t *testing.T) {
	orch, handler := newTestServer(t, &fakeGateway{fragments: []string{"ok"}})

	names := []string{"alpha", "beta"}
	for _, name := range names {
		if rec := doJSON(t, handler, http.MethodPost, "/api/sessions", map[string]string{"name": name}); rec.Code != http.StatusCreated {
			t.Fatalf("create %s: got %d", name, rec.Code)
		}
	}

	const perClient = 100

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perClient {
				body, _ := json.Marshal(map[string]any{"text": fmt.Sprintf("%s-%d", name, i), "session": name, "stream": false})
				req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
				req.Header.Set("Content-Type", "application/json")
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				if rec.Code != http.StatusOK {
					t.Errorf("%s request %d: got %d", name, i, rec.Code)
					return
				}
			}
		}()
	}
	wg.Wait()

	for _, name := range names {
		turns, err := orch.Transcript(name)
		if err != nil {
			t.Fatal(err)
		}
		if len(turns) != 2*perClient {
			t.Errorf("%s: got %d turns, want %d", name, len(turns), 2*perClient)
		}
		for _, turn := range turns {
			if turn.Role == core.RoleUser && !strings.HasPrefix(turn.Content, name+"-") {
				t.Errorf("%s holds a turn from another client: %q", name, turn.Content)
			}
		}
	}
}

type failingHistory struct{}

func (failingHistory) Load(context.Context) (conversation.Snapshot, error) {
	return conversation.Snapshot{}, nil
}
func (failingHistory) Save(context.Context, conversation.Snapshot) error {
	return errors.New("disk full")
}
func (failingHistory) Backend() string { return "fake" }
func (failingHistory) Close() error    { return nil }

func TestSessionOperationsReportPersistError(t *testing.T) {
	orch := chat.New(conversation.NewStore(), &fakeGateway{}, nil, failingHistory{}, chat.Options{})
	handler := New(orch, Options{}).Handler()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"create", http.MethodPost, "/api/sessions", map[string]string{"name": "Notes"}, http.StatusCreated},
		{"rename", http.MethodPatch, "/api/sessions/Notes", map[string]string{"name": "Drafts"}, http.StatusOK},
		{"activate", http.MethodPost, "/api/sessions/Drafts/activate", nil, http.StatusOK},
		{"reset", http.MethodPost, "/api/sessions/Drafts/reset", nil, http.StatusOK},
		{"delete", http.MethodDelete, "/api/sessions/Drafts", nil, http.StatusOK},
		{"clear", http.MethodDelete, "/api/sessions", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("got %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}

			var result sessionResult
			if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.Contains(result.PersistError, "disk full") {
				t.Errorf("persist_error: got %q", result.PersistError)
			}
		})
	}

	if _, err := orch.Transcript("Drafts"); err == nil {
		t.Error("Drafts should be gone from memory after delete")
	}
}
