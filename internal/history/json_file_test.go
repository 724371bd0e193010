package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

func writeHistory(t *testing.T, content string) *JSONFileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &JSONFileStore{Path: path}
}

func TestJSONFileStore_LoadPairs(t *testing.T) {
	store := writeHistory(t, `[{"user":"hi","bot":"hello"}]`)

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	restored := conversation.RestoreStore(snap)
	session := restored.Active()
	if session == nil {
		t.Fatal("expected an active session")
	}

	turns := session.Messages()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0] != core.UserTurn("hi") {
		t.Errorf("first turn: got %+v", turns[0])
	}
	if turns[1] != core.AssistantTurn("hello") {
		t.Errorf("second turn: got %+v", turns[1])
	}
}

func TestJSONFileStore_LoadRecords(t *testing.T) {
	store := writeHistory(t, `[
		{"role":"system","content":"be kind"},
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"hello"},
		{"role":"tool","content":"ignored"},
		42
	]`)

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(snap.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(snap.Sessions))
	}
	if got := len(snap.Sessions[0].Turns); got != 3 {
		t.Errorf("expected 3 turns, got %d", got)
	}
}

func TestJSONFileStore_LoadMixedShapes(t *testing.T) {
	store := writeHistory(t, `[{"user":"a","bot":"b"},{"role":"user","content":"c"}]`)

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := len(snap.Sessions[0].Turns); got != 3 {
		t.Errorf("expected 3 turns, got %d", got)
	}
}

func TestJSONFileStore_MalformedOrMissing(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing"},
		{name: "corrupt", content: ptr(`{"sessions": [`)},
		{name: "empty", content: ptr("")},
		{name: "scalar", content: ptr(`"just a string"`)},
		{name: "empty list", content: ptr(`[]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store *JSONFileStore
			if tt.content == nil {
				store = &JSONFileStore{Path: filepath.Join(t.TempDir(), "absent.json")}
			} else {
				store = writeHistory(t, *tt.content)
			}

			snap, err := store.Load(context.Background())
			if err != nil {
				t.Fatalf("Load must not fail: %v", err)
			}

			restored := conversation.RestoreStore(snap)
			if restored.Len() != 1 {
				t.Errorf("expected only the default session, got %d", restored.Len())
			}
			if restored.ActiveName() != conversation.DefaultSessionName {
				t.Errorf("active: got %q", restored.ActiveName())
			}
		})
	}
}

func TestJSONFileStore_SaveThenLoad(t *testing.T) {
	store := &JSONFileStore{Path: filepath.Join(t.TempDir(), "nested", "history.json")}

	sessions := conversation.NewStore()
	sessions.Active().Append(core.UserTurn("hi"))
	sessions.Active().Append(core.AssistantTurn("hello"))
	sessions.CreateSession("OCR: scan.png")

	if err := store.Save(context.Background(), sessions.Snapshot()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	restored := conversation.RestoreStore(snap)
	if restored.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", restored.Len())
	}
	if restored.ActiveName() != "OCR: scan.png" {
		t.Errorf("active: got %q", restored.ActiveName())
	}

	chat, err := restored.Get(conversation.DefaultSessionName)
	if err != nil {
		t.Fatal(err)
	}
	if chat.Len() != 2 {
		t.Errorf("expected 2 turns, got %d", chat.Len())
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{"", BackendJSON, BackendJSONL, BackendSQLite} {
		store, err := Open(backend, dir)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", backend, err)
		}
		store.Close()
	}

	if _, err := Open("redis", dir); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func ptr(s string) *string { return &s }
