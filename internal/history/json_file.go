package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

// ImportedSessionName names the session rebuilt from a flat pair or record list.
const ImportedSessionName = "History"

// JSONFileStore keeps the whole snapshot in one JSON document. It also reads the flat
// [{"user","bot"}] and [{"role","content"}] lists older front-ends wrote.
type JSONFileStore struct {
	Path string
}

func (s *JSONFileStore) Backend() string { return BackendJSON }

func (s *JSONFileStore) Close() error { return nil }

func (s *JSONFileStore) Load(_ context.Context) (conversation.Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conversation.Snapshot{}, nil
		}
		return conversation.Snapshot{}, fmt.Errorf("read history: %w", err)
	}

	snap, err := DecodeHistory(data)
	if err != nil {
		slog.Warn("ignoring unreadable history file", "path", s.Path, "error", err)
		return conversation.Snapshot{}, nil
	}
	return snap, nil
}

func (s *JSONFileStore) Save(_ context.Context, snap conversation.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return writeFileAtomic(s.Path, append(data, '\n'))
}

type legacyItem struct {
	User    *string `json:"user"`
	Bot     *string `json:"bot"`
	Role    string  `json:"role"`
	Content string  `json:"content"`
}

// DecodeHistory accepts the snapshot document, a list of {user, bot} pairs or a list of
// {role, content} records. Blank input decodes to an empty snapshot.
func DecodeHistory(data []byte) (conversation.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return conversation.Snapshot{}, nil
	}

	switch data[0] {
	case '{':
		var snap conversation.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return conversation.Snapshot{}, fmt.Errorf("decode history document: %w", err)
		}
		return snap, nil

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return conversation.Snapshot{}, fmt.Errorf("decode history list: %w", err)
		}
		turns := decodeLegacyItems(items)
		if len(turns) == 0 {
			return conversation.Snapshot{}, nil
		}
		return conversation.Snapshot{
			Active:   ImportedSessionName,
			Sessions: []conversation.SessionRecord{{Name: ImportedSessionName, Turns: turns}},
		}, nil

	default:
		return conversation.Snapshot{}, errors.New("history is neither a JSON object nor a list")
	}
}

func decodeLegacyItems(items []json.RawMessage) []core.Turn {
	var turns []core.Turn
	for i, raw := range items {
		var item legacyItem
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Debug("skipping history item", "index", i, "error", err)
			continue
		}

		switch {
		case item.User != nil && item.Bot != nil:
			turns = append(turns, core.UserTurn(*item.User), core.AssistantTurn(*item.Bot))
		case core.Role(item.Role).Valid():
			turns = append(turns, core.Turn{Role: core.Role(item.Role), Content: item.Content})
		default:
			slog.Debug("skipping history item", "index", i, "reason", "unknown shape")
		}
	}
	return turns
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
