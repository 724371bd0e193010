package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

// JSONLStore keeps one JSONL file of turns per session under BaseDir/sessions, a metadata
// file beside it and the active session name in BaseDir/active_session.
type JSONLStore struct {
	BaseDir string
}

type sessionMeta struct {
	LastArtifactHash string `json:"last_artifact_hash,omitempty"`
}

func (s *JSONLStore) Backend() string { return BackendJSONL }

func (s *JSONLStore) Close() error { return nil }

func (s *JSONLStore) sessionDir() string {
	return filepath.Join(s.BaseDir, "sessions")
}

func (s *JSONLStore) sessionPath(name string) string {
	return filepath.Join(s.sessionDir(), url.PathEscape(name)+".jsonl")
}

func (s *JSONLStore) metaPath(name string) string {
	return filepath.Join(s.sessionDir(), url.PathEscape(name)+".meta.json")
}

func (s *JSONLStore) activePath() string {
	return filepath.Join(s.BaseDir, "active_session")
}

func (s *JSONLStore) Load(_ context.Context) (conversation.Snapshot, error) {
	entries, err := os.ReadDir(s.sessionDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conversation.Snapshot{}, nil
		}
		return conversation.Snapshot{}, fmt.Errorf("list sessions: %w", err)
	}

	var snap conversation.Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		name, err := url.PathUnescape(strings.TrimSuffix(entry.Name(), ".jsonl"))
		if err != nil {
			slog.Warn("skipping session file with undecodable name", "file", entry.Name(), "error", err)
			continue
		}

		record, err := s.loadSession(name)
		if err != nil {
			slog.Warn("skipping unreadable session file", "session", name, "error", err)
			continue
		}
		snap.Sessions = append(snap.Sessions, record)
	}

	if data, err := os.ReadFile(s.activePath()); err == nil {
		snap.Active = strings.TrimSpace(string(data))
	}

	return snap, nil
}

func (s *JSONLStore) loadSession(name string) (conversation.SessionRecord, error) {
	path := s.sessionPath(name)

	file, err := os.Open(path)
	if err != nil {
		return conversation.SessionRecord{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return conversation.SessionRecord{}, err
	}

	record := conversation.SessionRecord{Name: name, ModifiedAt: stat.ModTime().UTC()}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var turn core.Turn
		if err := json.Unmarshal(line, &turn); err != nil {
			slog.Warn("skipping malformed history line", "session", name, "line", lineNum, "error", err)
			continue
		}
		record.Turns = append(record.Turns, turn)
	}
	if err := scanner.Err(); err != nil {
		return conversation.SessionRecord{}, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}

	if data, err := os.ReadFile(s.metaPath(name)); err == nil {
		var meta sessionMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Warn("failed to parse session metadata", "session", name, "error", err)
		}
		record.LastArtifactHash = meta.LastArtifactHash
	}

	return record, nil
}

// Save rewrites the files of dirty sessions and removes files of sessions that are gone.
func (s *JSONLStore) Save(_ context.Context, snap conversation.Snapshot) error {
	if err := os.MkdirAll(s.sessionDir(), 0o755); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	keep := make(map[string]bool, len(snap.Sessions))
	var errs []error

	for _, record := range snap.Sessions {
		keep[url.PathEscape(record.Name)] = true

		if !record.Dirty {
			if _, err := os.Stat(s.sessionPath(record.Name)); err == nil {
				continue
			}
		}
		if err := s.writeSession(record); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.removeStale(keep); err != nil {
		errs = append(errs, err)
	}

	if err := writeFileAtomic(s.activePath(), []byte(snap.Active)); err != nil {
		errs = append(errs, fmt.Errorf("save active session: %w", err))
	}

	return errors.Join(errs...)
}

func (s *JSONLStore) writeSession(record conversation.SessionRecord) error {
	var buf strings.Builder
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	for _, turn := range record.Turns {
		if err := encoder.Encode(turn); err != nil {
			return fmt.Errorf("encode session %s: %w", record.Name, err)
		}
	}

	if err := writeFileAtomic(s.sessionPath(record.Name), []byte(buf.String())); err != nil {
		return fmt.Errorf("write session %s: %w", record.Name, err)
	}

	metaPath := s.metaPath(record.Name)
	if record.LastArtifactHash == "" {
		if err := os.Remove(metaPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete session metadata: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(sessionMeta{LastArtifactHash: record.LastArtifactHash})
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	if err := writeFileAtomic(metaPath, data); err != nil {
		return fmt.Errorf("write session metadata: %w", err)
	}
	return nil
}

func (s *JSONLStore) removeStale(keep map[string]bool) error {
	entries, err := os.ReadDir(s.sessionDir())
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		base, ok := strings.CutSuffix(entry.Name(), ".meta.json")
		if !ok {
			base, ok = strings.CutSuffix(entry.Name(), ".jsonl")
		}
		if !ok || keep[base] {
			continue
		}

		if err := os.Remove(filepath.Join(s.sessionDir(), entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete session file: %w", err))
		}
	}
	return errors.Join(errs...)
}
