// Package conversation holds named chat sessions, the store that owns them and the prompt
// assembler that replays a session into a stateless model request.
package conversation

import (
	"sync/atomic"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// revision orders sessions by modification even when the wall clock does not move between two
// appends.
var revision atomic.Uint64

// Session is the ordered, mutable log of turns belonging to one named chat.
type Session struct {
	name             string
	turns            []core.Turn
	modifiedAt       time.Time
	rev              uint64
	dirty            bool
	lastArtifactHash string
}

func newSession(name string) *Session {
	s := &Session{name: name}
	s.touch()
	return s
}

func (s *Session) Name() string { return s.name }

func (s *Session) Len() int { return len(s.turns) }

func (s *Session) ModifiedAt() time.Time { return s.modifiedAt }

// Dirty reports whether the session changed since it was last persisted.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) MarkClean() { s.dirty = false }

// Append adds turn to the end of the session.
func (s *Session) Append(turn core.Turn) {
	s.turns = append(s.turns, turn)
	s.touch()
}

// Reset clears every turn. The session itself stays in its store.
func (s *Session) Reset() {
	s.turns = nil
	s.lastArtifactHash = ""
	s.touch()
}

// Messages returns the turns in insertion order. The returned slice is a copy.
func (s *Session) Messages() []core.Turn {
	out := make([]core.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// SystemInstruction returns the standing instruction when the first turn is a system turn.
func (s *Session) SystemInstruction() (string, bool) {
	if len(s.turns) == 0 || s.turns[0].Role != core.RoleSystem {
		return "", false
	}
	return s.turns[0].Content, true
}

func (s *Session) LastRole() core.Role {
	if len(s.turns) == 0 {
		return ""
	}
	return s.turns[len(s.turns)-1].Role
}

// Preview returns up to n trailing turns with their content cut to width runes.
func (s *Session) Preview(n, width int) []core.Turn {
	start := max(0, len(s.turns)-n)
	out := make([]core.Turn, 0, len(s.turns)-start)
	for _, turn := range s.turns[start:] {
		out = append(out, core.Turn{Role: turn.Role, Content: truncateRunes(turn.Content, width, "...")})
	}
	return out
}

// LastArtifactHash is the content hash of the most recently ingested artifact.
func (s *Session) LastArtifactHash() string { return s.lastArtifactHash }

func (s *Session) SetLastArtifactHash(hash string) {
	s.lastArtifactHash = hash
	s.dirty = true
}

func (s *Session) touch() {
	s.modifiedAt = time.Now().UTC()
	s.rev = revision.Add(1)
	s.dirty = true
}

func truncateRunes(text string, width int, suffix string) string {
	if width <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width]) + suffix
}
