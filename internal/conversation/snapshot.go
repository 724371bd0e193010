package conversation

import (
	"slices"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// Snapshot is the durable form of a Store.
type Snapshot struct {
	Active   string          `json:"active,omitempty" yaml:"active,omitempty"`
	Sessions []SessionRecord `json:"sessions" yaml:"sessions"`
}

// SessionRecord is the durable form of a Session.
type SessionRecord struct {
	Name             string      `json:"name" yaml:"name"`
	Turns            []core.Turn `json:"turns" yaml:"turns"`
	ModifiedAt       time.Time   `json:"modified_at,omitzero" yaml:"modified_at,omitempty"`
	LastArtifactHash string      `json:"last_artifact_hash,omitempty" yaml:"-"`
	Dirty            bool        `json:"-" yaml:"-"`
}

// Empty reports whether the snapshot holds no turns at all.
func (snap Snapshot) Empty() bool {
	for _, record := range snap.Sessions {
		if len(record.Turns) > 0 {
			return false
		}
	}
	return true
}

// Snapshot captures every session, oldest modification first.
func (st *Store) Snapshot() Snapshot {
	ordered := st.ordered()
	slices.Reverse(ordered)

	snap := Snapshot{Active: st.active, Sessions: make([]SessionRecord, 0, len(ordered))}
	for _, session := range ordered {
		snap.Sessions = append(snap.Sessions, SessionRecord{
			Name:             session.name,
			Turns:            session.Messages(),
			ModifiedAt:       session.modifiedAt,
			LastArtifactHash: session.lastArtifactHash,
			Dirty:            session.dirty,
		})
	}
	return snap
}

// MarkClean clears the dirty flag of every session after a successful save.
func (st *Store) MarkClean() {
	for _, session := range st.sessions {
		session.MarkClean()
	}
}

// RestoreStore rebuilds a store from a snapshot. An empty snapshot yields a store holding only
// the placeholder session. Records with invalid roles are dropped, duplicate names get the
// collision suffix, and an active name that does not resolve falls back to the most recently
// modified session.
func RestoreStore(snap Snapshot) *Store {
	if len(snap.Sessions) == 0 {
		return NewStore()
	}

	records := slices.Clone(snap.Sessions)
	slices.SortStableFunc(records, func(a, b SessionRecord) int {
		return a.ModifiedAt.Compare(b.ModifiedAt)
	})

	store := &Store{sessions: make(map[string]*Session)}
	renamed := make(map[string]string, len(records))

	for _, record := range records {
		name := store.uniqueName(record.Name, "")
		if _, seen := renamed[record.Name]; !seen {
			renamed[record.Name] = name
		}

		session := newSession(name)
		for _, turn := range record.Turns {
			if turn.Role.Valid() {
				session.turns = append(session.turns, turn)
			}
		}
		if !record.ModifiedAt.IsZero() {
			session.modifiedAt = record.ModifiedAt
		}
		session.lastArtifactHash = record.LastArtifactHash
		session.dirty = false
		store.sessions[name] = session
	}

	if name, ok := renamed[snap.Active]; ok && snap.Active != "" {
		store.active = name
	} else if ordered := store.ordered(); len(ordered) > 0 {
		store.active = ordered[0].name
	}

	return store
}
