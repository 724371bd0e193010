package conversation

import (
	"iter"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// Summary describes one session for listings.
type Summary struct {
	Name       string
	LastRole   core.Role
	Preview    string
	TurnCount  int
	ModifiedAt time.Time
	Active     bool
}

// Store maps chat names to sessions and tracks the active one. A Store is owned by a single
// caller; it does no locking of its own.
type Store struct {
	sessions map[string]*Session
	active   string
}

// NewStore returns a store holding only the placeholder session, which is active.
func NewStore() *Store {
	store := &Store{sessions: make(map[string]*Session)}
	store.CreateSession(DefaultSessionName)
	return store
}

// CreateSession creates an empty session named after nameHint, resolving collisions with a
// numeric suffix, activates it and returns the final name.
func (st *Store) CreateSession(nameHint string) string {
	name := st.uniqueName(nameHint, "")
	st.sessions[name] = newSession(name)
	st.active = name
	return name
}

// Activate makes name the active session.
func (st *Store) Activate(name string) error {
	if _, ok := st.sessions[name]; !ok {
		return &core.NotFoundError{Name: name}
	}
	st.active = name
	return nil
}

// Active returns the active session, or nil when none is set.
func (st *Store) Active() *Session {
	if st.active == "" {
		return nil
	}
	return st.sessions[st.active]
}

func (st *Store) ActiveName() string { return st.active }

func (st *Store) Get(name string) (*Session, error) {
	session, ok := st.sessions[name]
	if !ok {
		return nil, &core.NotFoundError{Name: name}
	}
	return session, nil
}

func (st *Store) Len() int { return len(st.sessions) }

// EnsureActive returns the session new input should go to. With no active session one is
// created from hint; an empty placeholder is renamed after hint instead of being left behind.
func (st *Store) EnsureActive(hint string) *Session {
	active := st.Active()
	if active == nil {
		st.CreateSession(hint)
		return st.Active()
	}

	if active.Len() == 0 && isPlaceholder(active.name) && hint != "" && !isPlaceholder(hint) {
		_, _ = st.Rename(active.name, hint)
	}
	return st.Active()
}

// Rename moves a session to a new name, applying the collision rule, and returns the final name.
func (st *Store) Rename(oldName, newName string) (string, error) {
	session, ok := st.sessions[oldName]
	if !ok {
		return "", &core.NotFoundError{Name: oldName}
	}

	name := st.uniqueName(newName, oldName)
	if name == oldName {
		return name, nil
	}

	delete(st.sessions, oldName)
	session.name = name
	session.touch()
	st.sessions[name] = session

	if st.active == oldName {
		st.active = name
	}
	return name, nil
}

// Delete removes one session. Deleting the active session leaves no session active.
func (st *Store) Delete(name string) error {
	if _, ok := st.sessions[name]; !ok {
		return &core.NotFoundError{Name: name}
	}
	delete(st.sessions, name)
	if st.active == name {
		st.active = ""
	}
	return nil
}

// DeleteAll removes every session and unsets the active one.
func (st *Store) DeleteAll() {
	clear(st.sessions)
	st.active = ""
}

// List yields session summaries, most recently modified first. Each range takes a fresh
// snapshot of the store.
func (st *Store) List() iter.Seq[Summary] {
	return func(yield func(Summary) bool) {
		for _, session := range st.ordered() {
			if !yield(st.summarize(session)) {
				return
			}
		}
	}
}

// Search returns summaries of sessions whose name contains query, ignoring case.
func (st *Store) Search(query string) []Summary {
	query = strings.ToLower(strings.TrimSpace(query))

	var out []Summary
	for summary := range st.List() {
		if strings.Contains(strings.ToLower(summary.Name), query) {
			out = append(out, summary)
		}
	}
	return out
}

func (st *Store) ordered() []*Session {
	sessions := make([]*Session, 0, len(st.sessions))
	for _, session := range st.sessions {
		sessions = append(sessions, session)
	}
	slices.SortFunc(sessions, func(a, b *Session) int {
		switch {
		case a.rev > b.rev:
			return -1
		case a.rev < b.rev:
			return 1
		default:
			return strings.Compare(a.name, b.name)
		}
	})
	return sessions
}

func (st *Store) summarize(session *Session) Summary {
	summary := Summary{
		Name:       session.name,
		LastRole:   session.LastRole(),
		TurnCount:  session.Len(),
		ModifiedAt: session.modifiedAt,
		Active:     session.name == st.active,
	}
	if preview := session.Preview(1, 40); len(preview) == 1 {
		summary.Preview = preview[0].Content
	}
	return summary
}

func (st *Store) uniqueName(hint, self string) string {
	base := strings.TrimSpace(hint)
	if base == "" {
		base = DefaultSessionName
	}

	taken := func(name string) bool {
		_, exists := st.sessions[name]
		return exists && name != self
	}

	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !taken(candidate) {
			return candidate
		}
	}
}

func isPlaceholder(name string) bool {
	if name == DefaultSessionName {
		return true
	}
	suffix, ok := strings.CutPrefix(name, DefaultSessionName+"_")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}
