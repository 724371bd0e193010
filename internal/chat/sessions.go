package chat

import (
	"context"
	"fmt"
	"slices"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/ingest"
)

// SummaryPrompt wraps extracted document text for a one-off summary request.
const SummaryPrompt = "The following text was extracted from a document:\n\n%s\n\n" + DefaultArtifactPrompt

// NewChat creates and activates an empty session and returns its name.
func (o *Orchestrator) NewChat(ctx context.Context, hint string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := o.store.CreateSession(hint)
	return name, o.persist(ctx)
}

// ClearChat empties the active session but keeps it.
func (o *Orchestrator) ClearChat(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	session := o.store.Active()
	if session == nil {
		return nil
	}
	session.Reset()
	return o.persist(ctx)
}

// ResetSession empties the named session.
func (o *Orchestrator) ResetSession(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, err := o.store.Get(name)
	if err != nil {
		return err
	}
	session.Reset()
	return o.persist(ctx)
}

// ClearHistory deletes every session and starts over with the placeholder.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.store.DeleteAll()
	o.store.CreateSession(conversation.DefaultSessionName)
	return o.persist(ctx)
}

func (o *Orchestrator) Activate(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Activate(name); err != nil {
		return err
	}
	return o.persist(ctx)
}

func (o *Orchestrator) Rename(ctx context.Context, oldName, newName string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name, err := o.store.Rename(oldName, newName)
	if err != nil {
		return "", err
	}
	return name, o.persist(ctx)
}

func (o *Orchestrator) Delete(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.store.Delete(name); err != nil {
		return err
	}
	return o.persist(ctx)
}

// Sessions lists every session, most recently modified first.
func (o *Orchestrator) Sessions() []conversation.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	return slices.Collect(o.store.List())
}

func (o *Orchestrator) Search(query string) []conversation.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.store.Search(query)
}

// ActiveName returns the active session's name, or "" when none is active.
func (o *Orchestrator) ActiveName() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.store.ActiveName()
}

// Transcript returns a copy of the named session's turns.
func (o *Orchestrator) Transcript(name string) ([]core.Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	session, err := o.store.Get(name)
	if err != nil {
		return nil, err
	}
	return session.Messages(), nil
}

// Snapshot returns the durable form of every session.
func (o *Orchestrator) Snapshot() conversation.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.store.Snapshot()
}

// Ingest extracts a document's text without touching any session.
func (o *Orchestrator) Ingest(ctx context.Context, artifact ingest.Artifact) (string, error) {
	return o.ingest(ctx, artifact)
}

// Summarize extracts a document's text and asks the model for a summary outside of any session.
func (o *Orchestrator) Summarize(ctx context.Context, artifact ingest.Artifact) (string, core.Reply, error) {
	text, err := o.ingest(ctx, artifact)
	if err != nil {
		return "", core.Reply{}, err
	}

	reply, err := o.gateway.Complete(ctx, []core.Turn{core.UserTurn(fmt.Sprintf(SummaryPrompt, text))})
	if err != nil {
		return text, core.Reply{}, err
	}
	return text, reply, nil
}
