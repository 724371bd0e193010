// Package chat drives one user action at a time through ingestion, prompt assembly, inference
// and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
	"github.com/erg0nix/docchat/internal/history"
	"github.com/erg0nix/docchat/internal/ingest"
	"github.com/erg0nix/docchat/internal/providers"
)

const (
	// DefaultArtifactPrompt stands in for the user text when only a document is submitted.
	DefaultArtifactPrompt = "Please summarize it clearly and concisely."

	// TransportErrorPrefix starts the assistant turn recorded when the model cannot be reached.
	TransportErrorPrefix = "⚠️ Error connecting to the model: "
)

// ErrEmptyAction rejects an action that carries neither text nor an artifact.
var ErrEmptyAction = errors.New("nothing to send: provide text or a file")

// Action is one user submission.
type Action struct {
	// Session names the chat the action belongs to. It is activated under the same lock as the
	// append; empty means the active chat, created on demand.
	Session  string
	Text     string
	Artifact *ingest.Artifact
	Stream   bool
}

// FragmentFunc receives streamed reply fragments as they arrive. Returning false cancels the
// stream.
type FragmentFunc func(fragment string) bool

// Outcome reports what an action did to the active session.
type Outcome struct {
	Session      string
	UserTurn     core.Turn
	Reply        core.Turn
	Usage        *core.Usage
	Appended     bool
	Duplicate    bool
	Cancelled    bool
	DocumentText string
	Warnings     []string
	// Err is the transport failure recorded as the synthetic assistant turn.
	Err error
	// PersistErr is a failed history write; the in-memory append stands.
	PersistErr error
}

type Options struct {
	Assembler           conversation.PromptAssembler
	PersistSystemPrompt bool
	// OnState observes every state transition.
	OnState func(State)
}

// Orchestrator owns the session store. All access to sessions goes through it and is
// serialised, so no two actions interleave.
type Orchestrator struct {
	mu        sync.Mutex
	store     *conversation.Store
	gateway   providers.Gateway
	ingestor  ingest.Ingestor
	history   history.Store
	assembler conversation.PromptAssembler

	persistSystemPrompt bool
	onState             func(State)
	state               atomic.Int32
}

// New builds an orchestrator. ingestor and hist may be nil: documents are then rejected as
// unsupported and history stays in memory.
func New(store *conversation.Store, gateway providers.Gateway, ingestor ingest.Ingestor, hist history.Store, opts Options) *Orchestrator {
	if store == nil {
		store = conversation.NewStore()
	}
	return &Orchestrator{
		store:               store,
		gateway:             gateway,
		ingestor:            ingestor,
		history:             hist,
		assembler:           opts.Assembler,
		persistSystemPrompt: opts.PersistSystemPrompt,
		onState:             opts.OnState,
	}
}

// State reports the current state without waiting for a running action.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	if o.onState != nil {
		o.onState(s)
	}
}

// Submit runs one action to completion. Recoverable failures (unreadable document, unreachable
// model, failed history write) are reported in the Outcome; the returned error is non-nil only
// when the action is rejected before anything happens: empty input or an unknown Session.
func (o *Orchestrator) Submit(ctx context.Context, action Action, onFragment FragmentFunc) (Outcome, error) {
	text := strings.TrimSpace(action.Text)
	if text == "" && action.Artifact == nil {
		return Outcome{}, ErrEmptyAction
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setState(StateIdle)

	var outcome Outcome

	hint := conversation.TitleFromPrompt(text)
	if action.Artifact != nil {
		hint = conversation.TitleFromArtifact(action.Artifact.Name)
	}
	session, err := o.targetSession(action.Session, hint)
	if err != nil {
		return Outcome{}, err
	}
	outcome.Session = session.Name()

	documentText, artifactHash := "", ""
	if artifact := action.Artifact; artifact != nil {
		artifactHash = artifact.Hash()

		if artifactHash == session.LastArtifactHash() {
			outcome.Duplicate = true
			slog.Info("skipping already processed document", "session", session.Name(), "artifact", artifact.Name)
			if text == "" {
				return outcome, nil
			}
			artifactHash = ""
		} else {
			documentText = o.ingestArtifact(ctx, *artifact, &outcome)
			if text == "" {
				text = DefaultArtifactPrompt
			}
		}
	}
	outcome.DocumentText = documentText

	o.setState(StateAssembling)
	turns := o.assembler.Assemble(session, text, documentText)
	userTurn := turns[len(turns)-1]
	outcome.UserTurn = userTurn

	o.setState(StateAwaitingReply)
	reply, err := o.awaitReply(ctx, turns, action.Stream, onFragment)

	switch {
	case errors.Is(err, errCancelled):
		outcome.Cancelled = true
		slog.Info("reply cancelled, nothing appended", "session", session.Name())
		return outcome, nil
	case err != nil:
		o.setState(StateTransportFailed)
		slog.Warn("inference failed", "session", session.Name(), "error", err)
		outcome.Err = err
		reply = core.Reply{Content: TransportErrorPrefix + err.Error()}
	}

	o.setState(StateAppending)
	if o.persistSystemPrompt && session.Len() == 0 && turns[0].Role == core.RoleSystem {
		session.Append(turns[0])
	}
	session.Append(userTurn)
	session.Append(reply.Turn())
	if artifactHash != "" {
		session.SetLastArtifactHash(artifactHash)
	}

	outcome.Reply = reply.Turn()
	outcome.Usage = reply.Usage
	outcome.Appended = true
	outcome.PersistErr = o.persist(ctx)

	return outcome, nil
}

var errCancelled = errors.New("reply cancelled")

func (o *Orchestrator) targetSession(name, hint string) (*conversation.Session, error) {
	if name == "" {
		return o.store.EnsureActive(hint), nil
	}
	if err := o.store.Activate(name); err != nil {
		return nil, err
	}
	return o.store.Active(), nil
}

func (o *Orchestrator) ingestArtifact(ctx context.Context, artifact ingest.Artifact, outcome *Outcome) string {
	o.setState(StateIngesting)

	text, err := o.ingest(ctx, artifact)
	switch {
	case err == nil:
		return text
	case errors.Is(err, ingest.ErrNoText):
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("No readable text found in %s; continuing without document content.", artifact.Name))
		slog.Warn("document has no text", "artifact", artifact.Name)
	default:
		o.setState(StateIngestFailed)
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("Could not read %s (%v); continuing without document content.", artifact.Name, err))
		slog.Warn("document ingestion failed", "artifact", artifact.Name, "error", err)
	}
	return ""
}

func (o *Orchestrator) ingest(ctx context.Context, artifact ingest.Artifact) (string, error) {
	if o.ingestor == nil {
		return "", &core.IngestError{Artifact: artifact.Name, Reason: "document ingestion disabled", Err: ingest.ErrUnsupported}
	}
	return o.ingestor.Ingest(ctx, artifact)
}

func (o *Orchestrator) awaitReply(ctx context.Context, turns []core.Turn, stream bool, onFragment FragmentFunc) (core.Reply, error) {
	if !stream {
		reply, err := o.gateway.Complete(ctx, turns)
		if err != nil && errors.Is(err, context.Canceled) {
			return core.Reply{}, errCancelled
		}
		return reply, err
	}

	var content strings.Builder
	for fragment, err := range o.gateway.Stream(ctx, turns) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return core.Reply{}, errCancelled
			}
			return core.Reply{}, err
		}

		content.WriteString(fragment)
		if onFragment != nil && !onFragment(fragment) {
			return core.Reply{}, errCancelled
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return core.Reply{}, errCancelled
	}
	return core.Reply{Content: content.String()}, nil
}

// persist writes the whole store. It runs even when ctx is already cancelled so a completed
// append is not lost.
func (o *Orchestrator) persist(ctx context.Context) error {
	if o.history == nil {
		return nil
	}

	if err := o.history.Save(context.WithoutCancel(ctx), o.store.Snapshot()); err != nil {
		persistErr := &core.PersistenceError{Backend: o.history.Backend(), Err: err}
		slog.Error("failed to save history", "backend", o.history.Backend(), "error", err)
		return persistErr
	}

	o.store.MarkClean()
	return nil
}
