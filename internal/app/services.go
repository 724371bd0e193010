package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/history"
	"github.com/erg0nix/docchat/internal/ingest"
	"github.com/erg0nix/docchat/internal/providers"
)

// Services holds the wired components shared by the CLI and the server.
type Services struct {
	Config       config.Config
	History      history.Store
	Gateway      providers.Gateway
	Ingestor     *ingest.Router
	Orchestrator *chat.Orchestrator
}

// NewServices restores saved history and builds an orchestrator around it. Unreadable history
// starts fresh; only an unusable backend is an error.
func NewServices(ctx context.Context, cfg config.Config) (*Services, error) {
	hist, err := history.Open(cfg.HistoryBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	snap, err := hist.Load(ctx)
	if err != nil {
		slog.Warn("failed to load history, starting fresh", "backend", hist.Backend(), "error", err)
		snap = conversation.Snapshot{}
	}
	store := conversation.RestoreStore(snap)

	gateway, err := providers.New(ctx, cfg)
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("create provider: %w", err)
	}

	ingestor := ingest.New(cfg.Ingest, cfg.HTTPTimeout())

	orch := chat.New(store, gateway, ingestor, hist, chat.Options{
		Assembler: conversation.PromptAssembler{
			SystemInstruction: cfg.SystemPrompt,
			DocumentBudget:    cfg.DocumentBudget,
		},
		PersistSystemPrompt: cfg.PersistSystemPrompt,
		OnState: func(s chat.State) {
			slog.Debug("orchestrator state", "state", s.String())
		},
	})

	slog.Debug("services ready",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"history", hist.Backend(),
		"sessions", store.Len(),
	)

	return &Services{
		Config:       cfg,
		History:      hist,
		Gateway:      gateway,
		Ingestor:     ingestor,
		Orchestrator: orch,
	}, nil
}

func (s *Services) Close() error {
	if s.History == nil {
		return nil
	}
	return s.History.Close()
}
