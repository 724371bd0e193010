// Package providers talks to the inference service. Every gateway offers a batch call and a
// lazily pulled fragment stream over the same request shape.
package providers

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/core"
)

// Gateway sends an assembled turn sequence to a model. Failures are *core.TransportError and
// never appear inside a reply's content. Gateways do not retry.
type Gateway interface {
	Complete(ctx context.Context, turns []core.Turn) (core.Reply, error)
	// Stream yields reply fragments in arrival order. Breaking out of the range loop closes the
	// connection; a cancelled ctx ends the stream with ctx.Err().
	Stream(ctx context.Context, turns []core.Turn) iter.Seq2[string, error]
}

// Options are the settings shared by the HTTP gateways.
type Options struct {
	Endpoint       string
	Model          string
	APIKey         string
	HTTPTimeout    time.Duration
	MalformedLimit int
	Debug          config.DebugConfig
}

// New builds the gateway selected by cfg.Provider.
func New(ctx context.Context, cfg config.Config) (Gateway, error) {
	opts := Options{
		Endpoint:       cfg.Endpoint,
		Model:          cfg.Model,
		APIKey:         cfg.ResolvedAPIKey(),
		HTTPTimeout:    cfg.HTTPTimeout(),
		MalformedLimit: cfg.MalformedFragmentLimit,
		Debug:          cfg.Debug,
	}

	switch cfg.Provider {
	case "", config.ProviderOllama:
		return NewOllamaGateway(opts), nil
	case config.ProviderOpenAI:
		return NewOpenAIGateway(opts), nil
	case config.ProviderLangChain:
		return NewLangChainGateway(ctx, cfg.LangChainVendor, opts)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func newRequestLogger(debugCfg config.DebugConfig) *RequestLogger {
	if !debugCfg.Enabled() {
		return nil
	}
	return NewRequestLogger(debugCfg.LogDirectory, debugCfg.LogRequests, debugCfg.LogResponses, slog.Default())
}

func modelOrDefault(model string) string {
	if model == "" {
		return "default"
	}
	return model
}
