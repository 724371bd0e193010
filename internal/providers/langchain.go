package providers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/erg0nix/docchat/internal/core"
)

// LangChainGateway adapts any langchaingo model to the Gateway contract.
type LangChainGateway struct {
	model     llms.Model
	modelName string
	vendor    string
}

// NewLangChainGateway builds the langchaingo model for vendor (ollama, openai, anthropic or
// googleai).
func NewLangChainGateway(ctx context.Context, vendor string, opts Options) (*LangChainGateway, error) {
	var (
		llm llms.Model
		err error
	)

	switch vendor {
	case "", "ollama":
		ollamaOpts := []ollama.Option{ollama.WithModel(modelOrDefault(opts.Model))}
		if opts.Endpoint != "" {
			ollamaOpts = append(ollamaOpts, ollama.WithServerURL(opts.Endpoint))
		}
		llm, err = ollama.New(ollamaOpts...)
	case "openai":
		openaiOpts := []openai.Option{openai.WithToken(opts.APIKey), openai.WithModel(modelOrDefault(opts.Model))}
		if opts.Endpoint != "" {
			openaiOpts = append(openaiOpts, openai.WithBaseURL(opts.Endpoint))
		}
		llm, err = openai.New(openaiOpts...)
	case "anthropic":
		anthropicOpts := []anthropic.Option{anthropic.WithToken(opts.APIKey), anthropic.WithModel(opts.Model)}
		if opts.Endpoint != "" {
			anthropicOpts = append(anthropicOpts, anthropic.WithBaseURL(opts.Endpoint))
		}
		llm, err = anthropic.New(anthropicOpts...)
	case "google", "googleai":
		llm, err = googleai.New(ctx,
			googleai.WithAPIKey(opts.APIKey),
			googleai.WithDefaultModel(opts.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported langchain vendor: %s", vendor)
	}

	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", vendor, err)
	}

	return NewLangChainGatewayFromModel(llm, opts.Model, vendor), nil
}

func NewLangChainGatewayFromModel(model llms.Model, modelName, vendor string) *LangChainGateway {
	return &LangChainGateway{model: model, modelName: modelName, vendor: vendor}
}

func (g *LangChainGateway) op(kind string) string {
	return "langchain " + g.vendor + " " + kind
}

func (g *LangChainGateway) Complete(ctx context.Context, turns []core.Turn) (core.Reply, error) {
	startTime := time.Now()

	resp, err := g.model.GenerateContent(ctx, toMessageContent(turns))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Reply{}, ctxErr
		}
		return core.Reply{}, &core.TransportError{Op: g.op("chat"), Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return core.Reply{}, &core.TransportError{Op: g.op("chat"), Err: errors.New("no choices in response")}
	}

	choice := resp.Choices[0]
	reply := core.Reply{
		Content:  choice.Content,
		Model:    g.modelName,
		Duration: time.Since(startTime),
	}

	if info := choice.GenerationInfo; info != nil {
		prompt := core.IntFromAny(info["PromptTokens"])
		completion := core.IntFromAny(info["CompletionTokens"])
		if prompt > 0 || completion > 0 {
			reply.Usage = &core.Usage{
				PromptTokens:     prompt,
				CompletionTokens: completion,
				TotalTokens:      prompt + completion,
			}
		}
	}

	return reply, nil
}

// Stream runs the generation in a goroutine and relays streamed chunks. Breaking out of the
// range loop cancels the generation.
func (g *LangChainGateway) Stream(ctx context.Context, turns []core.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)

		go func() {
			defer close(chunks)

			_, err := g.model.GenerateContent(streamCtx, toMessageContent(turns),
				llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
					select {
					case chunks <- string(chunk):
						return nil
					case <-streamCtx.Done():
						return streamCtx.Err()
					}
				}),
			)
			done <- err
		}()

		for chunk := range chunks {
			if chunk == "" {
				continue
			}
			if !yield(chunk, nil) {
				cancel()
				for range chunks {
				}
				return
			}
		}

		if err := <-done; err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield("", ctxErr)
				return
			}
			yield("", &core.TransportError{Op: g.op("stream"), Err: err})
		}
	}
}

func toMessageContent(turns []core.Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, llms.TextParts(chatMessageType(turn.Role), turn.Content))
	}
	return messages
}

func chatMessageType(role core.Role) llms.ChatMessageType {
	switch role {
	case core.RoleSystem:
		return llms.ChatMessageTypeSystem
	case core.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
