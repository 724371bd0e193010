package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// OllamaGateway speaks the Ollama /api/chat protocol. Streams are newline-delimited JSON
// objects, optionally prefixed with "data:".
type OllamaGateway struct {
	endpoint       string
	model          string
	apiKey         string
	malformedLimit int
	client         *http.Client
	requestLogger  *RequestLogger
}

func NewOllamaGateway(opts Options) *OllamaGateway {
	return &OllamaGateway{
		endpoint:       opts.Endpoint,
		model:          opts.Model,
		apiKey:         opts.APIKey,
		malformedLimit: opts.MalformedLimit,
		client:         newHTTPClient(opts.HTTPTimeout),
		requestLogger:  newRequestLogger(opts.Debug),
	}
}

type ollamaChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Type            string `json:"type"`
	Error           string `json:"error"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c ollamaChunk) text() string {
	if c.Message.Content != "" {
		return c.Message.Content
	}
	return c.Response
}

func (g *OllamaGateway) payload(turns []core.Turn, stream bool) map[string]any {
	return map[string]any{
		"model":    modelOrDefault(g.model),
		"messages": toWireMessages(turns),
		"stream":   stream,
	}
}

func (g *OllamaGateway) Complete(ctx context.Context, turns []core.Turn) (core.Reply, error) {
	requestID := core.NewRequestID()
	payload := g.payload(turns, false)
	g.requestLogger.LogRequest(requestID, turns, payload)

	startTime := time.Now()
	resp, err := postJSON(ctx, g.client, g.endpoint+"/api/chat", g.apiKey, payload, "ollama chat")
	if err != nil {
		g.requestLogger.LogError(requestID, err, turns, payload)
		return core.Reply{}, err
	}
	defer resp.Body.Close()

	var chunk ollamaChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return core.Reply{}, &core.TransportError{Op: "ollama chat", Err: fmt.Errorf("decode response (request_id=%s): %w", requestID, err)}
	}
	if chunk.Error != "" {
		return core.Reply{}, &core.TransportError{Op: "ollama chat", Err: fmt.Errorf("model error: %s", chunk.Error)}
	}

	reply := core.Reply{
		Content:  chunk.text(),
		Model:    chunk.Model,
		Duration: time.Since(startTime),
	}
	if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
		reply.Usage = &core.Usage{
			PromptTokens:     chunk.PromptEvalCount,
			CompletionTokens: chunk.EvalCount,
			TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
		}
	}

	g.requestLogger.LogResponse(requestID, reply, reply.Duration)
	return reply, nil
}

func (g *OllamaGateway) Stream(ctx context.Context, turns []core.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		requestID := core.NewRequestID()
		payload := g.payload(turns, true)
		g.requestLogger.LogRequest(requestID, turns, payload)

		resp, err := postJSON(ctx, g.client, g.endpoint+"/api/chat", g.apiKey, payload, "ollama stream")
		if err != nil {
			g.requestLogger.LogError(requestID, err, turns, payload)
			yield("", err)
			return
		}
		defer resp.Body.Close()

		readFragments(ctx, resp.Body, g.malformedLimit, "ollama stream", decodeOllamaLine, yield)
	}
}

func decodeOllamaLine(line []byte) (string, bool, error) {
	line = trimDataPrefix(line)
	if string(line) == "[DONE]" {
		return "", true, nil
	}

	var chunk ollamaChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, err
	}
	if chunk.Error != "" {
		return "", false, &core.TransportError{Op: "ollama stream", Err: fmt.Errorf("model error: %s", chunk.Error)}
	}

	done := chunk.Done || chunk.Type == "response-complete"
	return chunk.text(), done, nil
}

func statusOf(err error) int {
	var transportErr *core.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.StatusCode
	}
	return 0
}
