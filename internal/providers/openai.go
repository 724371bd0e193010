package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// OpenAIGateway talks to an OpenAI-compatible /v1/chat/completions endpoint such as
// llama-server. Streams are server-sent events terminated by "data: [DONE]".
type OpenAIGateway struct {
	endpoint       string
	model          string
	apiKey         string
	malformedLimit int
	client         *http.Client
	requestLogger  *RequestLogger
}

func NewOpenAIGateway(opts Options) *OpenAIGateway {
	return &OpenAIGateway{
		endpoint:       strings.TrimSuffix(opts.Endpoint, "/v1"),
		model:          opts.Model,
		apiKey:         opts.APIKey,
		malformedLimit: opts.MalformedLimit,
		client:         newHTTPClient(opts.HTTPTimeout),
		requestLogger:  newRequestLogger(opts.Debug),
	}
}

func (g *OpenAIGateway) payload(turns []core.Turn, stream bool) map[string]any {
	return map[string]any{
		"model":    strings.TrimSuffix(modelOrDefault(g.model), ".gguf"),
		"messages": toWireMessages(turns),
		"stream":   stream,
	}
}

func (g *OpenAIGateway) Complete(ctx context.Context, turns []core.Turn) (core.Reply, error) {
	requestID := core.NewRequestID()
	payload := g.payload(turns, false)
	g.requestLogger.LogRequest(requestID, turns, payload)

	startTime := time.Now()
	resp, err := postJSON(ctx, g.client, g.endpoint+"/v1/chat/completions", g.apiKey, payload, "openai chat")
	if err != nil {
		g.requestLogger.LogError(requestID, err, turns, payload)
		return core.Reply{}, err
	}
	defer resp.Body.Close()

	var responsePayload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&responsePayload); err != nil {
		return core.Reply{}, &core.TransportError{Op: "openai chat", Err: fmt.Errorf("decode response (request_id=%s): %w", requestID, err)}
	}

	reply, err := parseResponsePayload(responsePayload)
	if err != nil {
		return core.Reply{}, &core.TransportError{Op: "openai chat", Err: fmt.Errorf("parse response (request_id=%s): %w", requestID, err)}
	}
	reply.Duration = time.Since(startTime)

	g.requestLogger.LogResponse(requestID, reply, reply.Duration)
	return reply, nil
}

func (g *OpenAIGateway) Stream(ctx context.Context, turns []core.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		requestID := core.NewRequestID()
		payload := g.payload(turns, true)
		g.requestLogger.LogRequest(requestID, turns, payload)

		resp, err := postJSON(ctx, g.client, g.endpoint+"/v1/chat/completions", g.apiKey, payload, "openai stream")
		if err != nil {
			g.requestLogger.LogError(requestID, err, turns, payload)
			yield("", err)
			return
		}
		defer resp.Body.Close()

		readFragments(ctx, resp.Body, g.malformedLimit, "openai stream", decodeSSELine, yield)
	}
}

func decodeSSELine(line []byte) (string, bool, error) {
	data, ok := strings.CutPrefix(string(line), "data:")
	if !ok {
		// event names, ids and ":" comments carry no content
		return "", false, nil
	}

	data = strings.TrimSpace(data)
	if data == "[DONE]" {
		return "", true, nil
	}

	var chunk map[string]any
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, err
	}

	if errPayload, ok := chunk["error"].(map[string]any); ok {
		message, _ := errPayload["message"].(string)
		return "", false, &core.TransportError{Op: "openai stream", Err: fmt.Errorf("model error: %s", message)}
	}

	choices, _ := chunk["choices"].([]any)
	if len(choices) == 0 {
		return "", false, nil
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false, errors.New("malformed choice in stream chunk")
	}

	delta, _ := choice["delta"].(map[string]any)
	content, _ := delta["content"].(string)
	return content, false, nil
}

func parseResponsePayload(payload map[string]any) (core.Reply, error) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return core.Reply{}, errors.New("no choices in response")
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return core.Reply{}, errors.New("malformed choice in response")
	}

	message, ok := choice["message"].(map[string]any)
	if !ok {
		return core.Reply{}, errors.New("malformed message in response")
	}

	content, _ := message["content"].(string)
	model, _ := payload["model"].(string)

	return core.Reply{
		Content: content,
		Model:   model,
		Usage:   parseUsage(payload),
	}, nil
}

func parseUsage(response map[string]any) *core.Usage {
	usageMap, ok := response["usage"].(map[string]any)
	if !ok {
		return nil
	}

	return &core.Usage{
		PromptTokens:     core.IntFromAny(usageMap["prompt_tokens"]),
		CompletionTokens: core.IntFromAny(usageMap["completion_tokens"]),
		TotalTokens:      core.IntFromAny(usageMap["total_tokens"]),
	}
}
