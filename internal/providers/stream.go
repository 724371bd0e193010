package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erg0nix/docchat/internal/core"
)

// DefaultMalformedLimit is how many undecodable stream lines are tolerated before a stream is
// abandoned.
const DefaultMalformedLimit = 8

// lineDecoder turns one non-blank stream line into a fragment. done marks the terminal line.
// A *core.TransportError aborts the stream; any other error counts the line as malformed.
type lineDecoder func(line []byte) (fragment string, done bool, err error)

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload map[string]any, op string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &core.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &core.TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

		detail := errors.New(resp.Status)
		if text := strings.TrimSpace(string(bodyBytes)); text != "" {
			detail = fmt.Errorf("%s: %s", resp.Status, text)
		}
		return nil, &core.TransportError{Op: op, StatusCode: resp.StatusCode, Err: detail}
	}

	return resp, nil
}

// readFragments pulls lines from body and hands decoded fragments to yield until the terminal
// marker, end of body, a fatal error or yield returning false.
func readFragments(ctx context.Context, body io.Reader, limit int, op string, decode lineDecoder, yield func(string, error) bool) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	malformed := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		fragment, done, err := decode(line)
		if err != nil {
			var transportErr *core.TransportError
			if errors.As(err, &transportErr) {
				yield("", err)
				return
			}

			malformed++
			slog.Warn("skipping malformed stream fragment", "op", op, "count", malformed, "error", err)
			if limit > 0 && malformed > limit {
				yield("", &core.TransportError{Op: op, Err: fmt.Errorf("too many malformed fragments (%d): %w", malformed, err)})
				return
			}
			continue
		}

		if fragment != "" && !yield(fragment, nil) {
			return
		}
		if done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield("", ctxErr)
			return
		}
		yield("", &core.TransportError{Op: op, Err: fmt.Errorf("read stream: %w", err)})
	}
}

// trimDataPrefix strips the SSE "data:" field name some servers put in front of JSON lines.
func trimDataPrefix(line []byte) []byte {
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		return bytes.TrimSpace(rest)
	}
	return line
}

func toWireMessages(turns []core.Turn) []map[string]any {
	messages := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, map[string]any{"role": string(turn.Role), "content": turn.Content})
	}
	return messages
}
