package providers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/erg0nix/docchat/internal/core"
)

// RequestLogger appends provider traffic to a dated JSONL file. A nil *RequestLogger is valid
// and logs nothing, so gateways call it unconditionally.
type RequestLogger struct {
	logDir       string
	logRequests  bool
	logResponses bool
	logger       *slog.Logger

	mu sync.Mutex
}

type LogEntry struct {
	Timestamp  string         `json:"timestamp"`
	RequestID  string         `json:"request_id"`
	Type       string         `json:"type"`
	Turns      []core.Turn    `json:"turns,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Response   *core.Reply    `json:"response,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Error      string         `json:"error,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
}

func NewRequestLogger(logDir string, logRequests, logResponses bool, logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestLogger{
		logDir:       logDir,
		logRequests:  logRequests,
		logResponses: logResponses,
		logger:       logger,
	}
}

func (l *RequestLogger) LogRequest(requestID core.RequestID, turns []core.Turn, payload map[string]any) {
	if l == nil || !l.logRequests {
		return
	}

	l.append(LogEntry{RequestID: string(requestID), Type: "request", Turns: turns, Payload: payload})
	l.logger.Debug("provider request", "request_id", requestID, "turn_count", len(turns))
}

func (l *RequestLogger) LogResponse(requestID core.RequestID, reply core.Reply, duration time.Duration) {
	if l == nil || !l.logResponses {
		return
	}

	l.append(LogEntry{RequestID: string(requestID), Type: "response", Response: &reply, Duration: duration.String()})
}

// LogError records a failed call whenever the logger exists, regardless of the request and
// response switches.
func (l *RequestLogger) LogError(requestID core.RequestID, err error, turns []core.Turn, payload map[string]any) {
	if l == nil || err == nil {
		return
	}

	status := statusOf(err)
	l.append(LogEntry{
		RequestID:  string(requestID),
		Type:       "error",
		StatusCode: status,
		Error:      err.Error(),
		Turns:      turns,
		Payload:    payload,
	})

	l.logger.Error("provider request failed",
		"request_id", requestID,
		"status_code", status,
		"error", err,
		"recent_turns", recentTurns(turns, 5, 50),
	)
}

func (l *RequestLogger) append(entry LogEntry) {
	if l.logDir == "" {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Warn("encode provider log entry", "error", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		l.logger.Warn("create provider log dir", "error", err)
		return
	}

	path := filepath.Join(l.logDir, fmt.Sprintf("provider_%s.jsonl", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Warn("open provider log", "error", err)
		return
	}
	defer f.Close()

	_, _ = f.Write(data)
}

// recentTurns renders the last n turns as "[role] content", each cut to width runes.
func recentTurns(turns []core.Turn, n, width int) []string {
	start := max(0, len(turns)-n)

	out := make([]string, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		content := []rune(turn.Content)
		if len(content) > width {
			content = append(content[:width], []rune("...")...)
		}
		out = append(out, fmt.Sprintf("[%s] %s", turn.Role, string(content)))
	}
	return out
}
