package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/erg0nix/docchat/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	frameFragment = "fragment"
	frameDone     = "done"
	frameError    = "error"
	frameCancel   = "cancel"
)

type wsRequest struct {
	Type    string `json:"type,omitempty"`
	Text    string `json:"text"`
	Session string `json:"session,omitempty"`
}

type wsFrame struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	Outcome *chatResponse `json:"outcome,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// handleChatWebSocket runs one chat action per inbound message and streams the reply as
// fragment frames followed by a done frame. A {"type":"cancel"} message stops the running action.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	ctx, cancelConn := context.WithCancel(r.Context())
	defer cancelConn()

	var (
		mu        sync.Mutex
		cancelRun context.CancelFunc
	)

	requests := make(chan wsRequest)
	go func() {
		defer close(requests)
		for {
			var msg wsRequest
			if err := ws.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Debug("websocket read ended", "error", err)
				}
				cancelConn()
				return
			}

			if msg.Type == frameCancel {
				mu.Lock()
				if cancelRun != nil {
					cancelRun()
				}
				mu.Unlock()
				continue
			}

			select {
			case requests <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for msg := range requests {
		runCtx, cancel := context.WithCancel(ctx)
		mu.Lock()
		cancelRun = cancel
		mu.Unlock()

		err := s.runSocketAction(runCtx, ws, msg)

		mu.Lock()
		cancelRun = nil
		mu.Unlock()
		cancel()

		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// runSocketAction returns an error only when the socket can no longer be written.
func (s *Server) runSocketAction(ctx context.Context, ws *websocket.Conn, msg wsRequest) error {
	var writeErr error
	outcome, err := s.orch.Submit(ctx, chat.Action{Session: msg.Session, Text: msg.Text, Stream: true}, func(fragment string) bool {
		writeErr = ws.WriteJSON(wsFrame{Type: frameFragment, Content: fragment})
		return writeErr == nil
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return ws.WriteJSON(wsFrame{Type: frameError, Error: err.Error()})
	}

	resp := toChatResponse(outcome)
	frame := wsFrame{Type: frameDone, Outcome: &resp}
	if outcome.Err != nil && !errors.Is(outcome.Err, context.Canceled) {
		frame.Error = outcome.Err.Error()
	}
	return ws.WriteJSON(frame)
}
