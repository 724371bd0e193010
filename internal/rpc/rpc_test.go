package rpc

import (
	"context"
	"iter"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/conversation"
	"github.com/erg0nix/docchat/internal/core"
)

type fakeGateway struct {
	fragments []string
}

func (g *fakeGateway) Complete(context.Context, []core.Turn) (core.Reply, error) {
	return core.Reply{Content: strings.Join(g.fragments, "")}, nil
}

func (g *fakeGateway) Stream(context.Context, []core.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, fragment := range g.fragments {
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

func newTestClient(t *testing.T, fragments ...string) (*Client, *chat.Orchestrator) {
	t.Helper()

	orch := chat.New(conversation.NewStore(), &fakeGateway{fragments: fragments}, nil, nil, chat.Options{})

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterChatServiceServer(server, &Handler{
		Orchestrator: orch,
		Config:       config.Config{Bind: "bufnet", Model: "llama3"},
		StartTime:    time.Now(),
	})
	go server.Serve(listener)
	t.Cleanup(server.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, orch
}

func TestStatus(t *testing.T) {
	client, _ := newTestClient(t)

	got, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if got["model"] != "llama3" || got["state"] != "idle" {
		t.Fatalf("unexpected status: %v", got)
	}
	if got["active_session"] != conversation.DefaultSessionName {
		t.Fatalf("expected placeholder active, got %v", got["active_session"])
	}
}

func TestSubmit(t *testing.T) {
	client, orch := newTestClient(t, "Hello", "!")

	got, err := client.Submit(context.Background(), "hi there", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got["reply"] != "Hello!" || got["appended"] != true {
		t.Fatalf("unexpected outcome: %v", got)
	}

	turns, err := orch.Transcript(got["session"].(string))
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
}

func TestSubmitErrors(t *testing.T) {
	client, _ := newTestClient(t, "ok")

	tests := []struct {
		name    string
		text    string
		session string
		want    codes.Code
	}{
		{name: "empty text", text: "", want: codes.InvalidArgument},
		{name: "unknown session", text: "hi", session: "missing", want: codes.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Submit(context.Background(), tt.text, tt.session)
			if status.Code(err) != tt.want {
				t.Fatalf("got %v, want %v", status.Code(err), tt.want)
			}
		})
	}
}

func TestStream(t *testing.T) {
	client, _ := newTestClient(t, "a", "b", "c")

	var content strings.Builder
	var done map[string]any
	for frame, err := range client.Stream(context.Background(), "hi", "") {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		switch frame["type"] {
		case "fragment":
			content.WriteString(frame["content"].(string))
		case "done":
			done = frame
		}
	}

	if content.String() != "abc" {
		t.Fatalf("got %q, want %q", content.String(), "abc")
	}
	if done == nil || done["reply"] != "abc" {
		t.Fatalf("unexpected done frame: %v", done)
	}
}

func TestListSessions(t *testing.T) {
	client, _ := newTestClient(t, "ok")

	if _, err := client.Submit(context.Background(), "first question", ""); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sessions, err := client.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	first := sessions[0].(map[string]any)
	if first["turn_count"] != float64(2) || first["active"] != true {
		t.Fatalf("unexpected session: %v", first)
	}
}

func TestShutdownCallsStop(t *testing.T) {
	stopped := make(chan struct{})
	handler := &Handler{StopFunc: func() { close(stopped) }}

	msg, err := handler.Shutdown(context.Background(), nil)
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if msg.GetValue() != "shutting down" {
		t.Fatalf("unexpected message %q", msg.GetValue())
	}

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop func was not called")
	}
}
