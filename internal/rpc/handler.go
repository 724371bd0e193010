package rpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/docchat/internal/chat"
	"github.com/erg0nix/docchat/internal/config"
	"github.com/erg0nix/docchat/internal/core"
)

type Handler struct {
	Orchestrator *chat.Orchestrator
	Config       config.Config
	StartTime    time.Time
	StopFunc     func()
}

func (h *Handler) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	uptimeSeconds := int64(0)
	startedAtText := ""
	if !h.StartTime.IsZero() {
		uptimeSeconds = int64(time.Since(h.StartTime).Seconds())
		startedAtText = h.StartTime.Format(time.RFC3339)
	}

	return structpb.NewStruct(map[string]any{
		"bind":           h.Config.Bind,
		"http_bind":      h.Config.HTTPBind,
		"provider":       h.Config.Provider,
		"endpoint":       h.Config.Endpoint,
		"model":          h.Config.Model,
		"data_dir":       h.Config.DataDir,
		"history":        h.Config.HistoryBackend,
		"state":          h.Orchestrator.State().String(),
		"active_session": h.Orchestrator.ActiveName(),
		"sessions":       len(h.Orchestrator.Sessions()),
		"uptime_seconds": uptimeSeconds,
		"started_at":     startedAtText,
	})
}

func (h *Handler) Shutdown(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if h.StopFunc != nil {
		go h.StopFunc()
	}
	return wrapperspb.String("shutting down"), nil
}

func (h *Handler) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	outcome, err := h.Orchestrator.Submit(ctx, actionFrom(in), nil)
	if err != nil {
		return nil, toStatus(err)
	}
	return outcomeStruct(outcome)
}

func (h *Handler) ListSessions(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	summaries := h.Orchestrator.Sessions()

	sessions := make([]any, 0, len(summaries))
	for _, summary := range summaries {
		sessions = append(sessions, map[string]any{
			"name":        summary.Name,
			"active":      summary.Active,
			"turn_count":  summary.TurnCount,
			"last_role":   string(summary.LastRole),
			"preview":     summary.Preview,
			"modified_at": summary.ModifiedAt.Format(time.RFC3339),
		})
	}
	return structpb.NewStruct(map[string]any{"sessions": sessions})
}

// Stream sends {"type":"fragment","content":...} frames followed by one {"type":"done",...}
// frame carrying the outcome.
func (h *Handler) Stream(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()

	action := actionFrom(in)
	action.Stream = true

	var sendErr error
	outcome, err := h.Orchestrator.Submit(ctx, action, func(fragment string) bool {
		frame, err := structpb.NewStruct(map[string]any{"type": "fragment", "content": fragment})
		if err != nil {
			sendErr = err
			return false
		}
		sendErr = stream.SendMsg(frame)
		return sendErr == nil
	})
	if err != nil {
		return toStatus(err)
	}
	if sendErr != nil {
		return sendErr
	}

	done, err := outcomeStruct(outcome)
	if err != nil {
		return err
	}
	done.Fields["type"] = structpb.NewStringValue("done")
	return stream.SendMsg(done)
}

func actionFrom(in *structpb.Struct) chat.Action {
	fields := in.AsMap()

	session, _ := fields["session"].(string)
	text, _ := fields["text"].(string)
	stream, _ := fields["stream"].(bool)
	return chat.Action{Session: session, Text: text, Stream: stream}
}

func outcomeStruct(outcome chat.Outcome) (*structpb.Struct, error) {
	fields := map[string]any{
		"session":   outcome.Session,
		"appended":  outcome.Appended,
		"duplicate": outcome.Duplicate,
		"cancelled": outcome.Cancelled,
	}
	if outcome.Appended {
		fields["reply"] = outcome.Reply.Content
	}
	if outcome.Err != nil {
		fields["error"] = outcome.Err.Error()
	}
	if outcome.PersistErr != nil {
		fields["persist_error"] = outcome.PersistErr.Error()
	}
	if outcome.Usage != nil {
		fields["prompt_tokens"] = outcome.Usage.PromptTokens
		fields["completion_tokens"] = outcome.Usage.CompletionTokens
	}
	return structpb.NewStruct(fields)
}

func toStatus(err error) error {
	var notFound *core.NotFoundError

	switch {
	case errors.As(err, &notFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, chat.ErrEmptyAction):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
