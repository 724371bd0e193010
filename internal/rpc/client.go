package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a running docchat server.
type Client struct {
	conn *grpc.ClientConn
}

func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Shutdown(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, methodShutdown, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) Submit(ctx context.Context, text, session string) (map[string]any, error) {
	in, err := requestStruct(text, session)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodSubmit, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) ListSessions(ctx context.Context) ([]any, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodListSessions, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	sessions, _ := out.AsMap()["sessions"].([]any)
	return sessions, nil
}

// Stream yields every frame the server sends, ending with the "done" frame.
func (c *Client) Stream(ctx context.Context, text, session string) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		in, err := requestStruct(text, session)
		if err != nil {
			yield(nil, err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := c.conn.NewStream(ctx, &ChatServiceDesc.Streams[0], methodStream)
		if err != nil {
			yield(nil, err)
			return
		}
		if err := stream.SendMsg(in); err != nil {
			yield(nil, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(nil, err)
			return
		}

		for {
			frame := new(structpb.Struct)
			err := stream.RecvMsg(frame)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(frame.AsMap(), nil) {
				return
			}
		}
	}
}

func requestStruct(text, session string) (*structpb.Struct, error) {
	fields := map[string]any{"text": text}
	if session != "" {
		fields["session"] = session
	}
	return structpb.NewStruct(fields)
}
