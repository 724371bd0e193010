// Package rpc serves the chat orchestrator over gRPC. Messages are the protobuf well-known
// types, so the service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "docchat.v1.ChatService"

	methodStatus       = "/" + ServiceName + "/Status"
	methodShutdown     = "/" + ServiceName + "/Shutdown"
	methodSubmit       = "/" + ServiceName + "/Submit"
	methodListSessions = "/" + ServiceName + "/ListSessions"
	methodStream       = "/" + ServiceName + "/Stream"
)

// ChatServiceServer is implemented by Handler.
type ChatServiceServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Shutdown(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stream(*structpb.Struct, grpc.ServerStream) error
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary(methodStatus, ChatServiceServer.Status)},
		{MethodName: "Shutdown", Handler: unary(methodShutdown, ChatServiceServer.Shutdown)},
		{MethodName: "Submit", Handler: unary(methodSubmit, ChatServiceServer.Submit)},
		{MethodName: "ListSessions", Handler: unary(methodListSessions, ChatServiceServer.ListSessions)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Stream", Handler: streamHandler, ServerStreams: true},
	},
	Metadata: "docchat/v1/chat.proto",
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

// unary adapts a typed method to grpc.MethodHandler.
func unary[Req any, Resp any, PReq interface{ *Req }](fullMethod string, call func(ChatServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChatServiceServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).Stream(in, stream)
}
