// Package control is the daemon's local gRPC API. Messages are protobuf
// well-known types: requests and replies travel as structpb.Struct holding the
// JSON form of the types in this package.
package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "chatsync.v1.Control"

// ControlServer is the server side of chatsync.v1.Control.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ListConversations(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deselect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadMore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	NotifyTyping(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	QueryPresence(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenameGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddMember(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveMember(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStream) error
}

func newEmpty() *emptypb.Empty   { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func unary[Req, Resp proto.Message](name string, newReq func() Req, call func(ControlServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(Req))
			})
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ServiceDesc describes chatsync.v1.Control for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", newEmpty, ControlServer.GetStatus),
		unary("Login", newStruct, ControlServer.Login),
		unary("Logout", newEmpty, ControlServer.Logout),
		unary("ListConversations", newEmpty, ControlServer.ListConversations),
		unary("GetMessages", newStruct, ControlServer.GetMessages),
		unary("SelectConversation", newStruct, ControlServer.SelectConversation),
		unary("Deselect", newEmpty, ControlServer.Deselect),
		unary("SendMessage", newStruct, ControlServer.SendMessage),
		unary("LoadMore", newStruct, ControlServer.LoadMore),
		unary("NotifyTyping", newStruct, ControlServer.NotifyTyping),
		unary("QueryPresence", newStruct, ControlServer.QueryPresence),
		unary("SearchUsers", newStruct, ControlServer.SearchUsers),
		unary("CreateGroup", newStruct, ControlServer.CreateGroup),
		unary("RenameGroup", newStruct, ControlServer.RenameGroup),
		unary("AddMember", newStruct, ControlServer.AddMember),
		unary("RemoveMember", newStruct, ControlServer.RemoveMember),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).WatchEvents(in, stream)
			},
		},
	},
	Metadata: "chatsync/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
