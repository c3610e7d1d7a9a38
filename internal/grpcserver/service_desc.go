package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names, usable with grpc.ClientConn.Invoke.
const (
	TransitionMethod   = "/" + ServiceName + "/Transition"
	BulkEngageMethod   = "/" + ServiceName + "/BulkEngage"
	HideStatusMethod   = "/" + ServiceName + "/HideStatus"
	ListStatusesMethod = "/" + ServiceName + "/ListStatuses"
)

type unaryCall func(StatusServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StatusServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StatusServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatusServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transition", Handler: unaryHandler(TransitionMethod, StatusServiceServer.Transition)},
		{MethodName: "BulkEngage", Handler: unaryHandler(BulkEngageMethod, StatusServiceServer.BulkEngage)},
		{MethodName: "HideStatus", Handler: unaryHandler(HideStatusMethod, StatusServiceServer.HideStatus)},
		{MethodName: "ListStatuses", Handler: unaryHandler(ListStatusesMethod, StatusServiceServer.ListStatuses)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "workforce/status/v1/status.proto",
}

// Client calls ParticipantStatusService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transition(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, TransitionMethod, in, opts...)
}

func (c *Client) BulkEngage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, BulkEngageMethod, in, opts...)
}

func (c *Client) HideStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, HideStatusMethod, in, opts...)
}

func (c *Client) ListStatuses(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, ListStatusesMethod, in, opts...)
}
