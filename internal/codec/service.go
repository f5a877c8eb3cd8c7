package codec

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-names
const (
	ServiceName = "facilitator.v1.Moderator"

	methodUpdateInstructions = "/" + ServiceName + "/UpdateInstructions"
	methodScoreDrift         = "/" + ServiceName + "/ScoreDrift"
	methodIntervene          = "/" + ServiceName + "/Intervene"
)

// #endregion service-names

// #region client-stub
// ModeratorClient is the client side of the moderator service. Messages are
// google.protobuf.Struct so the backend can evolve fields without a shared
// generated package.
type ModeratorClient interface {
	UpdateInstructions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ScoreDrift(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Intervene(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type moderatorClient struct {
	cc grpc.ClientConnInterface
}

// NewModeratorClient returns a stub bound to cc.
func NewModeratorClient(cc grpc.ClientConnInterface) ModeratorClient {
	return &moderatorClient{cc: cc}
}

func (c *moderatorClient) UpdateInstructions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodUpdateInstructions, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *moderatorClient) ScoreDrift(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodScoreDrift, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *moderatorClient) Intervene(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodIntervene, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion client-stub

// #region server-stub
// ModeratorServer is implemented by backends (and by test doubles).
type ModeratorServer interface {
	UpdateInstructions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScoreDrift(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Intervene(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterModeratorServer attaches srv to s.
func RegisterModeratorServer(s grpc.ServiceRegistrar, srv ModeratorServer) {
	s.RegisterService(&moderatorServiceDesc, srv)
}

func unaryHandler(method string, call func(ModeratorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ModeratorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ModeratorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var moderatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModeratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "UpdateInstructions",
			Handler: unaryHandler(methodUpdateInstructions, func(s ModeratorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.UpdateInstructions(ctx, in)
			}),
		},
		{
			MethodName: "ScoreDrift",
			Handler: unaryHandler(methodScoreDrift, func(s ModeratorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.ScoreDrift(ctx, in)
			}),
		},
		{
			MethodName: "Intervene",
			Handler: unaryHandler(methodIntervene, func(s ModeratorServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Intervene(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "facilitator/v1/moderator.proto",
}

// #endregion server-stub
