package grpccas

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified mirror service. Messages are protobuf
// well-known wrappers, so no generated code is needed:
//
//	service CAS {
//	  rpc Put(google.protobuf.BytesValue)  returns (google.protobuf.StringValue);
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	  rpc Has(google.protobuf.StringValue) returns (google.protobuf.BoolValue);
//	}
const ServiceName = "verinews.mirror.v1.CAS"

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// CASServer is the server API for the mirror service.
type CASServer interface {
	Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
}

// UnimplementedCASServer can be embedded for forward compatibility.
type UnimplementedCASServer struct{}

func (UnimplementedCASServer) Put(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Put not implemented")
}
func (UnimplementedCASServer) Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedCASServer) Has(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Has not implemented")
}

func RegisterCASServer(s grpc.ServiceRegistrar, srv CASServer) {
	s.RegisterService(&CAS_ServiceDesc, srv)
}

// CASClient is the client API for the mirror service.
type CASClient interface {
	Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
}

type casClient struct{ cc grpc.ClientConnInterface }

func NewCASClient(cc grpc.ClientConnInterface) CASClient { return &casClient{cc: cc} }

func invoke[Resp proto.Message](ctx context.Context, cc grpc.ClientConnInterface, method string, in proto.Message, out Resp, opts []grpc.CallOption) (Resp, error) {
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		var zero Resp
		return zero, err
	}
	return out, nil
}

func (c *casClient) Put(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke(ctx, c.cc, "Put", in, new(wrapperspb.StringValue), opts)
}

func (c *casClient) Get(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	return invoke(ctx, c.cc, "Get", in, new(wrapperspb.BytesValue), opts)
}

func (c *casClient) Has(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke(ctx, c.cc, "Has", in, new(wrapperspb.BoolValue), opts)
}

// unaryHandler adapts a typed server method to grpc.MethodDesc.
func unaryHandler[Req proto.Message, Resp any](method string, newReq func() Req, call func(CASServer, context.Context, Req) (Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CASServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CASServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CAS_ServiceDesc is the grpc.ServiceDesc for the mirror service.
var CAS_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CASServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unaryHandler("Put", func() *wrapperspb.BytesValue { return new(wrapperspb.BytesValue) }, CASServer.Put)},
		{MethodName: "Get", Handler: unaryHandler("Get", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, CASServer.Get)},
		{MethodName: "Has", Handler: unaryHandler("Has", func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }, CASServer.Has)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "verinews/mirror/v1/cas.proto",
}
