package grpccas

import (
	"context"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"verinews.io/verify/storage"
)

// Server exposes a storage.CAS as the mirror service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	id, err := s.CAS.Put(b)
	if err != nil {
		return nil, mapErr(err)
	}
	if !id.Equals(storage.Key(b)) {
		return nil, mapErr(storage.ErrCIDMismatch)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := storage.Check(id, b); err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

func decodeCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, mapErr(storage.ErrInvalidCID)
	}
	return id, nil
}

// LoggingInterceptor logs each call with its method, status code and
// latency. Failures other than NotFound log at warn.
func LoggingInterceptor(log logrus.FieldLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		entry := log.WithFields(logrus.Fields{
			"method":  info.FullMethod,
			"code":    code.String(),
			"latency": time.Since(start),
		})
		switch code {
		case codes.OK, codes.NotFound:
			entry.Debug("rpc")
		default:
			entry.WithError(err).Warn("rpc failed")
		}
		return resp, err
	}
}
