package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"verinews.io/verify/storage"
)

// rpcCodes pairs storage sentinels with the status codes the server uses.
var rpcCodes = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{storage.ErrInvalidCID, codes.InvalidArgument},
	{storage.ErrCIDMismatch, codes.DataLoss},
	{storage.ErrImmutable, codes.AlreadyExists},
}

// mapErr converts a storage error to a gRPC status.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range rpcCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, m.err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// mapRPC converts a gRPC status back to the storage sentinel it came from.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, m := range rpcCodes {
		if st.Code() == m.code || st.Message() == m.err.Error() {
			return m.err
		}
	}
	return err
}
