package grpccas

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"verinews.io/verify/storage"
)

// Client is a storage.CAS backed by a remote mirror daemon. Every object it
// returns is checked against the requested CID, so the daemon is never
// trusted for integrity.
type Client struct {
	cc     *grpc.ClientConn
	client CASClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.CAS = (*Client)(nil)

type DialOptions struct {
	// Timeout, when non-zero, makes Dial wait until the daemon is reachable
	// and fail if it is not reachable in time.
	Timeout time.Duration
	// MaxMsgBytes sets both send and receive limits when non-zero. Record
	// objects are small; bundles pushed through a mirror may not be.
	MaxMsgBytes int
}

// Dial connects to a mirror daemon at target (host:port). Connections are
// plaintext; run the daemon behind a local socket or a TLS terminator.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if n := opts.MaxMsgBytes; n > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(n), grpc.MaxCallSendMsgSize(n)))
	}
	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("grpccas: %w", err)
	}
	if opts.Timeout > 0 {
		if err := waitReady(cc, opts.Timeout); err != nil {
			_ = cc.Close()
			return nil, fmt.Errorf("grpccas: mirror %s: %w", target, err)
		}
	}
	return NewClient(cc), nil
}

func waitReady(cc *grpc.ClientConn, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cc.Connect()
	for {
		st := cc.GetState()
		if st == connectivity.Ready {
			return nil
		}
		if !cc.WaitForStateChange(ctx, st) {
			return fmt.Errorf("not ready after %s (last state %s)", timeout, st)
		}
	}
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewCASClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Put stores a record object remotely and insists the daemon answers with
// the key computed locally.
func (c *Client) Put(data []byte) (cid.Cid, error) {
	if c == nil || c.client == nil {
		return cid.Undef, storage.ErrNotFound
	}
	want := storage.Key(data)
	var reply *wrapperspb.StringValue
	err := c.do(func(ctx context.Context) (err error) {
		reply, err = c.client.Put(ctx, wrapperspb.Bytes(data))
		return err
	})
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(reply.GetValue())
	switch {
	case err != nil || !got.Defined():
		return cid.Undef, storage.ErrInvalidCID
	case !got.Equals(want):
		return cid.Undef, storage.ErrCIDMismatch
	}
	return want, nil
}

func (c *Client) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	var reply *wrapperspb.BytesValue
	err := c.do(func(ctx context.Context) (err error) {
		reply, err = c.client.Get(ctx, wrapperspb.String(id.String()))
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := storage.Check(id, reply.GetValue()); err != nil {
		return nil, err
	}
	return reply.GetValue(), nil
}

// Has reports false on transport errors.
func (c *Client) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	var reply *wrapperspb.BoolValue
	err := c.do(func(ctx context.Context) (err error) {
		reply, err = c.client.Has(ctx, wrapperspb.String(id.String()))
		return err
	})
	return err == nil && reply.GetValue()
}

// do runs one RPC under the per-call timeout and maps its status onto the
// storage sentinels.
func (c *Client) do(call func(context.Context) error) error {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	return mapRPC(call(ctx))
}
