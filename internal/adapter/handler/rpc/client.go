package rpc

import (
	"context"

	"google.golang.org/grpc"
)

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*SessionReply, error) {
	out := new(SessionReply)
	if err := c.invoke(ctx, MethodCreate, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinReply, error) {
	out := new(JoinReply)
	if err := c.invoke(ctx, MethodJoin, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*SessionReply, error) {
	out := new(SessionReply)
	if err := c.invoke(ctx, MethodCancel, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListActive(ctx context.Context, in *ListActiveRequest, opts ...grpc.CallOption) (*ListActiveReply, error) {
	out := new(ListActiveReply)
	if err := c.invoke(ctx, MethodListActive, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}
