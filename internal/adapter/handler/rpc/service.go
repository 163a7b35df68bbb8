package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/core/service"
)

const ServiceName = "halforder.HalfOrderService"

const (
	MethodCreate     = "/" + ServiceName + "/Create"
	MethodJoin       = "/" + ServiceName + "/Join"
	MethodCancel     = "/" + ServiceName + "/Cancel"
	MethodListActive = "/" + ServiceName + "/ListActive"
)

// Metadata keys carrying the caller identity.
const (
	MetadataActorID   = "x-actor-id"
	MetadataActorName = "x-actor-name"
	MetadataActorRole = "x-actor-role"
)

type CreateRequest struct {
	RestaurantID    int64  `json:"restaurant_id"`
	TableNo         string `json:"table_no"`
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact,omitempty"`
	MenuItemID      int64  `json:"menu_item_id"`
}

type JoinRequest struct {
	SessionID       string `json:"session_id"`
	TableNo         string `json:"table_no"`
	CustomerName    string `json:"customer_name"`
	CustomerContact string `json:"customer_contact,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

type CancelRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type ListActiveRequest struct {
	RestaurantID int64 `json:"restaurant_id"`
}

type SessionReply struct {
	Session *domain.Session `json:"session"`
}

type JoinReply struct {
	Pairing *service.PairingResult `json:"pairing"`
}

type ListActiveReply struct {
	Sessions []domain.Session `json:"sessions"`
}

type HalfOrderServer interface {
	Create(ctx context.Context, req *CreateRequest) (*SessionReply, error)
	Join(ctx context.Context, req *JoinRequest) (*JoinReply, error)
	Cancel(ctx context.Context, req *CancelRequest) (*SessionReply, error)
	ListActive(ctx context.Context, req *ListActiveRequest) (*ListActiveReply, error)
}

func RegisterHalfOrderServer(s grpc.ServiceRegistrar, srv HalfOrderServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HalfOrderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unary(MethodCreate, HalfOrderServer.Create)},
		{MethodName: "Join", Handler: unary(MethodJoin, HalfOrderServer.Join)},
		{MethodName: "Cancel", Handler: unary(MethodCancel, HalfOrderServer.Cancel)},
		{MethodName: "ListActive", Handler: unary(MethodListActive, HalfOrderServer.ListActive)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "halforder.proto",
}

func unary[Req, Resp any](fullMethod string, call func(HalfOrderServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(HalfOrderServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(HalfOrderServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
