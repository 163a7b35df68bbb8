package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/rl1809/half-order/internal/adapter/handler/rpc"
	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/core/service"
)

type GRPCHandler struct {
	svc    service.HalfOrderService
	logger *slog.Logger
}

func NewGRPCHandler(svc service.HalfOrderService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{svc: svc, logger: logger.With("component", "grpc")}
}

var _ rpc.HalfOrderServer = (*GRPCHandler)(nil)

func (h *GRPCHandler) Create(ctx context.Context, req *rpc.CreateRequest) (*rpc.SessionReply, error) {
	session, err := h.svc.Create(ctx, service.CreateRequest{
		RestaurantID:    req.RestaurantID,
		TableNo:         req.TableNo,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		MenuItemID:      req.MenuItemID,
		Actor:           actorFromContext(ctx),
		SourceIP:        peerIP(ctx),
	})
	if err != nil {
		return nil, h.toStatus(rpc.MethodCreate, err)
	}
	return &rpc.SessionReply{Session: session}, nil
}

func (h *GRPCHandler) Join(ctx context.Context, req *rpc.JoinRequest) (*rpc.JoinReply, error) {
	result, err := h.svc.Join(ctx, service.JoinRequest{
		SessionID:       req.SessionID,
		TableNo:         req.TableNo,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		RequestID:       req.RequestID,
		Actor:           actorFromContext(ctx),
		SourceIP:        peerIP(ctx),
	})
	if err != nil {
		return nil, h.toStatus(rpc.MethodJoin, err)
	}
	return &rpc.JoinReply{Pairing: result}, nil
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *rpc.CancelRequest) (*rpc.SessionReply, error) {
	actor := actorFromContext(ctx)
	if actor == nil {
		actor = &domain.Actor{Role: domain.RoleCustomer}
	}

	session, err := h.svc.Cancel(ctx, service.CancelRequest{
		SessionID: req.SessionID,
		Actor:     *actor,
		Reason:    req.Reason,
		SourceIP:  peerIP(ctx),
	})
	if err != nil {
		return nil, h.toStatus(rpc.MethodCancel, err)
	}
	return &rpc.SessionReply{Session: session}, nil
}

func (h *GRPCHandler) ListActive(ctx context.Context, req *rpc.ListActiveRequest) (*rpc.ListActiveReply, error) {
	sessions, err := h.svc.ListActive(ctx, req.RestaurantID)
	if err != nil {
		return nil, h.toStatus(rpc.MethodListActive, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return &rpc.ListActiveReply{Sessions: sessions}, nil
}

func (h *GRPCHandler) toStatus(method string, err error) error {
	_, code, message := classify(err)
	if code == codes.Internal {
		h.logger.Error("rpc failed", "method", method, "error", err)
	}

	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		message = "open half order already exists: " + strings.Join(conflict.SessionIDs, ",")
	}
	return status.Error(code, message)
}

func actorFromContext(ctx context.Context) *domain.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	role := strings.TrimSpace(first(md, rpc.MetadataActorRole))
	if role == "" {
		return nil
	}
	return &domain.Actor{
		ID:   first(md, rpc.MetadataActorID),
		Name: first(md, rpc.MetadataActorName),
		Role: domain.Role(strings.ToLower(role)),
	}
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return ""
	}
	return host
}
