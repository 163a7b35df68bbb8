package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/core/service"
)

type mockService struct {
	mock.Mock
}

var _ service.HalfOrderService = (*mockService)(nil)

func (m *mockService) Create(ctx context.Context, req service.CreateRequest) (*domain.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*domain.Session)
	return s, args.Error(1)
}

func (m *mockService) Join(ctx context.Context, req service.JoinRequest) (*service.PairingResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*service.PairingResult)
	return r, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, req service.CancelRequest) (*domain.Session, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*domain.Session)
	return s, args.Error(1)
}

func (m *mockService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*domain.Session)
	return s, args.Error(1)
}

func (m *mockService) ListActive(ctx context.Context, restaurantID int64) ([]domain.Session, error) {
	args := m.Called(ctx, restaurantID)
	s, _ := args.Get(0).([]domain.Session)
	return s, args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
