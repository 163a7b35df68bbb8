package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rl1809/half-order/internal/core/domain"
)

const handleTimeout = 5 * time.Second

// OrderTerminalHandler closes out pairings when a kitchen order finishes.
type OrderTerminalHandler interface {
	HandleOrderTerminal(ctx context.Context, orderID string, status domain.OrderStatus) (int, error)
}

type natsSubscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type kitchenStatusMessage struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// KitchenListener relays kitchen order status changes to the engine.
type KitchenListener struct {
	conn    natsSubscriber
	subject string
	handler OrderTerminalHandler
	logger  *slog.Logger
	sub     *nats.Subscription
}

func NewKitchenListener(conn natsSubscriber, subject string, handler OrderTerminalHandler, logger *slog.Logger) *KitchenListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &KitchenListener{
		conn:    conn,
		subject: subject,
		handler: handler,
		logger:  logger.With("component", "kitchen_listener"),
	}
}

func (l *KitchenListener) Start() error {
	sub, err := l.conn.Subscribe(l.subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		l.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.subject, err)
	}
	l.sub = sub
	l.logger.Info("listening for kitchen order status", "subject", l.subject)
	return nil
}

func (l *KitchenListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Unsubscribe()
}

func (l *KitchenListener) handleMessage(ctx context.Context, data []byte) {
	var msg kitchenStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Info("invalid kitchen status message", "error", err)
		return
	}
	if msg.OrderID == "" {
		l.logger.Debug("kitchen status message missing order_id")
		return
	}

	status, err := domain.ParseOrderStatus(msg.Status)
	if err != nil {
		l.logger.Info("unknown kitchen order status", "order_id", msg.OrderID, "status", msg.Status)
		return
	}
	if !status.Terminal() {
		return
	}

	n, err := l.handler.HandleOrderTerminal(ctx, msg.OrderID, status)
	if err != nil {
		l.logger.Error("close out pairings failed", "order_id", msg.OrderID, "status", status, "error", err)
		return
	}
	if n > 0 {
		l.logger.Info("pairings closed out", "order_id", msg.OrderID, "status", status, "count", n)
	}
}
