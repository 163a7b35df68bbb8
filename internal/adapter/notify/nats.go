package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl1809/half-order/internal/core/domain"
)

type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher pushes events to realtime subscribers on
// <prefix>.<restaurant id>.events.
type NATSPublisher struct {
	conn   natsPublisher
	prefix string
}

func NewNATSPublisher(conn natsPublisher, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(restaurantID int64) string {
	return fmt.Sprintf("%s.%d.events", p.prefix, restaurantID)
}

func (p *NATSPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.RestaurantID), payload); err != nil {
		return fmt.Errorf("publish to nats: %w", err)
	}
	return nil
}
