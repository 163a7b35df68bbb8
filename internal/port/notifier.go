package port

import (
	"context"

	"github.com/rl1809/half-order/internal/core/domain"
)

// Emitter receives events at the end of successful engine operations.
// Implementations must not block the caller on delivery.
type Emitter interface {
	Emit(ctx context.Context, restaurantID int64, eventType domain.EventType, payload map[string]any)
}

// Publisher delivers one event to a transport.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
