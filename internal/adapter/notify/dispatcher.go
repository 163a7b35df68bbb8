package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

const publishTimeout = 5 * time.Second

// Dispatcher fans events out to publishers from a bounded queue so the
// engine never waits on a broker.
type Dispatcher struct {
	queue      chan domain.Event
	publishers []port.Publisher
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(queueSize, workers int, logger *slog.Logger, publishers ...port.Publisher) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		queue:      make(chan domain.Event, queueSize),
		publishers: publishers,
		logger:     logger.With("component", "dispatcher"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	return d
}

var _ port.Emitter = (*Dispatcher)(nil)

// Emit queues an event. A full queue or a closed dispatcher drops it.
func (d *Dispatcher) Emit(ctx context.Context, restaurantID int64, eventType domain.EventType, payload map[string]any) {
	event := domain.Event{
		Type:         eventType,
		RestaurantID: restaurantID,
		Data:         payload,
		Timestamp:    d.now(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event", "type", eventType, "restaurant_id", restaurantID)
		return
	}

	select {
	case d.queue <- event:
	default:
		d.logger.Warn("notification queue full, dropping event", "type", eventType, "restaurant_id", restaurantID)
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		for _, p := range d.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := p.Publish(ctx, event); err != nil {
				d.logger.Error("publish failed",
					"worker", id,
					"type", event.Type,
					"restaurant_id", event.RestaurantID,
					"error", err,
				)
			}
			cancel()
		}
	}
}
