package domain

import "time"

type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionJoined    EventType = "session.joined"
	EventPairedCreated    EventType = "paired.created"
	EventOrderCreated     EventType = "order.created"
	EventSessionCancelled EventType = "session.cancelled"
	EventSessionExpired   EventType = "session.expired"
)

// Event is the envelope relayed to realtime and durable subscribers.
type Event struct {
	Type         EventType      `json:"type"`
	RestaurantID int64          `json:"restaurant_id"`
	Data         map[string]any `json:"data"`
	Timestamp    time.Time      `json:"timestamp"`
}
