package domain

import (
	"fmt"
	"time"
)

type PairedOrderStatus string

const (
	PairedOrderStatusPending   PairedOrderStatus = "PENDING"
	PairedOrderStatusCompleted PairedOrderStatus = "COMPLETED"
	PairedOrderStatusCancelled PairedOrderStatus = "CANCELLED"
)

func ParsePairedOrderStatus(s string) (PairedOrderStatus, error) {
	switch status := PairedOrderStatus(s); status {
	case PairedOrderStatusPending, PairedOrderStatusCompleted, PairedOrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown paired order status %q", s)
}

func (s PairedOrderStatus) CanTransitionTo(next PairedOrderStatus) bool {
	switch s {
	case PairedOrderStatusPending:
		return next == PairedOrderStatusCompleted || next == PairedOrderStatusCancelled
	case PairedOrderStatusCompleted, PairedOrderStatusCancelled:
		return false
	}
	return false
}

// PairedOrder is one joiner's pairing against a session. SessionAID and
// SessionBID both point at the offering session when the pairing comes
// from an ad hoc joiner rather than a second offer.
type PairedOrder struct {
	ID            string            `json:"id"`
	SessionAID    string            `json:"half_session_a"`
	SessionBID    string            `json:"half_session_b"`
	RestaurantID  int64             `json:"restaurant_id"`
	MenuItemID    int64             `json:"menu_item_id"`
	MenuItemName  string            `json:"menu_item_name"`
	JoinerTableNo string            `json:"joiner_table_no"`
	JoinFee       float64           `json:"join_fee"`
	TotalPrice    float64           `json:"total_price"`
	Status        PairedOrderStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	OrderID       string            `json:"order_id,omitempty"`
}

func (p *PairedOrder) Transition(next PairedOrderStatus, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: paired order %s %s -> %s", ErrInvalidTransition, p.ID, p.Status, next)
	}
	p.Status = next
	if next == PairedOrderStatusCompleted {
		p.CompletedAt = &at
	}
	return nil
}

// References reports whether the pairing was made against sessionID.
func (p *PairedOrder) References(sessionID string) bool {
	return p.SessionAID == sessionID || p.SessionBID == sessionID
}
