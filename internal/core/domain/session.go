package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusJoined    SessionStatus = "JOINED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
)

// ParseSessionStatus rejects anything outside the closed set of statuses.
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch status := SessionStatus(s); status {
	case SessionStatusActive, SessionStatusJoined, SessionStatusExpired, SessionStatusCompleted:
		return status, nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

func (s SessionStatus) Terminal() bool {
	return s == SessionStatusExpired || s == SessionStatusCompleted
}

// CanTransitionTo reports whether next is a legal successor of s.
// ACTIVE -> JOINED|EXPIRED, JOINED -> EXPIRED|COMPLETED; terminal states have no successors.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusActive:
		return next == SessionStatusJoined || next == SessionStatusExpired
	case SessionStatusJoined:
		return next == SessionStatusExpired || next == SessionStatusCompleted
	case SessionStatusExpired, SessionStatusCompleted:
		return false
	}
	return false
}

// Session is one customer's offer to split a dish.
type Session struct {
	ID                   string        `json:"id"`
	RestaurantID         int64         `json:"restaurant_id"`
	TableNo              string        `json:"table_no"`
	CustomerName         string        `json:"customer_name"`
	CustomerContact      string        `json:"customer_contact,omitempty"`
	MenuItemID           int64         `json:"menu_item_id"`
	MenuItemName         string        `json:"menu_item_name"`
	Status               SessionStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	ExpiresAt            time.Time     `json:"expires_at"`
	JoinedByTableNo      string        `json:"joined_by_table_no,omitempty"`
	JoinedByCustomerName string        `json:"joined_by_customer_name,omitempty"`
	JoinedAt             *time.Time    `json:"joined_at,omitempty"`
}

// IsExpiredAt reports whether the offer's deadline has passed at now.
// A session is only valid while expires_at is strictly in the future.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) Transition(next SessionStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: session %s %s -> %s", ErrInvalidTransition, s.ID, s.Status, next)
	}
	s.Status = next
	return nil
}

// RecordJoiner moves an ACTIVE session to JOINED and stamps the joiner.
func (s *Session) RecordJoiner(tableNo, customerName string, at time.Time) error {
	if err := s.Transition(SessionStatusJoined); err != nil {
		return err
	}
	s.JoinedByTableNo = tableNo
	s.JoinedByCustomerName = customerName
	s.JoinedAt = &at
	return nil
}
