package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

// Cancel closes an open offer. Customers may only cancel inside the grace
// window counted from creation; staff may cancel until the session is terminal.
func (s *SessionService) Cancel(ctx context.Context, req CancelRequest) (*domain.Session, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	role := req.Actor.Role
	if role != domain.RoleCustomer && !role.IsStaff() {
		return nil, fmt.Errorf("%w: role %q may not cancel half orders", ErrPermission, role)
	}

	now := s.now()
	var (
		session     domain.Session
		lazyExpired bool
	)

	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		lazyExpired = false
		locked, err := tx.LockSession(ctx, req.SessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked == nil {
			return fmt.Errorf("%w: session %s", ErrNotFound, req.SessionID)
		}
		session = *locked
		if session.Status.Terminal() {
			return fmt.Errorf("%w: session %s is already %s", ErrState, session.ID, session.Status)
		}

		elapsed := now.Sub(session.CreatedAt)
		if role == domain.RoleCustomer && elapsed > s.cfg.CancelWindow {
			if !session.IsExpiredAt(now) {
				return errCancelWindow(s.cfg.CancelWindow)
			}
			// Persist the expiry the lock uncovered; the caller still gets
			// the permission error below.
			rec := newAudit(&req.Actor, domain.AuditActionExpireSession, domain.ResourceHalfOrderSession, session.ID, now)
			rec.SourceIP = req.SourceIP
			rec.Metadata = map[string]any{"reason": "expired_on_cancel"}
			if _, err := s.expireLocked(ctx, tx, &session, now, rec); err != nil {
				return err
			}
			lazyExpired = true
			return nil
		}

		rec := newAudit(&req.Actor, domain.AuditActionCancel, domain.ResourceHalfOrderSession, session.ID, now)
		rec.SourceIP = req.SourceIP
		rec.Metadata = map[string]any{
			"reason":          req.Reason,
			"role":            role,
			"elapsed_minutes": elapsed.Minutes(),
		}
		_, err = s.expireLocked(ctx, tx, &session, now, rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	if lazyExpired {
		s.emitExpired(ctx, session)
		return nil, errCancelWindow(s.cfg.CancelWindow)
	}

	s.emitter.Emit(ctx, session.RestaurantID, domain.EventSessionCancelled, map[string]any{
		"session_id":     session.ID,
		"table_no":       session.TableNo,
		"menu_item_name": session.MenuItemName,
		"reason":         req.Reason,
		"cancelled_by":   req.Actor.DisplayName(),
	})
	return &session, nil
}

func errCancelWindow(window time.Duration) error {
	return fmt.Errorf("%w: customers may only cancel within %s of creating the offer", ErrPermission, window)
}

// ExpireSweep expires every open session past its deadline in one
// transaction and returns how many it moved. Rows already EXPIRED are never
// selected, so running it twice is harmless.
func (s *SessionService) ExpireSweep(ctx context.Context) (int, error) {
	now := s.now()
	var expired []domain.Session

	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		expired = expired[:0]
		candidates, err := tx.LockExpiredSessions(ctx, now)
		if err != nil {
			return fmt.Errorf("lock expired sessions: %w", err)
		}
		for i := range candidates {
			session := candidates[i]
			if session.Status.Terminal() {
				continue
			}
			rec := newAudit(nil, domain.AuditActionExpireSession, domain.ResourceHalfOrderSession, session.ID, now)
			rec.Metadata = map[string]any{"reason": "ttl"}
			if _, err := s.expireLocked(ctx, tx, &session, now, rec); err != nil {
				return fmt.Errorf("expire session %s: %w", session.ID, err)
			}
			expired = append(expired, session)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, session := range expired {
		s.emitExpired(ctx, session)
	}
	return len(expired), nil
}

// HandleOrderTerminal closes out the pairings linked to a kitchen order that
// reached COMPLETED or CANCELLED and returns how many pairings changed.
// Session rows are locked before pairing rows, the same order Cancel, Join
// and ExpireSweep use.
func (s *SessionService) HandleOrderTerminal(ctx context.Context, orderID string, status domain.OrderStatus) (int, error) {
	if orderID == "" {
		return 0, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if !status.Terminal() {
		return 0, fmt.Errorf("%w: order status %s is not terminal", ErrValidation, status)
	}

	target := domain.PairedOrderStatusCompleted
	action := domain.AuditActionComplete
	if status == domain.OrderStatusCancelled {
		target = domain.PairedOrderStatusCancelled
		action = domain.AuditActionCancel
	}

	now := s.now()
	var updated int

	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		updated = 0
		sessionIDs, err := tx.ListOrderSessions(ctx, orderID)
		if err != nil {
			return fmt.Errorf("list order sessions: %w", err)
		}
		slices.Sort(sessionIDs)
		sessionIDs = slices.Compact(sessionIDs)

		sessions := make(map[string]*domain.Session, len(sessionIDs))
		for _, id := range sessionIDs {
			session, err := tx.LockSession(ctx, id)
			if err != nil {
				return fmt.Errorf("lock session: %w", err)
			}
			if session != nil {
				sessions[id] = session
			}
		}

		pairings, err := tx.LockPairingsByOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock pairings: %w", err)
		}

		touched := make(map[string]struct{})
		for i := range pairings {
			p := pairings[i]
			if p.Status != domain.PairedOrderStatusPending {
				continue
			}
			if err := p.Transition(target, now); err != nil {
				return fmt.Errorf("%w: %v", ErrState, err)
			}
			if err := tx.UpdatePairedOrder(ctx, p); err != nil {
				return fmt.Errorf("update paired order: %w", err)
			}
			updated++
			touched[p.SessionAID] = struct{}{}

			rec := newAudit(nil, action, domain.ResourcePairedOrder, p.ID, now)
			rec.Metadata = map[string]any{"order_id": orderID, "order_status": status}
			s.audit(ctx, tx, rec)
		}

		if target != domain.PairedOrderStatusCompleted {
			return nil
		}
		for _, sessionID := range slices.Sorted(maps.Keys(touched)) {
			session, ok := sessions[sessionID]
			if !ok {
				continue
			}
			if err := s.completeSession(ctx, tx, session, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// completeSession settles a locked JOINED session once nothing is pending on it.
func (s *SessionService) completeSession(ctx context.Context, tx port.SessionTx, session *domain.Session, now time.Time) error {
	if session.Status != domain.SessionStatusJoined {
		return nil
	}
	pending, err := tx.ListPendingPairings(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("list pending pairings: %w", err)
	}
	if len(pending) > 0 {
		return nil
	}
	if err := session.Transition(domain.SessionStatusCompleted); err != nil {
		return fmt.Errorf("%w: %v", ErrState, err)
	}
	if err := tx.UpdateSession(ctx, *session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	s.audit(ctx, tx, newAudit(nil, domain.AuditActionComplete, domain.ResourceHalfOrderSession, session.ID, now))
	return nil
}

// expireLocked moves a locked session to EXPIRED and cancels its pending
// pairings. It returns the number of pairings cancelled.
func (s *SessionService) expireLocked(ctx context.Context, tx port.SessionTx, session *domain.Session, now time.Time, rec domain.AuditRecord) (int, error) {
	if err := session.Transition(domain.SessionStatusExpired); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrState, err)
	}
	if err := tx.UpdateSession(ctx, *session); err != nil {
		return 0, fmt.Errorf("update session: %w", err)
	}

	pending, err := tx.ListPendingPairings(ctx, session.ID)
	if err != nil {
		return 0, fmt.Errorf("list pending pairings: %w", err)
	}
	for i := range pending {
		p := pending[i]
		if err := p.Transition(domain.PairedOrderStatusCancelled, now); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrState, err)
		}
		if err := tx.UpdatePairedOrder(ctx, p); err != nil {
			return 0, fmt.Errorf("update paired order: %w", err)
		}
	}

	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	rec.Metadata["cancelled_pairings"] = len(pending)
	s.audit(ctx, tx, rec)
	return len(pending), nil
}

// expireStale persists the expiry of a session a read found past deadline.
func (s *SessionService) expireStale(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := s.now()
	var (
		session domain.Session
		changed bool
	)
	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		changed = false
		locked, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked == nil {
			return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
		}
		session = *locked
		if session.Status.Terminal() || !session.IsExpiredAt(now) {
			return nil
		}
		rec := newAudit(nil, domain.AuditActionExpireSession, domain.ResourceHalfOrderSession, session.ID, now)
		rec.Metadata = map[string]any{"reason": "expired_on_read"}
		if _, err := s.expireLocked(ctx, tx, &session, now, rec); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.emitExpired(ctx, session)
	}
	return &session, nil
}

func (s *SessionService) emitExpired(ctx context.Context, session domain.Session) {
	s.emitter.Emit(ctx, session.RestaurantID, domain.EventSessionExpired, map[string]any{
		"session_id":     session.ID,
		"table_no":       session.TableNo,
		"menu_item_name": session.MenuItemName,
		"expires_at":     session.ExpiresAt,
	})
}
