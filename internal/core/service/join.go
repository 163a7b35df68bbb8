package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

const pairingStatusMatched = "matched"

// Join pairs a second table with an open offer. The session row lock
// serializes concurrent joiners: the first one to commit wins and every
// later contender re-reads the updated row.
func (s *SessionService) Join(ctx context.Context, req JoinRequest) (*PairingResult, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.TableNo = strings.TrimSpace(req.TableNo)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerContact = strings.TrimSpace(req.CustomerContact)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if err := validateCustomer(req.TableNo, req.CustomerName, req.CustomerContact); err != nil {
		return nil, err
	}

	if req.RequestID == "" || s.idem == nil {
		return s.join(ctx, req)
	}

	idempotencyKey := fmt.Sprintf("join:%s:%s", req.SessionID, req.RequestID)
	ok, err := s.idem.SetIdempotency(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	result, err := s.join(ctx, req)
	if err != nil {
		if releaseErr := s.idem.ReleaseIdempotency(ctx, idempotencyKey); releaseErr != nil {
			s.logger.Warn("release idempotency key failed", "key", idempotencyKey, "error", releaseErr)
		}
		return nil, err
	}
	return result, nil
}

func (s *SessionService) join(ctx context.Context, req JoinRequest) (*PairingResult, error) {
	now := s.now()

	var (
		session     domain.Session
		pairing     domain.PairedOrder
		order       domain.Order
		selfJoin    bool
		lazyExpired bool
		promoted    bool
	)

	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		locked, err := tx.LockSession(ctx, req.SessionID)
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if locked == nil {
			return fmt.Errorf("%w: session %s", ErrNotFound, req.SessionID)
		}
		session = *locked
		selfJoin = session.TableNo == req.TableNo

		if !s.joinable(session.Status) {
			if selfJoin {
				return fmt.Errorf("%w: table %s", ErrSelfJoin, req.TableNo)
			}
			return fmt.Errorf("%w: session %s already matched or expired", ErrState, session.ID)
		}

		if session.IsExpiredAt(now) {
			rec := newAudit(req.Actor, domain.AuditActionExpireSession, domain.ResourceHalfOrderSession, session.ID, now)
			rec.SourceIP = req.SourceIP
			rec.Metadata = map[string]any{"reason": "expired_on_join"}
			if _, err := s.expireLocked(ctx, tx, &session, now, rec); err != nil {
				return err
			}
			// Commit the expiry; the caller still gets an error below.
			lazyExpired = true
			return nil
		}

		if selfJoin {
			return fmt.Errorf("%w: table %s", ErrSelfJoin, req.TableNo)
		}

		dup, err := tx.HasActivePairing(ctx, session.ID, req.TableNo)
		if err != nil {
			return fmt.Errorf("check pairing: %w", err)
		}
		if dup {
			return fmt.Errorf("%w: table %s on session %s", ErrDuplicateJoin, req.TableNo, session.ID)
		}

		item, err := tx.GetMenuItem(ctx, session.MenuItemID)
		if err != nil {
			return fmt.Errorf("get menu item: %w", err)
		}
		if item == nil {
			return fmt.Errorf("%w: menu item %d", ErrNotFound, session.MenuItemID)
		}
		fee, err := s.joinFee(ctx, tx, session.RestaurantID)
		if err != nil {
			return err
		}
		price := domain.PairedPrice(*item, fee)

		if session.Status == domain.SessionStatusActive {
			if err := session.RecordJoiner(req.TableNo, req.CustomerName, now); err != nil {
				return fmt.Errorf("%w: %v", ErrState, err)
			}
			if err := tx.UpdateSession(ctx, session); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			promoted = true
		}

		order = domain.Order{
			ID:           uuid.NewString(),
			RestaurantID: session.RestaurantID,
			TableNo:      session.TableNo + "+" + req.TableNo,
			CustomerName: session.CustomerName + " & " + req.CustomerName,
			Phone:        req.CustomerContact,
			Items: []domain.OrderItem{{
				MenuItemID: item.ID,
				Name:       item.Name + " (Half Order)",
				Quantity:   1,
				Price:      price,
				Type:       domain.LineItemTypeHalfOrder,
			}},
			TotalAmount: price,
			Status:      domain.OrderStatusPending,
			OrderType:   domain.OrderTypePaired,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		pairing = domain.PairedOrder{
			ID:            uuid.NewString(),
			SessionAID:    session.ID,
			SessionBID:    session.ID,
			RestaurantID:  session.RestaurantID,
			MenuItemID:    item.ID,
			MenuItemName:  item.Name,
			JoinerTableNo: req.TableNo,
			JoinFee:       fee,
			TotalPrice:    price,
			Status:        domain.PairedOrderStatusPending,
			CreatedAt:     now,
			OrderID:       order.ID,
		}
		if err := tx.InsertPairedOrder(ctx, pairing); err != nil {
			return fmt.Errorf("insert paired order: %w", err)
		}

		rec := newAudit(req.Actor, domain.AuditActionJoinSession, domain.ResourceHalfOrderSession, session.ID, now)
		rec.SourceIP = req.SourceIP
		rec.Metadata = map[string]any{
			"joiner_table_no": req.TableNo,
			"paired_order_id": pairing.ID,
			"order_id":        order.ID,
			"total_price":     price,
		}
		s.audit(ctx, tx, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lazyExpired {
		s.emitExpired(ctx, session)
		if selfJoin {
			return nil, fmt.Errorf("%w: table %s", ErrSelfJoin, req.TableNo)
		}
		return nil, fmt.Errorf("%w: session %s", ErrExpired, session.ID)
	}

	label := tablePairing(session.TableNo, req.TableNo)
	joined := map[string]any{
		"session_id":              session.ID,
		"status":                  session.Status,
		"joined_by_table_no":      req.TableNo,
		"joined_by_customer_name": req.CustomerName,
		"table_pairing":           label,
	}
	if !promoted {
		joined["additional_joiner"] = true
	}
	s.emitter.Emit(ctx, session.RestaurantID, domain.EventSessionJoined, joined)
	s.emitter.Emit(ctx, session.RestaurantID, domain.EventPairedCreated, map[string]any{
		"paired_order_id": pairing.ID,
		"session_id":      session.ID,
		"order_id":        order.ID,
		"menu_item_name":  pairing.MenuItemName,
		"total_price":     pairing.TotalPrice,
		"table_pairing":   label,
	})
	s.emitter.Emit(ctx, session.RestaurantID, domain.EventOrderCreated, map[string]any{
		"order_id":     order.ID,
		"table_no":     order.TableNo,
		"total_amount": order.TotalAmount,
		"order_type":   order.OrderType,
		"status":       order.Status,
	})

	return &PairingResult{
		SessionID:     session.ID,
		PairedOrderID: pairing.ID,
		OrderID:       order.ID,
		TablePairing:  label,
		MenuItemName:  pairing.MenuItemName,
		TotalPrice:    pairing.TotalPrice,
		Status:        pairingStatusMatched,
	}, nil
}

func (s *SessionService) joinFee(ctx context.Context, tx port.SessionTx, restaurantID int64) (float64, error) {
	fee, err := tx.GetJoinFee(ctx, restaurantID)
	if err != nil {
		return 0, fmt.Errorf("get join fee: %w", err)
	}
	if fee == nil {
		return s.cfg.DefaultJoinFee, nil
	}
	return *fee, nil
}

func tablePairing(origin, joiner string) string {
	return "Table " + origin + " + Table " + joiner
}
