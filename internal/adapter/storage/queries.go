package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
)

// Queries are written with ? placeholders; the Postgres adapter rebinds them.
const (
	sessionColumns = `id, restaurant_id, table_no, customer_name, customer_contact, menu_item_id,
		menu_item_name, status, created_at, expires_at, joined_by_table_no, joined_by_customer_name, joined_at`

	pairedColumns = `id, half_session_a, half_session_b, restaurant_id, menu_item_id, menu_item_name,
		joiner_table_no, join_fee, total_price, status, created_at, completed_at, order_id`

	queryMenuItem = `
		SELECT id, restaurant_id, name, price, half_price
		FROM menu_items WHERE id = ?`

	queryJoinFee = `SELECT half_order_join_fee FROM restaurants WHERE id = ?`

	queryOpenSessions = `
		SELECT id FROM half_order_sessions
		WHERE restaurant_id = ? AND menu_item_id = ? AND status = ? AND expires_at > ?
		ORDER BY created_at`

	querySessionByID = `SELECT ` + sessionColumns + ` FROM half_order_sessions WHERE id = ?`

	queryActiveSessions = `
		SELECT ` + sessionColumns + ` FROM half_order_sessions
		WHERE restaurant_id = ? AND status = ? AND expires_at > ?
		ORDER BY created_at DESC`

	queryExpiredSessions = `
		SELECT ` + sessionColumns + ` FROM half_order_sessions
		WHERE status IN (?, ?) AND expires_at <= ?
		ORDER BY expires_at
		FOR UPDATE SKIP LOCKED`

	insertSession = `
		INSERT INTO half_order_sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updateSession = `
		UPDATE half_order_sessions
		SET status = ?, joined_by_table_no = ?, joined_by_customer_name = ?, joined_at = ?
		WHERE id = ?`

	queryActivePairingExists = `
		SELECT EXISTS (
			SELECT 1 FROM paired_orders
			WHERE (half_session_a = ? OR half_session_b = ?) AND joiner_table_no = ? AND status <> ?
		)`

	queryPendingPairings = `
		SELECT ` + pairedColumns + ` FROM paired_orders
		WHERE (half_session_a = ? OR half_session_b = ?) AND status = ?
		ORDER BY created_at
		FOR UPDATE`

	queryOrderSessions = `
		SELECT half_session_a FROM paired_orders WHERE order_id = ?
		UNION
		SELECT half_session_b FROM paired_orders WHERE order_id = ?`

	queryPairingsByOrder = `
		SELECT ` + pairedColumns + ` FROM paired_orders
		WHERE order_id = ?
		ORDER BY created_at
		FOR UPDATE`

	insertPairedOrder = `
		INSERT INTO paired_orders (` + pairedColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	updatePairedOrder = `UPDATE paired_orders SET status = ?, completed_at = ? WHERE id = ?`

	insertOrder = `
		INSERT INTO orders (id, restaurant_id, table_no, customer_name, phone, items,
			total_amount, status, order_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertAudit = `
		INSERT INTO audit_logs (id, actor_id, actor_name, action, resource_type, resource_id,
			metadata, source_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// rebind turns ? placeholders into $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMenuItem(row rowScanner) (*domain.MenuItem, error) {
	var item domain.MenuItem
	if err := row.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.HalfPrice); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                       domain.Session
		status                  string
		contact                 *string
		joinedTable, joinedName *string
		joinedAt                *time.Time
	)
	err := row.Scan(&s.ID, &s.RestaurantID, &s.TableNo, &s.CustomerName, &contact, &s.MenuItemID,
		&s.MenuItemName, &status, &s.CreatedAt, &s.ExpiresAt, &joinedTable, &joinedName, &joinedAt)
	if err != nil {
		return nil, err
	}

	if s.Status, err = domain.ParseSessionStatus(status); err != nil {
		return nil, err
	}
	s.CustomerContact = deref(contact)
	s.JoinedByTableNo = deref(joinedTable)
	s.JoinedByCustomerName = deref(joinedName)
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	if joinedAt != nil {
		at := joinedAt.UTC()
		s.JoinedAt = &at
	}
	return &s, nil
}

func scanPairedOrder(row rowScanner) (*domain.PairedOrder, error) {
	var (
		p           domain.PairedOrder
		status      string
		completedAt *time.Time
		orderID     *string
	)
	err := row.Scan(&p.ID, &p.SessionAID, &p.SessionBID, &p.RestaurantID, &p.MenuItemID, &p.MenuItemName,
		&p.JoinerTableNo, &p.JoinFee, &p.TotalPrice, &status, &p.CreatedAt, &completedAt, &orderID)
	if err != nil {
		return nil, err
	}

	if p.Status, err = domain.ParsePairedOrderStatus(status); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if completedAt != nil {
		at := completedAt.UTC()
		p.CompletedAt = &at
	}
	p.OrderID = deref(orderID)
	return &p, nil
}

func sessionArgs(s domain.Session) []any {
	return []any{
		s.ID, s.RestaurantID, s.TableNo, s.CustomerName, nullable(s.CustomerContact), s.MenuItemID,
		s.MenuItemName, string(s.Status), s.CreatedAt, s.ExpiresAt,
		nullable(s.JoinedByTableNo), nullable(s.JoinedByCustomerName), s.JoinedAt,
	}
}

func pairedOrderArgs(p domain.PairedOrder) []any {
	return []any{
		p.ID, p.SessionAID, p.SessionBID, p.RestaurantID, p.MenuItemID, p.MenuItemName,
		p.JoinerTableNo, p.JoinFee, p.TotalPrice, string(p.Status), p.CreatedAt, p.CompletedAt, nullable(p.OrderID),
	}
}

func orderArgs(o domain.Order) ([]any, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	return []any{
		o.ID, o.RestaurantID, o.TableNo, o.CustomerName, nullable(o.Phone), string(items),
		o.TotalAmount, string(o.Status), o.OrderType, o.CreatedAt, o.UpdatedAt,
	}, nil
}

func auditArgs(rec domain.AuditRecord) ([]any, error) {
	var metadata any
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = string(raw)
	}
	return []any{
		rec.ID, nullable(rec.ActorID), nullable(rec.ActorName), string(rec.Action), rec.ResourceType,
		rec.ResourceID, metadata, nullable(rec.SourceIP), rec.CreatedAt,
	}, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
