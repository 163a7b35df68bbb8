package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

var _ port.SessionStore = (*MySQLAdapter)(nil)

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.SessionTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(m.db.QueryRowContext(ctx, querySessionByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

func (m *MySQLAdapter) ListActiveSessions(ctx context.Context, restaurantID int64, now time.Time) ([]domain.Session, error) {
	rows, err := m.db.QueryContext(ctx, queryActiveSessions, restaurantID, string(domain.SessionStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	return collectSessions(rows)
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LockMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	return t.menuItem(ctx, queryMenuItem+" FOR UPDATE", id)
}

func (t *mysqlTx) GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	return t.menuItem(ctx, queryMenuItem, id)
}

func (t *mysqlTx) menuItem(ctx context.Context, query string, id int64) (*domain.MenuItem, error) {
	item, err := scanMenuItem(t.tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query menu item: %w", err)
	}
	return item, nil
}

func (t *mysqlTx) GetJoinFee(ctx context.Context, restaurantID int64) (*float64, error) {
	var fee *float64
	err := t.tx.QueryRowContext(ctx, queryJoinFee, restaurantID).Scan(&fee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query join fee: %w", err)
	}
	return fee, nil
}

func (t *mysqlTx) FindOpenSessions(ctx context.Context, restaurantID, menuItemID int64, now time.Time) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, queryOpenSessions,
		restaurantID, menuItemID, string(domain.SessionStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *mysqlTx) InsertSession(ctx context.Context, s domain.Session) error {
	if _, err := t.tx.ExecContext(ctx, insertSession, sessionArgs(s)...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *mysqlTx) LockSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(t.tx.QueryRowContext(ctx, querySessionByID+" FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return s, nil
}

func (t *mysqlTx) UpdateSession(ctx context.Context, s domain.Session) error {
	_, err := t.tx.ExecContext(ctx, updateSession,
		string(s.Status), nullable(s.JoinedByTableNo), nullable(s.JoinedByCustomerName), s.JoinedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (t *mysqlTx) LockExpiredSessions(ctx context.Context, now time.Time) ([]domain.Session, error) {
	rows, err := t.tx.QueryContext(ctx, queryExpiredSessions,
		string(domain.SessionStatusActive), string(domain.SessionStatusJoined), now)
	if err != nil {
		return nil, fmt.Errorf("lock expired sessions: %w", err)
	}
	return collectSessions(rows)
}

func (t *mysqlTx) HasActivePairing(ctx context.Context, sessionID, joinerTable string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, queryActivePairingExists,
		sessionID, sessionID, joinerTable, string(domain.PairedOrderStatusCancelled)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query pairing: %w", err)
	}
	return exists, nil
}

func (t *mysqlTx) InsertPairedOrder(ctx context.Context, p domain.PairedOrder) error {
	if _, err := t.tx.ExecContext(ctx, insertPairedOrder, pairedOrderArgs(p)...); err != nil {
		return fmt.Errorf("insert paired order: %w", err)
	}
	return nil
}

func (t *mysqlTx) ListPendingPairings(ctx context.Context, sessionID string) ([]domain.PairedOrder, error) {
	rows, err := t.tx.QueryContext(ctx, queryPendingPairings,
		sessionID, sessionID, string(domain.PairedOrderStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending pairings: %w", err)
	}
	return collectPairings(rows)
}

func (t *mysqlTx) ListOrderSessions(ctx context.Context, orderID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, queryOrderSessions, orderID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *mysqlTx) LockPairingsByOrder(ctx context.Context, orderID string) ([]domain.PairedOrder, error) {
	rows, err := t.tx.QueryContext(ctx, queryPairingsByOrder, orderID)
	if err != nil {
		return nil, fmt.Errorf("query pairings by order: %w", err)
	}
	return collectPairings(rows)
}

func (t *mysqlTx) UpdatePairedOrder(ctx context.Context, p domain.PairedOrder) error {
	if _, err := t.tx.ExecContext(ctx, updatePairedOrder, string(p.Status), p.CompletedAt, p.ID); err != nil {
		return fmt.Errorf("update paired order: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o domain.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, insertOrder, args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertAudit relies on MySQL rolling back only the failed statement, so a
// failed audit row leaves the rest of the transaction usable.
func (t *mysqlTx) InsertAudit(ctx context.Context, rec domain.AuditRecord) error {
	args, err := auditArgs(rec)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, insertAudit, args...); err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

func collectSessions(rows *sql.Rows) ([]domain.Session, error) {
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func collectPairings(rows *sql.Rows) ([]domain.PairedOrder, error) {
	defer rows.Close()

	var pairings []domain.PairedOrder
	for rows.Next() {
		p, err := scanPairedOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paired order: %w", err)
		}
		pairings = append(pairings, *p)
	}
	return pairings, rows.Err()
}
