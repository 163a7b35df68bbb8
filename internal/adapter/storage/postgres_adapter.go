package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

// PostgresAdapter serves the same store contract as MySQLAdapter on pgx.
type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

var _ port.SessionStore = (*PostgresAdapter)(nil)

func (p *PostgresAdapter) WithinTx(ctx context.Context, fn func(tx port.SessionTx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(p.pool.QueryRow(ctx, rebind(querySessionByID), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	return s, nil
}

func (p *PostgresAdapter) ListActiveSessions(ctx context.Context, restaurantID int64, now time.Time) ([]domain.Session, error) {
	rows, err := p.pool.Query(ctx, rebind(queryActiveSessions), restaurantID, string(domain.SessionStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	return pgx.CollectRows(rows, collectSession)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	return t.menuItem(ctx, queryMenuItem+" FOR UPDATE", id)
}

func (t *pgTx) GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	return t.menuItem(ctx, queryMenuItem, id)
}

func (t *pgTx) menuItem(ctx context.Context, query string, id int64) (*domain.MenuItem, error) {
	item, err := scanMenuItem(t.tx.QueryRow(ctx, rebind(query), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query menu item: %w", err)
	}
	return item, nil
}

func (t *pgTx) GetJoinFee(ctx context.Context, restaurantID int64) (*float64, error) {
	var fee *float64
	err := t.tx.QueryRow(ctx, rebind(queryJoinFee), restaurantID).Scan(&fee)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query join fee: %w", err)
	}
	return fee, nil
}

func (t *pgTx) FindOpenSessions(ctx context.Context, restaurantID, menuItemID int64, now time.Time) ([]string, error) {
	rows, err := t.tx.Query(ctx, rebind(queryOpenSessions),
		restaurantID, menuItemID, string(domain.SessionStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan session id: %w", err)
	}
	return ids, nil
}

func (t *pgTx) InsertSession(ctx context.Context, s domain.Session) error {
	if _, err := t.tx.Exec(ctx, rebind(insertSession), sessionArgs(s)...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (t *pgTx) LockSession(ctx context.Context, id string) (*domain.Session, error) {
	s, err := scanSession(t.tx.QueryRow(ctx, rebind(querySessionByID+" FOR UPDATE"), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return s, nil
}

func (t *pgTx) UpdateSession(ctx context.Context, s domain.Session) error {
	_, err := t.tx.Exec(ctx, rebind(updateSession),
		string(s.Status), nullable(s.JoinedByTableNo), nullable(s.JoinedByCustomerName), s.JoinedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (t *pgTx) LockExpiredSessions(ctx context.Context, now time.Time) ([]domain.Session, error) {
	rows, err := t.tx.Query(ctx, rebind(queryExpiredSessions),
		string(domain.SessionStatusActive), string(domain.SessionStatusJoined), now)
	if err != nil {
		return nil, fmt.Errorf("lock expired sessions: %w", err)
	}
	return pgx.CollectRows(rows, collectSession)
}

func (t *pgTx) HasActivePairing(ctx context.Context, sessionID, joinerTable string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, rebind(queryActivePairingExists),
		sessionID, sessionID, joinerTable, string(domain.PairedOrderStatusCancelled)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query pairing: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertPairedOrder(ctx context.Context, p domain.PairedOrder) error {
	if _, err := t.tx.Exec(ctx, rebind(insertPairedOrder), pairedOrderArgs(p)...); err != nil {
		return fmt.Errorf("insert paired order: %w", err)
	}
	return nil
}

func (t *pgTx) ListPendingPairings(ctx context.Context, sessionID string) ([]domain.PairedOrder, error) {
	rows, err := t.tx.Query(ctx, rebind(queryPendingPairings),
		sessionID, sessionID, string(domain.PairedOrderStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending pairings: %w", err)
	}
	return pgx.CollectRows(rows, collectPairing)
}

func (t *pgTx) ListOrderSessions(ctx context.Context, orderID string) ([]string, error) {
	rows, err := t.tx.Query(ctx, rebind(queryOrderSessions), orderID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan session id: %w", err)
	}
	return ids, nil
}

func (t *pgTx) LockPairingsByOrder(ctx context.Context, orderID string) ([]domain.PairedOrder, error) {
	rows, err := t.tx.Query(ctx, rebind(queryPairingsByOrder), orderID)
	if err != nil {
		return nil, fmt.Errorf("query pairings by order: %w", err)
	}
	return pgx.CollectRows(rows, collectPairing)
}

func (t *pgTx) UpdatePairedOrder(ctx context.Context, p domain.PairedOrder) error {
	if _, err := t.tx.Exec(ctx, rebind(updatePairedOrder), string(p.Status), p.CompletedAt, p.ID); err != nil {
		return fmt.Errorf("update paired order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o domain.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, rebind(insertOrder), args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertAudit runs inside a savepoint: a failed statement aborts a Postgres
// transaction, and the audit row must not take the mutation down with it.
func (t *pgTx) InsertAudit(ctx context.Context, rec domain.AuditRecord) error {
	args, err := auditArgs(rec)
	if err != nil {
		return err
	}
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, rebind(insertAudit), args...); err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("insert audit: %w", err)
	}
	return sp.Commit(ctx)
}

func collectSession(row pgx.CollectableRow) (domain.Session, error) {
	s, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return *s, nil
}

func collectPairing(row pgx.CollectableRow) (domain.PairedOrder, error) {
	p, err := scanPairedOrder(row)
	if err != nil {
		return domain.PairedOrder{}, fmt.Errorf("scan paired order: %w", err)
	}
	return *p, nil
}
