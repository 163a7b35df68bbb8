package port

import (
	"context"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
)

type Clock interface {
	Now() time.Time
}

// SessionStore is the transactional store behind the half-order engine.
// Every mutation runs inside WithinTx; the callback's error rolls the
// transaction back, a nil return commits it.
type SessionStore interface {
	WithinTx(ctx context.Context, fn func(tx SessionTx) error) error

	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListActiveSessions returns ACTIVE sessions of a restaurant that are
	// still valid at now, newest first.
	ListActiveSessions(ctx context.Context, restaurantID int64, now time.Time) ([]domain.Session, error)
}

// SessionTx is the set of row operations available inside one transaction.
// Lookups return nil, nil when the row is absent.
type SessionTx interface {
	// LockMenuItem reads the menu item FOR UPDATE.
	LockMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error)

	// GetJoinFee returns the restaurant's configured fee, nil when unset.
	GetJoinFee(ctx context.Context, restaurantID int64) (*float64, error)

	// FindOpenSessions returns ids of ACTIVE sessions for the dish whose
	// deadline is after now.
	FindOpenSessions(ctx context.Context, restaurantID, menuItemID int64, now time.Time) ([]string, error)
	InsertSession(ctx context.Context, s domain.Session) error

	// LockSession reads the session FOR UPDATE.
	LockSession(ctx context.Context, id string) (*domain.Session, error)
	UpdateSession(ctx context.Context, s domain.Session) error

	// LockExpiredSessions locks non-terminal sessions whose deadline is at
	// or before now, skipping rows another transaction holds.
	LockExpiredSessions(ctx context.Context, now time.Time) ([]domain.Session, error)

	// HasActivePairing reports whether joinerTable holds a non-cancelled
	// pairing against the session.
	HasActivePairing(ctx context.Context, sessionID, joinerTable string) (bool, error)
	InsertPairedOrder(ctx context.Context, p domain.PairedOrder) error

	// ListPendingPairings locks the PENDING pairings referencing the session.
	ListPendingPairings(ctx context.Context, sessionID string) ([]domain.PairedOrder, error)

	// ListOrderSessions returns the sessions referenced by a kitchen order's
	// pairings without locking anything.
	ListOrderSessions(ctx context.Context, orderID string) ([]string, error)

	// LockPairingsByOrder locks every pairing linked to a kitchen order.
	LockPairingsByOrder(ctx context.Context, orderID string) ([]domain.PairedOrder, error)
	UpdatePairedOrder(ctx context.Context, p domain.PairedOrder) error

	InsertOrder(ctx context.Context, o domain.Order) error

	InsertAudit(ctx context.Context, rec domain.AuditRecord) error
}
