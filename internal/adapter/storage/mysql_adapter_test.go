package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

var (
	sessionCols = []string{"id", "restaurant_id", "table_no", "customer_name", "customer_contact", "menu_item_id",
		"menu_item_name", "status", "created_at", "expires_at", "joined_by_table_no", "joined_by_customer_name", "joined_at"}
	pairedCols = []string{"id", "half_session_a", "half_session_b", "restaurant_id", "menu_item_id", "menu_item_name",
		"joiner_table_no", "join_fee", "total_price", "status", "created_at", "completed_at", "order_id"}

	created = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
)

func setupMySQLMock(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMySQLAdapter(db), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func activeSessionRow() *sqlmock.Rows {
	return sqlmock.NewRows(sessionCols).AddRow(
		"s-1", int64(1), "4", "Asha", nil, int64(10), "Paneer Tikka", "ACTIVE",
		created, created.Add(30*time.Minute), nil, nil, nil,
	)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	joinedAt := created.Add(time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM half_order_sessions WHERE id = ? FOR UPDATE")).
		WithArgs("s-1").
		WillReturnRows(activeSessionRow())
	mock.ExpectExec(q("UPDATE half_order_sessions")).
		WithArgs("JOINED", "7", "Ravi", joinedAt, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		s, err := tx.LockSession(context.Background(), "s-1")
		if err != nil {
			return err
		}
		require.NotNil(t, s)
		assert.Equal(t, domain.SessionStatusActive, s.Status)
		assert.Empty(t, s.CustomerContact)
		assert.Nil(t, s.JoinedAt)

		if err := s.RecordJoiner("7", "Ravi", joinedAt); err != nil {
			return err
		}
		return tx.UpdateSession(context.Background(), *s)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockSession_NotFound(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM half_order_sessions WHERE id = ? FOR UPDATE")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		s, err := tx.LockSession(context.Background(), "missing")
		assert.NoError(t, err)
		assert.Nil(t, s)
		return errors.New("stop")
	})

	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockSession_RejectsUnknownStatus(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM half_order_sessions WHERE id = ? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			"s-1", int64(1), "4", "Asha", nil, int64(10), "Dish", "PAIRED",
			created, created, nil, nil, nil,
		))
	mock.ExpectRollback()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		_, err := tx.LockSession(context.Background(), "s-1")
		return err
	})

	assert.ErrorContains(t, err, "unknown session status")
}

func TestLockMenuItem(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM menu_items WHERE id = ? FOR UPDATE")).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "name", "price", "half_price"}).
			AddRow(int64(10), int64(1), "Biryani", 280.0, 150.0))
	mock.ExpectQuery(q("FROM menu_items WHERE id = ?")).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "restaurant_id", "name", "price", "half_price"}).
			AddRow(int64(11), int64(1), "Thali", 250.0, nil))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		item, err := tx.LockMenuItem(context.Background(), 10)
		require.NoError(t, err)
		require.NotNil(t, item.HalfPrice)
		assert.Equal(t, 150.0, *item.HalfPrice)
		assert.True(t, item.SupportsHalf())

		item, err = tx.GetMenuItem(context.Background(), 11)
		require.NoError(t, err)
		assert.Nil(t, item.HalfPrice)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJoinFee(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT half_order_join_fee FROM restaurants WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"half_order_join_fee"}).AddRow(35.0))
	mock.ExpectQuery(q("SELECT half_order_join_fee FROM restaurants WHERE id = ?")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"half_order_join_fee"}).AddRow(nil))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		fee, err := tx.GetJoinFee(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, fee)
		assert.Equal(t, 35.0, *fee)

		fee, err = tx.GetJoinFee(context.Background(), 2)
		require.NoError(t, err)
		assert.Nil(t, fee)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOpenSessions(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	now := created.Add(5 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(q("WHERE restaurant_id = ? AND menu_item_id = ? AND status = ? AND expires_at > ?")).
		WithArgs(int64(1), int64(10), "ACTIVE", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1").AddRow("s-2"))
	mock.ExpectCommit()

	var ids []string
	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		var err error
		ids, err = tx.FindOpenSessions(context.Background(), 1, 10, now)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"s-1", "s-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockExpiredSessions_SkipsLockedRows(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	now := created.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE SKIP LOCKED")).
		WithArgs("ACTIVE", "JOINED", now).
		WillReturnRows(activeSessionRow())
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		sessions, err := tx.LockExpiredSessions(context.Background(), now)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "s-1", sessions[0].ID)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPairingQueries(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	completed := created.Add(20 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT EXISTS")).
		WithArgs("s-1", "s-1", "7", "CANCELLED").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q("WHERE (half_session_a = ? OR half_session_b = ?) AND status = ?")).
		WithArgs("s-1", "s-1", "PENDING").
		WillReturnRows(sqlmock.NewRows(pairedCols).AddRow(
			"p-1", "s-1", "s-1", int64(1), int64(10), "Biryani", "7", 20.0, 320.0, "PENDING",
			created, nil, "o-1",
		))
	mock.ExpectExec(q("UPDATE paired_orders SET status = ?, completed_at = ? WHERE id = ?")).
		WithArgs("COMPLETED", completed, "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		ctx := context.Background()
		dup, err := tx.HasActivePairing(ctx, "s-1", "7")
		require.NoError(t, err)
		assert.True(t, dup)

		pending, err := tx.ListPendingPairings(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		p := pending[0]
		assert.Equal(t, 320.0, p.TotalPrice)
		assert.Equal(t, "o-1", p.OrderID)
		assert.Nil(t, p.CompletedAt)

		require.NoError(t, p.Transition(domain.PairedOrderStatusCompleted, completed))
		return tx.UpdatePairedOrder(ctx, p)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrderSessions_ReadsWithoutLocking(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT half_session_a FROM paired_orders WHERE order_id = ?")).
		WithArgs("o-1", "o-1").
		WillReturnRows(sqlmock.NewRows([]string{"half_session_a"}).AddRow("s-1"))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		ids, err := tx.ListOrderSessions(context.Background(), "o-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"s-1"}, ids)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NotContains(t, queryOrderSessions, "FOR UPDATE")
}

func TestInsertOrderAndAudit(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	order := domain.Order{
		ID: "o-1", RestaurantID: 1, TableNo: "4+7", CustomerName: "Asha & Ravi",
		Items:       []domain.OrderItem{{MenuItemID: 10, Name: "Biryani (Half Order)", Quantity: 1, Price: 320, Type: domain.LineItemTypeHalfOrder}},
		TotalAmount: 320, Status: domain.OrderStatusPending, OrderType: domain.OrderTypePaired,
		CreatedAt: created, UpdatedAt: created,
	}
	rec := domain.AuditRecord{
		ID: "a-1", Action: domain.AuditActionJoinSession, ResourceType: domain.ResourceHalfOrderSession,
		ResourceID: "s-1", Metadata: map[string]any{"order_id": "o-1"}, CreatedAt: created,
	}

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO orders")).
		WithArgs("o-1", int64(1), "4+7", "Asha & Ravi", nil,
			`[{"menu_item_id":10,"name":"Biryani (Half Order)","quantity":1,"price":320,"type":"half_order"}]`,
			320.0, "PENDING", "paired", created, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO audit_logs")).
		WithArgs("a-1", nil, nil, "JOIN_SESSION", "half_order_session", "s-1", `{"order_id":"o-1"}`, nil, created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.WithinTx(context.Background(), func(tx port.SessionTx) error {
		if err := tx.InsertOrder(context.Background(), order); err != nil {
			return err
		}
		return tx.InsertAudit(context.Background(), rec)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSession_NotFound(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	mock.ExpectQuery(q("FROM half_order_sessions WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := adapter.GetSession(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestListActiveSessions(t *testing.T) {
	adapter, mock := setupMySQLMock(t)
	now := created.Add(time.Minute)

	mock.ExpectQuery(q("WHERE restaurant_id = ? AND status = ? AND expires_at > ?")).
		WithArgs(int64(1), "ACTIVE", now).
		WillReturnRows(activeSessionRow())

	sessions, err := adapter.ListActiveSessions(context.Background(), 1, now)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Paneer Tikka", sessions[0].MenuItemName)
}

func TestMigrate_ExecutesEveryStatement(t *testing.T) {
	adapter, mock := setupMySQLMock(t)

	raw, err := migrationsFS.ReadFile("migrations/mysql/001_init.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(raw))
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		mock.ExpectExec(q(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, adapter.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	got := rebind("UPDATE paired_orders SET status = ?, completed_at = ? WHERE id = ?")
	assert.Equal(t, "UPDATE paired_orders SET status = $1, completed_at = $2 WHERE id = $3", got)
}
