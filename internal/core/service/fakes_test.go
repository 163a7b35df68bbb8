package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

var errInjected = errors.New("injected failure")

// fakeStore holds whole transactions under txMu, which gives the same
// serialization a row lock gives concurrent joiners of one session.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	menu     map[int64]domain.MenuItem
	fees     map[int64]float64
	sessions map[string]domain.Session
	pairings map[string]domain.PairedOrder
	orders   map[string]domain.Order
	audits   []domain.AuditRecord

	failAudit         bool
	failInsertPairing bool

	// locks records row-lock acquisitions in order.
	locks []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		menu:     make(map[int64]domain.MenuItem),
		fees:     make(map[int64]float64),
		sessions: make(map[string]domain.Session),
		pairings: make(map[string]domain.PairedOrder),
		orders:   make(map[string]domain.Order),
	}
}

func (f *fakeStore) addMenuItem(item domain.MenuItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu[item.ID] = item
}

func (f *fakeStore) session(id string) domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeStore) putSession(s domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *fakeStore) pairing(id string) domain.PairedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairings[id]
}

func (f *fakeStore) order(id string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeStore) recordLock(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = append(f.locks, name)
}

func (f *fakeStore) lockLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.locks)
}

func (f *fakeStore) resetLocks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks = nil
}

func (f *fakeStore) counts() (pairings, orders int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pairings), len(f.orders)
}

func (f *fakeStore) auditActions() []domain.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]domain.AuditAction, 0, len(f.audits))
	for _, rec := range f.audits {
		actions = append(actions, rec.Action)
	}
	return actions
}

type fakeSnapshot struct {
	sessions map[string]domain.Session
	pairings map[string]domain.PairedOrder
	orders   map[string]domain.Order
	audits   []domain.AuditRecord
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(tx port.SessionTx) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	snap := fakeSnapshot{
		sessions: maps.Clone(f.sessions),
		pairings: maps.Clone(f.pairings),
		orders:   maps.Clone(f.orders),
		audits:   slices.Clone(f.audits),
	}
	f.mu.Unlock()

	if err := fn(&fakeTx{store: f}); err != nil {
		f.mu.Lock()
		f.sessions = snap.sessions
		f.pairings = snap.pairings
		f.orders = snap.orders
		f.audits = snap.audits
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) ListActiveSessions(ctx context.Context, restaurantID int64, now time.Time) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.sessions {
		if s.RestaurantID == restaurantID && s.Status == domain.SessionStatusActive && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b domain.Session) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) LockMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	return t.GetMenuItem(ctx, id)
}

func (t *fakeTx) GetMenuItem(ctx context.Context, id int64) (*domain.MenuItem, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	item, ok := t.store.menu[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (t *fakeTx) GetJoinFee(ctx context.Context, restaurantID int64) (*float64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	fee, ok := t.store.fees[restaurantID]
	if !ok {
		return nil, nil
	}
	return &fee, nil
}

func (t *fakeTx) FindOpenSessions(ctx context.Context, restaurantID, menuItemID int64, now time.Time) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var ids []string
	for _, s := range t.store.sessions {
		if s.RestaurantID == restaurantID && s.MenuItemID == menuItemID &&
			s.Status == domain.SessionStatusActive && s.ExpiresAt.After(now) {
			ids = append(ids, s.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *fakeTx) InsertSession(ctx context.Context, s domain.Session) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.sessions[s.ID] = s
	return nil
}

func (t *fakeTx) LockSession(ctx context.Context, id string) (*domain.Session, error) {
	t.store.recordLock("session:" + id)
	return t.store.GetSession(ctx, id)
}

func (t *fakeTx) UpdateSession(ctx context.Context, s domain.Session) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.sessions[s.ID] = s
	return nil
}

func (t *fakeTx) LockExpiredSessions(ctx context.Context, now time.Time) ([]domain.Session, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []domain.Session
	for _, s := range t.store.sessions {
		if !s.Status.Terminal() && !s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *fakeTx) HasActivePairing(ctx context.Context, sessionID, joinerTable string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, p := range t.store.pairings {
		if p.References(sessionID) && p.JoinerTableNo == joinerTable && p.Status != domain.PairedOrderStatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertPairedOrder(ctx context.Context, p domain.PairedOrder) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failInsertPairing {
		return errInjected
	}
	t.store.pairings[p.ID] = p
	return nil
}

func (t *fakeTx) ListPendingPairings(ctx context.Context, sessionID string) ([]domain.PairedOrder, error) {
	t.store.recordLock("pending:" + sessionID)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []domain.PairedOrder
	for _, p := range t.store.pairings {
		if p.References(sessionID) && p.Status == domain.PairedOrderStatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTx) ListOrderSessions(ctx context.Context, orderID string) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var ids []string
	for _, p := range t.store.pairings {
		if p.OrderID == orderID {
			ids = append(ids, p.SessionAID, p.SessionBID)
		}
	}
	return ids, nil
}

func (t *fakeTx) LockPairingsByOrder(ctx context.Context, orderID string) ([]domain.PairedOrder, error) {
	t.store.recordLock("order:" + orderID)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []domain.PairedOrder
	for _, p := range t.store.pairings {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTx) UpdatePairedOrder(ctx context.Context, p domain.PairedOrder) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.pairings[p.ID] = p
	return nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, o domain.Order) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.orders[o.ID] = o
	return nil
}

func (t *fakeTx) InsertAudit(ctx context.Context, rec domain.AuditRecord) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failAudit {
		return errInjected
	}
	t.store.audits = append(t.store.audits, rec)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, restaurantID int64, eventType domain.EventType, payload map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, domain.Event{Type: eventType, RestaurantID: restaurantID, Data: payload})
}

func (e *recordingEmitter) types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

// Mock IdempotencyStore
type mockIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotency() *mockIdempotency {
	return &mockIdempotency{keys: make(map[string]bool)}
}

func (m *mockIdempotency) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotency) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *mockIdempotency) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key]
}
