package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/half-order/internal/core/domain"
	"github.com/rl1809/half-order/internal/port"
)

const (
	defaultSessionTTL   = 30 * time.Minute
	defaultCancelWindow = 5 * time.Minute
	defaultJoinFee      = 20.0
)

var contactPattern = regexp.MustCompile(`^\d{10}$`)

type Config struct {
	SessionTTL     time.Duration
	CancelWindow   time.Duration
	DefaultJoinFee float64
	// AllowMultiJoin lets a JOINED session accept pairings from further tables.
	AllowMultiJoin bool
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:     defaultSessionTTL,
		CancelWindow:   defaultCancelWindow,
		DefaultJoinFee: defaultJoinFee,
	}
}

// HalfOrderService is what the transport boundaries call into.
type HalfOrderService interface {
	Create(ctx context.Context, req CreateRequest) (*domain.Session, error)
	Join(ctx context.Context, req JoinRequest) (*PairingResult, error)
	Cancel(ctx context.Context, req CancelRequest) (*domain.Session, error)
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	ListActive(ctx context.Context, restaurantID int64) ([]domain.Session, error)
}

var _ HalfOrderService = (*SessionService)(nil)

type CreateRequest struct {
	RestaurantID    int64
	TableNo         string
	CustomerName    string
	CustomerContact string
	MenuItemID      int64
	Actor           *domain.Actor
	SourceIP        string
}

type JoinRequest struct {
	SessionID       string
	TableNo         string
	CustomerName    string
	CustomerContact string
	// RequestID deduplicates client retries when an idempotency store is configured.
	RequestID string
	Actor     *domain.Actor
	SourceIP  string
}

type CancelRequest struct {
	SessionID string
	Actor     domain.Actor
	Reason    string
	SourceIP  string
}

type PairingResult struct {
	SessionID     string  `json:"session_id"`
	PairedOrderID string  `json:"paired_order_id"`
	OrderID       string  `json:"order_id"`
	TablePairing  string  `json:"table_pairing"`
	MenuItemName  string  `json:"menu_item_name"`
	TotalPrice    float64 `json:"total_price"`
	Status        string  `json:"status"`
}

type Option func(*SessionService)

func WithIdempotency(store port.IdempotencyStore) Option {
	return func(s *SessionService) {
		s.idem = store
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *SessionService) {
		s.logger = logger
	}
}

// SessionService is the half-order lifecycle engine. All coordination
// between concurrent callers happens through row locks in the store.
type SessionService struct {
	store   port.SessionStore
	emitter port.Emitter
	clock   port.Clock
	idem    port.IdempotencyStore
	cfg     Config
	logger  *slog.Logger
}

func NewSessionService(store port.SessionStore, emitter port.Emitter, clock port.Clock, cfg Config, opts ...Option) *SessionService {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.CancelWindow <= 0 {
		cfg.CancelWindow = defaultCancelWindow
	}
	if cfg.DefaultJoinFee < 0 {
		cfg.DefaultJoinFee = defaultJoinFee
	}
	s := &SessionService{
		store:   store,
		emitter: emitter,
		clock:   clock,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "half_order")
	return s
}

// Create opens a new half-order offer for a dish that supports half portions.
func (s *SessionService) Create(ctx context.Context, req CreateRequest) (*domain.Session, error) {
	req.TableNo = strings.TrimSpace(req.TableNo)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerContact = strings.TrimSpace(req.CustomerContact)
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now()
	var session domain.Session

	err := s.store.WithinTx(ctx, func(tx port.SessionTx) error {
		item, err := tx.LockMenuItem(ctx, req.MenuItemID)
		if err != nil {
			return fmt.Errorf("lock menu item: %w", err)
		}
		if item == nil || item.RestaurantID != req.RestaurantID {
			return fmt.Errorf("%w: menu item %d", ErrNotFound, req.MenuItemID)
		}
		if !item.SupportsHalf() {
			return fmt.Errorf("%w: %s is not available as a half order", ErrValidation, item.Name)
		}

		open, err := tx.FindOpenSessions(ctx, req.RestaurantID, item.ID, now)
		if err != nil {
			return fmt.Errorf("find open sessions: %w", err)
		}
		if len(open) > 0 {
			return &ConflictError{SessionIDs: open}
		}

		session = domain.Session{
			ID:              uuid.NewString(),
			RestaurantID:    req.RestaurantID,
			TableNo:         req.TableNo,
			CustomerName:    req.CustomerName,
			CustomerContact: req.CustomerContact,
			MenuItemID:      item.ID,
			MenuItemName:    item.Name,
			Status:          domain.SessionStatusActive,
			CreatedAt:       now,
			ExpiresAt:       now.Add(s.cfg.SessionTTL),
		}
		if err := tx.InsertSession(ctx, session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		rec := newAudit(req.Actor, domain.AuditActionCreate, domain.ResourceHalfOrderSession, session.ID, now)
		rec.SourceIP = req.SourceIP
		rec.Metadata = map[string]any{
			"table_no":     session.TableNo,
			"menu_item_id": session.MenuItemID,
			"expires_at":   session.ExpiresAt,
		}
		s.audit(ctx, tx, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, session.RestaurantID, domain.EventSessionCreated, map[string]any{
		"session_id":     session.ID,
		"table_no":       session.TableNo,
		"customer_name":  session.CustomerName,
		"menu_item_id":   session.MenuItemID,
		"menu_item_name": session.MenuItemName,
		"expires_at":     session.ExpiresAt,
	})
	return &session, nil
}

// Get returns a session, persisting its expiry first if the deadline has
// passed while it was still open.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if session.Status.Terminal() || !session.IsExpiredAt(s.now()) {
		return session, nil
	}
	return s.expireStale(ctx, sessionID)
}

func (s *SessionService) ListActive(ctx context.Context, restaurantID int64) ([]domain.Session, error) {
	if restaurantID <= 0 {
		return nil, fmt.Errorf("%w: restaurant id is required", ErrValidation)
	}
	sessions, err := s.store.ListActiveSessions(ctx, restaurantID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// now is read once per operation; storage keeps microsecond precision.
func (s *SessionService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func (s *SessionService) joinable(status domain.SessionStatus) bool {
	switch status {
	case domain.SessionStatusActive:
		return true
	case domain.SessionStatusJoined:
		return s.cfg.AllowMultiJoin
	}
	return false
}

// audit never fails the surrounding mutation.
func (s *SessionService) audit(ctx context.Context, tx port.SessionTx, rec domain.AuditRecord) {
	if err := tx.InsertAudit(ctx, rec); err != nil {
		s.logger.Error("audit write failed",
			"action", rec.Action,
			"resource_type", rec.ResourceType,
			"resource_id", rec.ResourceID,
			"error", err,
		)
	}
}

func newAudit(actor *domain.Actor, action domain.AuditAction, resourceType, resourceID string, at time.Time) domain.AuditRecord {
	rec := domain.AuditRecord{
		ID:           uuid.NewString(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    at,
	}
	if actor != nil {
		rec.ActorID = actor.ID
		rec.ActorName = actor.Name
	}
	return rec
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, int64, domain.EventType, map[string]any) {}

func validateCreate(req CreateRequest) error {
	if req.RestaurantID <= 0 {
		return fmt.Errorf("%w: restaurant id is required", ErrValidation)
	}
	if req.MenuItemID <= 0 {
		return fmt.Errorf("%w: menu item id is required", ErrValidation)
	}
	return validateCustomer(req.TableNo, req.CustomerName, req.CustomerContact)
}

func validateCustomer(tableNo, name, contact string) error {
	if tableNo == "" {
		return fmt.Errorf("%w: table number is required", ErrValidation)
	}
	if name == "" {
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if contact != "" && !contactPattern.MatchString(contact) {
		return fmt.Errorf("%w: contact must be a 10-digit number", ErrValidation)
	}
	return nil
}
