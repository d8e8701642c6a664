package repositories

import (
	"context"
	"errors"
	"time"

	"tapdeal/internal/models"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// ListOptions bounds a list query.
type ListOptions struct {
	Limit  int
	Offset int
}

// OrderUpdate carries the optional columns written alongside a status
// transition. Zero values are not written.
type OrderUpdate struct {
	GatewayPaymentID string
	GatewaySignature string
	FailureReason    string
	CompletedAt      *time.Time
	RefundedAt       *time.Time
}

type BillRepository interface {
	Create(ctx context.Context, bill *models.BillRequest) error
	GetByBillID(ctx context.Context, billID string) (*models.BillRequest, error)
	ListActive(ctx context.Context, partnerID uint, now time.Time) ([]models.BillRequest, error)
	// MarkUsed flips an ACTIVE, unexpired bill to USED. It reports false when
	// the bill was not in that state at write time.
	MarkUsed(ctx context.Context, billID string, userID uint, orderID string, now time.Time) (bool, error)
	// Cancel flips an ACTIVE, unexpired bill owned by partnerID to CANCELLED.
	Cancel(ctx context.Context, billID string, partnerID uint, now time.Time) (bool, error)
	// MarkExpired persists the expiry of an overdue ACTIVE bill.
	MarkExpired(ctx context.Context, billID string, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	PurgeExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	// Transition moves an order to `to` only if its current status is one of
	// `from`, reporting whether a row changed.
	Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, upd OrderUpdate) (bool, error)
	ListByUser(ctx context.Context, userID uint, opts ListOptions) ([]models.Order, int64, error)
	ListByPartner(ctx context.Context, partnerID uint, opts ListOptions) ([]models.Order, int64, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	// ListSettledByPartner returns COMPLETED and REFUNDED orders.
	ListSettledByPartner(ctx context.Context, partnerID uint) ([]models.Order, error)
}

type PartnerRepository interface {
	Create(ctx context.Context, partner *models.Partner) error
	GetByID(ctx context.Context, id uint) (*models.Partner, error)
	GetByOwner(ctx context.Context, userID uint) (*models.Partner, error)
	UpdateDiscountRate(ctx context.Context, id uint, rate decimal.Decimal) error
	// IncrementAnalytics adds one completed order to the running totals in a
	// single statement.
	IncrementAnalytics(ctx context.Context, id uint, original, discount money.Amount) error
	SetAnalytics(ctx context.Context, id uint, analytics models.PartnerAnalytics) error
}

type SequenceRepository interface {
	// Next atomically increments and returns the named counter.
	Next(ctx context.Context, name string) (int64, error)
}

type WebhookEventRepository interface {
	// Record inserts the event unless (provider, event id) already exists.
	Record(ctx context.Context, event *models.WebhookEvent) (bool, error)
	Get(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processedAt *time.Time, processingError string) error
}

type ReconciliationRepository interface {
	// Record inserts the issue unless one exists for the same gateway order and kind.
	Record(ctx context.Context, issue *models.ReconciliationIssue) (bool, error)
	ListOpen(ctx context.Context, limit int) ([]models.ReconciliationIssue, error)
}

// Store groups the repositories and owns the transaction boundary.
type Store interface {
	Bills() BillRepository
	Orders() OrderRepository
	Partners() PartnerRepository
	Sequences() SequenceRepository
	WebhookEvents() WebhookEventRepository
	Reconciliation() ReconciliationRepository
	// ExecuteInTransaction runs fn against a Store bound to one transaction.
	ExecuteInTransaction(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
}

type store struct {
	db *gorm.DB
}

// NewStore returns a gorm-backed Store.
func NewStore(db *gorm.DB) Store {
	if db == nil {
		panic("db is required")
	}
	return &store{db: db}
}

func (s *store) Bills() BillRepository                    { return &billRepository{db: s.db} }
func (s *store) Orders() OrderRepository                  { return &orderRepository{db: s.db} }
func (s *store) Partners() PartnerRepository              { return &partnerRepository{db: s.db} }
func (s *store) Sequences() SequenceRepository            { return &sequenceRepository{db: s.db} }
func (s *store) WebhookEvents() WebhookEventRepository    { return &webhookEventRepository{db: s.db} }
func (s *store) Reconciliation() ReconciliationRepository { return &reconciliationRepository{db: s.db} }

func (s *store) ExecuteInTransaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	})
}

func (s *store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translate maps gorm errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
