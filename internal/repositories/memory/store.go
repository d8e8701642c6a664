// Package memory is an in-process implementation of repositories.Store for
// local runs (DB_DRIVER=memory) and tests. Conditional updates are evaluated
// under one mutex so they keep the same single-winner semantics as the SQL
// implementation. Transactions are serialized and roll back by restoring a
// snapshot; bill expiries survive the rollback.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

type data struct {
	bills     map[string]models.BillRequest
	orders    map[string]models.Order
	partners  map[uint]models.Partner
	sequences map[string]int64
	webhooks  map[string]models.WebhookEvent
	issues    map[string]models.ReconciliationIssue
	nextID    uint
}

func newData() *data {
	return &data{
		bills:     make(map[string]models.BillRequest),
		orders:    make(map[string]models.Order),
		partners:  make(map[uint]models.Partner),
		sequences: make(map[string]int64),
		webhooks:  make(map[string]models.WebhookEvent),
		issues:    make(map[string]models.ReconciliationIssue),
	}
}

func (d *data) clone() *data {
	cp := newData()
	for k, v := range d.bills {
		cp.bills[k] = v
	}
	for k, v := range d.orders {
		cp.orders[k] = v
	}
	for k, v := range d.partners {
		cp.partners[k] = v
	}
	for k, v := range d.sequences {
		cp.sequences[k] = v
	}
	for k, v := range d.webhooks {
		cp.webhooks[k] = v
	}
	for k, v := range d.issues {
		cp.issues[k] = v
	}
	cp.nextID = d.nextID
	return cp
}

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	d    *data

	// Now stamps CreatedAt/UpdatedAt; tests may replace it.
	Now func() time.Time
}

func NewStore() *Store {
	return &Store{d: newData(), Now: time.Now}
}

func (s *Store) Bills() repositories.BillRepository                    { return billRepo{s} }
func (s *Store) Orders() repositories.OrderRepository                  { return orderRepo{s} }
func (s *Store) Partners() repositories.PartnerRepository              { return partnerRepo{s} }
func (s *Store) Sequences() repositories.SequenceRepository            { return sequenceRepo{s} }
func (s *Store) WebhookEvents() repositories.WebhookEventRepository    { return webhookRepo{s} }
func (s *Store) Reconciliation() repositories.ReconciliationRepository { return issueRepo{s} }

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(repositories.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.d.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		keepExpiries(snapshot, s.d)
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// keepExpiries carries bill expiries written during a rolled back
// transaction into the restored state. They depend only on the clock.
func keepExpiries(restored, discarded *data) {
	for id, b := range discarded.bills {
		prev, ok := restored.bills[id]
		if ok && prev.Status == models.BillStatusActive && b.Status == models.BillStatusExpired {
			restored.bills[id] = b
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) id() uint {
	s.d.nextID++
	return s.d.nextID
}

type billRepo struct{ s *Store }

func (r billRepo) Create(ctx context.Context, bill *models.BillRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.bills[bill.BillID]; ok {
		return repositories.ErrDuplicate
	}
	for _, b := range r.s.d.bills {
		if b.QRToken == bill.QRToken {
			return repositories.ErrDuplicate
		}
	}
	now := r.s.Now()
	bill.ID = r.s.id()
	bill.CreatedAt, bill.UpdatedAt = now, now
	if bill.Status == "" {
		bill.Status = models.BillStatusActive
	}
	r.s.d.bills[bill.BillID] = *bill
	return nil
}

func (r billRepo) GetByBillID(ctx context.Context, billID string) (*models.BillRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.d.bills[billID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &b, nil
}

func (r billRepo) ListActive(ctx context.Context, partnerID uint, now time.Time) ([]models.BillRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.BillRequest
	for _, b := range r.s.d.bills {
		if b.PartnerID == partnerID && b.Status == models.BillStatusActive && b.ExpiresAt.After(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r billRepo) update(billID string, cond func(models.BillRequest) bool, apply func(*models.BillRequest)) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.d.bills[billID]
	if !ok || !cond(b) {
		return false
	}
	apply(&b)
	b.UpdatedAt = r.s.Now()
	r.s.d.bills[b.BillID] = b
	return true
}

func (r billRepo) MarkUsed(ctx context.Context, billID string, userID uint, orderID string, now time.Time) (bool, error) {
	return r.update(billID, func(b models.BillRequest) bool {
		return b.Status == models.BillStatusActive && b.ExpiresAt.After(now)
	}, func(b *models.BillRequest) {
		b.Status = models.BillStatusUsed
		b.UsedBy = &userID
		b.OrderID = &orderID
		b.UsedAt = &now
	}), nil
}

func (r billRepo) Cancel(ctx context.Context, billID string, partnerID uint, now time.Time) (bool, error) {
	return r.update(billID, func(b models.BillRequest) bool {
		return b.PartnerID == partnerID && b.Status == models.BillStatusActive && b.ExpiresAt.After(now)
	}, func(b *models.BillRequest) {
		b.Status = models.BillStatusCancelled
	}), nil
}

func (r billRepo) MarkExpired(ctx context.Context, billID string, now time.Time) (bool, error) {
	return r.update(billID, func(b models.BillRequest) bool {
		return b.Status == models.BillStatusActive && !b.ExpiresAt.After(now)
	}, func(b *models.BillRequest) {
		b.Status = models.BillStatusExpired
	}), nil
}

func (r billRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, b := range r.s.d.bills {
		if b.Status == models.BillStatusActive && !b.ExpiresAt.After(now) {
			b.Status = models.BillStatusExpired
			r.s.d.bills[id] = b
			n++
		}
	}
	return n, nil
}

func (r billRepo) PurgeExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, b := range r.s.d.bills {
		if b.ExpiresAt.Before(before) {
			delete(r.s.d.bills, id)
			n++
		}
	}
	return n, nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Create(ctx context.Context, order *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.d.orders[order.OrderID]; ok {
		return repositories.ErrDuplicate
	}
	for _, o := range r.s.d.orders {
		if o.GatewayOrderID == order.GatewayOrderID {
			return repositories.ErrDuplicate
		}
	}
	now := r.s.Now()
	order.ID = r.s.id()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.s.d.orders[order.OrderID] = *order
	return nil
}

func (r orderRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[orderID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &o, nil
}

func (r orderRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.d.orders {
		if o.GatewayOrderID == gatewayOrderID {
			return &o, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r orderRepo) Transition(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus, upd repositories.OrderUpdate) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.d.orders[orderID]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if o.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	o.Status = to
	if upd.GatewayPaymentID != "" {
		id := strings.Clone(upd.GatewayPaymentID)
		o.GatewayPaymentID = &id
	}
	if upd.GatewaySignature != "" {
		o.GatewaySignature = strings.Clone(upd.GatewaySignature)
	}
	if upd.FailureReason != "" {
		o.FailureReason = strings.Clone(upd.FailureReason)
	}
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		o.CompletedAt = &t
	}
	if upd.RefundedAt != nil {
		t := *upd.RefundedAt
		o.RefundedAt = &t
	}
	o.UpdatedAt = r.s.Now()
	r.s.d.orders[o.OrderID] = o
	return true, nil
}

func (r orderRepo) filter(keep func(models.Order) bool) []models.Order {
	var out []models.Order
	for _, o := range r.s.d.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func page(orders []models.Order, opts repositories.ListOptions) []models.Order {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if opts.Offset >= len(orders) {
		return nil
	}
	orders = orders[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(orders) {
		orders = orders[:opts.Limit]
	}
	return orders
}

func (r orderRepo) ListByUser(ctx context.Context, userID uint, opts repositories.ListOptions) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.filter(func(o models.Order) bool { return o.UserID == userID })
	return page(all, opts), int64(len(all)), nil
}

func (r orderRepo) ListByPartner(ctx context.Context, partnerID uint, opts repositories.ListOptions) ([]models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.filter(func(o models.Order) bool { return o.PartnerID == partnerID })
	return page(all, opts), int64(len(all)), nil
}

func (r orderRepo) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.filter(func(o models.Order) bool {
		return o.Status == models.OrderStatusPending && o.CreatedAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r orderRepo) ListSettledByPartner(ctx context.Context, partnerID uint) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.filter(func(o models.Order) bool {
		return o.PartnerID == partnerID &&
			(o.Status == models.OrderStatusCompleted || o.Status == models.OrderStatusRefunded)
	}), nil
}

type partnerRepo struct{ s *Store }

func (r partnerRepo) Create(ctx context.Context, partner *models.Partner) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.d.partners {
		if p.OwnerUserID == partner.OwnerUserID {
			return repositories.ErrDuplicate
		}
	}
	now := r.s.Now()
	partner.ID = r.s.id()
	partner.CreatedAt, partner.UpdatedAt = now, now
	r.s.d.partners[partner.ID] = *partner
	return nil
}

func (r partnerRepo) GetByID(ctx context.Context, id uint) (*models.Partner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.partners[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (r partnerRepo) GetByOwner(ctx context.Context, userID uint) (*models.Partner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.d.partners {
		if p.OwnerUserID == userID {
			return &p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r partnerRepo) mutate(id uint, fn func(*models.Partner)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.d.partners[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(&p)
	p.UpdatedAt = r.s.Now()
	r.s.d.partners[id] = p
	return nil
}

func (r partnerRepo) UpdateDiscountRate(ctx context.Context, id uint, rate decimal.Decimal) error {
	return r.mutate(id, func(p *models.Partner) { p.DiscountRate = rate })
}

func (r partnerRepo) IncrementAnalytics(ctx context.Context, id uint, original, discount money.Amount) error {
	return r.mutate(id, func(p *models.Partner) {
		a := &p.Analytics
		a.TotalOrders++
		a.TotalRevenue += original
		a.TotalDiscountGiven += discount
		a.AverageOrderValue = (a.TotalRevenue + money.Amount(a.TotalOrders/2)) / money.Amount(a.TotalOrders)
	})
}

func (r partnerRepo) SetAnalytics(ctx context.Context, id uint, analytics models.PartnerAnalytics) error {
	return r.mutate(id, func(p *models.Partner) { p.Analytics = analytics })
}

type sequenceRepo struct{ s *Store }

func (r sequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.d.sequences[name]++
	return r.s.d.sequences[name], nil
}

type webhookRepo struct{ s *Store }

func webhookKey(provider, eventID string) string {
	return provider + "/" + eventID
}

func (r webhookRepo) Record(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := webhookKey(event.Provider, event.ProviderEventID)
	if _, ok := r.s.d.webhooks[key]; ok {
		return false, nil
	}
	now := r.s.Now()
	event.ID = r.s.id()
	event.CreatedAt, event.UpdatedAt = now, now
	r.s.d.webhooks[key] = *event
	return true, nil
}

func (r webhookRepo) Get(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.d.webhooks[webhookKey(provider, eventID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &e, nil
}

func (r webhookRepo) MarkProcessed(ctx context.Context, id uint, processedAt *time.Time, processingError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, e := range r.s.d.webhooks {
		if e.ID == id {
			e.ProcessedAt = processedAt
			e.ProcessingError = processingError
			e.UpdatedAt = r.s.Now()
			r.s.d.webhooks[key] = e
			return nil
		}
	}
	return repositories.ErrNotFound
}

type issueRepo struct{ s *Store }

func (r issueRepo) Record(ctx context.Context, issue *models.ReconciliationIssue) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := issue.GatewayOrderID + "/" + issue.Kind
	if _, ok := r.s.d.issues[key]; ok {
		return false, nil
	}
	issue.ID = r.s.id()
	issue.CreatedAt = r.s.Now()
	r.s.d.issues[key] = *issue
	return true, nil
}

func (r issueRepo) ListOpen(ctx context.Context, limit int) ([]models.ReconciliationIssue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ReconciliationIssue
	for _, i := range r.s.d.issues {
		if i.ResolvedAt == nil {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
