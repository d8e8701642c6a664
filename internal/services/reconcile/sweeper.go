// Package reconcile settles orders whose gateway callbacks never arrived,
// files gateway payments the ledger does not know about, and expires and
// purges stale bills.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tapdeal/internal/config"
	"tapdeal/internal/metrics"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/order"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Interval        time.Duration
	JanitorInterval time.Duration
	// PendingAfter is how old a PENDING order must be before it is checked.
	PendingAfter time.Duration
	// AbandonAfter cancels PENDING orders with no paid attempt.
	AbandonAfter time.Duration
	Lookback     time.Duration
	PurgeGrace   time.Duration
	Concurrency  int
	BatchSize    int
	Now          func() time.Time
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Interval:        cfg.Reconcile.Interval,
		JanitorInterval: cfg.Reconcile.JanitorInterval,
		PendingAfter:    cfg.Reconcile.PendingAfter,
		AbandonAfter:    cfg.Reconcile.AbandonAfter,
		Lookback:        cfg.Reconcile.Lookback,
		PurgeGrace:      cfg.Bill.PurgeGrace,
		Concurrency:     cfg.Reconcile.Concurrency,
		BatchSize:       cfg.Reconcile.BatchSize,
	}
}

// Report summarizes one sweep.
type Report struct {
	Checked   int
	Settled   int
	Abandoned int
	Issues    int
	Errors    int
}

type Sweeper struct {
	store   repositories.Store
	gateway gateway.Gateway
	orders  order.Service
	bills   bill.Service
	config  Config
	metrics metrics.Collector

	mu sync.Mutex
}

func NewSweeper(store repositories.Store, gw gateway.Gateway, orders order.Service, bills bill.Service, config Config, m metrics.Collector) *Sweeper {
	if store == nil {
		panic("store is required")
	}
	if gw == nil {
		panic("gateway is required")
	}
	if orders == nil {
		panic("order service is required")
	}
	if bills == nil {
		panic("bill service is required")
	}

	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.JanitorInterval <= 0 {
		config.JanitorInterval = time.Hour
	}
	if config.PendingAfter <= 0 {
		config.PendingAfter = 15 * time.Minute
	}
	if config.AbandonAfter <= 0 {
		config.AbandonAfter = 24 * time.Hour
	}
	if config.Lookback <= 0 {
		config.Lookback = 48 * time.Hour
	}
	if config.PurgeGrace <= 0 {
		config.PurgeGrace = 24 * time.Hour
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 200
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}

	return &Sweeper{
		store:   store,
		gateway: gw,
		orders:  orders,
		bills:   bills,
		config:  config,
		metrics: m,
	}
}

// Run sweeps and cleans on their intervals until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	sweep := time.NewTicker(s.config.Interval)
	defer sweep.Stop()
	janitor := time.NewTicker(s.config.JanitorInterval)
	defer janitor.Stop()

	log.Info().
		Dur("interval", s.config.Interval).
		Dur("janitor_interval", s.config.JanitorInterval).
		Msg("reconciliation started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciliation stopped")
			return
		case <-sweep.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("reconciliation sweep failed")
			}
		case <-janitor.C:
			if _, _, err := s.Janitor(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("bill janitor failed")
			}
		}
	}
}

// Sweep settles stale PENDING orders against the gateway, then looks for
// paid gateway orders the ledger does not account for.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	if err := s.settlePending(ctx, &report); err != nil {
		return report, err
	}
	if err := s.findOrphans(ctx, &report); err != nil {
		return report, err
	}

	log.Info().
		Int("checked", report.Checked).
		Int("settled", report.Settled).
		Int("abandoned", report.Abandoned).
		Int("issues", report.Issues).
		Int("errors", report.Errors).
		Msg("reconciliation sweep finished")
	return report, nil
}

func (s *Sweeper) settlePending(ctx context.Context, report *Report) error {
	now := s.config.Now()
	pending, err := s.store.Orders().ListPendingBefore(ctx, now.Add(-s.config.PendingAfter), s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending orders: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i := range pending {
		o := pending[i]
		g.Go(func() error {
			s.settle(gctx, o, now, report)
			return nil
		})
	}
	return g.Wait()
}

// settle checks one PENDING order. Failures are counted and logged so one
// bad order never stops the sweep.
func (s *Sweeper) settle(ctx context.Context, o models.Order, now time.Time, report *Report) {
	s.count(func() { report.Checked++ })

	payments, err := s.gateway.FetchOrderPayments(ctx, o.GatewayOrderID)
	if err != nil {
		s.count(func() { report.Errors++ })
		log.Warn().Err(err).Str("order_id", o.OrderID).Msg("failed to fetch gateway payments")
		return
	}

	inFlight := false
	for _, p := range payments {
		switch p.Status {
		case gateway.PaymentCaptured:
			outcome, err := s.orders.ApplyGatewayEvent(ctx, gateway.Event{
				Type:      gateway.EventPaymentCaptured,
				RawType:   "reconcile.captured",
				OrderID:   o.GatewayOrderID,
				PaymentID: p.ID,
				Amount:    p.Amount,
			})
			if err != nil {
				s.count(func() { report.Errors++ })
				log.Error().Err(err).Str("order_id", o.OrderID).Msg("failed to settle order from gateway")
				return
			}
			switch outcome {
			case order.OutcomeApplied:
				s.count(func() { report.Settled++ })
				log.Info().Str("order_id", o.OrderID).Str("payment_id", p.ID).Msg("order settled by reconciliation")
			case order.OutcomeAmountMismatch:
				s.count(func() { report.Issues++ })
			}
			return
		case gateway.PaymentCreated, gateway.PaymentAuthorized:
			inFlight = true
		}
	}

	if inFlight || now.Sub(o.CreatedAt) < s.config.AbandonAfter {
		return
	}
	ok, err := s.orders.Abandon(ctx, o.OrderID, "no payment received")
	if err != nil {
		s.count(func() { report.Errors++ })
		log.Error().Err(err).Str("order_id", o.OrderID).Msg("failed to abandon order")
		return
	}
	if ok {
		s.count(func() { report.Abandoned++ })
	}
}

// findOrphans files paid gateway orders whose receipt has no ledger order,
// or whose ledger order was closed without the payment.
func (s *Sweeper) findOrphans(ctx context.Context, report *Report) error {
	now := s.config.Now()
	gwOrders, err := s.gateway.ListOrders(ctx, now.Add(-s.config.Lookback), now)
	if err != nil {
		return fmt.Errorf("failed to list gateway orders: %w", err)
	}

	for _, gw := range gwOrders {
		if gw.Receipt == "" {
			continue
		}
		o, err := s.store.Orders().GetByOrderID(ctx, gw.Receipt)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			o = nil
		case err != nil:
			report.Errors++
			log.Warn().Err(err).Str("gateway_order_id", gw.ID).Msg("failed to load order for gateway receipt")
			continue
		}

		// A lost bill race leaves a gateway order no ledger order points to.
		if o == nil || o.GatewayOrderID != gw.ID {
			if !gw.Paid {
				log.Debug().Str("gateway_order_id", gw.ID).Str("receipt", gw.Receipt).Msg("unpaid gateway order without ledger order")
				continue
			}
			s.file(ctx, report, &models.ReconciliationIssue{
				Kind:           models.IssueOrphanPaid,
				GatewayOrderID: gw.ID,
				Amount:         gw.AmountPaid,
				Detail:         fmt.Sprintf("gateway order %s (receipt %s) was paid but has no ledger order", gw.ID, gw.Receipt),
			})
			continue
		}

		if gw.Paid && (o.Status == models.OrderStatusFailed || o.Status == models.OrderStatusCancelled) {
			s.file(ctx, report, &models.ReconciliationIssue{
				Kind:           models.IssuePaidNotCompleted,
				GatewayOrderID: gw.ID,
				OrderID:        o.OrderID,
				Amount:         gw.AmountPaid,
				Detail:         fmt.Sprintf("gateway order %s was paid but order %s is %s", gw.ID, o.OrderID, o.Status),
			})
		}
	}
	return nil
}

func (s *Sweeper) file(ctx context.Context, report *Report, issue *models.ReconciliationIssue) {
	created, err := s.store.Reconciliation().Record(ctx, issue)
	if err != nil {
		report.Errors++
		log.Error().Err(err).Str("gateway_order_id", issue.GatewayOrderID).Msg("failed to record reconciliation issue")
		return
	}
	if !created {
		return
	}
	report.Issues++
	s.metrics.RecordReconcileFinding(issue.Kind)
	log.Error().
		Str("kind", issue.Kind).
		Str("gateway_order_id", issue.GatewayOrderID).
		Str("order_id", issue.OrderID).
		Int64("amount", issue.Amount.Int64()).
		Msg("reconciliation issue recorded")
}

// Janitor persists the expiry of overdue bills and purges bills that have
// been expired for longer than the purge grace.
func (s *Sweeper) Janitor(ctx context.Context) (expired, purged int64, err error) {
	expired, err = s.bills.ExpireOverdue(ctx)
	if err != nil {
		return 0, 0, err
	}
	purged, err = s.bills.Purge(ctx, s.config.Now().Add(-s.config.PurgeGrace))
	if err != nil {
		return expired, 0, err
	}
	if expired > 0 || purged > 0 {
		log.Info().Int64("expired", expired).Int64("purged", purged).Msg("bill janitor finished")
	}
	return expired, purged, nil
}

func (s *Sweeper) count(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}
