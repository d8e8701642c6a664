// Package analytics maintains the per-partner running totals over completed
// orders. The totals are derived data: RecordCompletedOrder is called only by
// the order ledger inside the transaction that moves an order into
// COMPLETED, and Rebuild can always recompute them from the orders.
package analytics

import (
	"context"
	"errors"
	"fmt"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/utils/money"

	"github.com/rs/zerolog/log"
)

type Service interface {
	// RecordCompletedOrder adds one completed order through st, which is
	// expected to be bound to the caller's transaction.
	RecordCompletedOrder(ctx context.Context, st repositories.Store, partnerID uint, original, discount money.Amount) error
	Snapshot(ctx context.Context, partnerID uint) (models.PartnerAnalytics, error)
	Rebuild(ctx context.Context, partnerID uint) (models.PartnerAnalytics, error)
}

type service struct {
	store repositories.Store
}

func NewService(store repositories.Store) Service {
	if store == nil {
		panic("store is required")
	}
	return &service{store: store}
}

func (s *service) RecordCompletedOrder(ctx context.Context, st repositories.Store, partnerID uint, original, discount money.Amount) error {
	if st == nil {
		st = s.store
	}
	if err := st.Partners().IncrementAnalytics(ctx, partnerID, original, discount); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.ErrPartnerNotFound
		}
		return fmt.Errorf("failed to record completed order: %w", err)
	}
	return nil
}

func (s *service) Snapshot(ctx context.Context, partnerID uint) (models.PartnerAnalytics, error) {
	p, err := s.store.Partners().GetByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.PartnerAnalytics{}, apperrors.ErrPartnerNotFound
		}
		return models.PartnerAnalytics{}, fmt.Errorf("failed to load partner: %w", err)
	}
	return p.Analytics, nil
}

// Rebuild replays every order that ever completed. Refunded orders still
// count: the totals track completed volume, not net revenue.
func (s *service) Rebuild(ctx context.Context, partnerID uint) (models.PartnerAnalytics, error) {
	orders, err := s.store.Orders().ListSettledByPartner(ctx, partnerID)
	if err != nil {
		return models.PartnerAnalytics{}, fmt.Errorf("failed to list settled orders: %w", err)
	}
	a := Compute(orders)
	if err := s.store.Partners().SetAnalytics(ctx, partnerID, a); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.PartnerAnalytics{}, apperrors.ErrPartnerNotFound
		}
		return models.PartnerAnalytics{}, fmt.Errorf("failed to store analytics: %w", err)
	}
	log.Info().Uint("partner_id", partnerID).Int64("orders", a.TotalOrders).Msg("partner analytics rebuilt")
	return a, nil
}

// Compute folds orders into totals the same way the incremental path does.
func Compute(orders []models.Order) models.PartnerAnalytics {
	var a models.PartnerAnalytics
	for _, o := range orders {
		if o.Status != models.OrderStatusCompleted && o.Status != models.OrderStatusRefunded {
			continue
		}
		a.TotalOrders++
		a.TotalRevenue += o.OriginalAmount
		a.TotalDiscountGiven += o.DiscountAmount
	}
	if a.TotalOrders > 0 {
		a.AverageOrderValue = (a.TotalRevenue + money.Amount(a.TotalOrders/2)) / money.Amount(a.TotalOrders)
	}
	return a
}
