package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/settlement"
	"tapdeal/internal/utils/money"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

func isOpen(s models.OrderStatus) bool {
	return s == models.OrderStatusPending || s == models.OrderStatusProcessing
}

type service struct {
	store     repositories.Store
	bills     bill.Service
	partners  partner.Service
	analytics analytics.Service
	gateway   gateway.Gateway
	config    Config
	metrics   metrics.Collector
}

func NewService(
	store repositories.Store,
	bills bill.Service,
	partners partner.Service,
	analyticsSvc analytics.Service,
	gw gateway.Gateway,
	config Config,
	m metrics.Collector,
) Service {
	if store == nil {
		panic("store is required")
	}
	if bills == nil {
		panic("bill service is required")
	}
	if partners == nil {
		panic("partner service is required")
	}
	if analyticsSvc == nil {
		panic("analytics service is required")
	}
	if gw == nil {
		panic("gateway is required")
	}

	if config.Currency == "" {
		config.Currency = "INR"
	}
	if config.GatewayTimeout == 0 {
		config.GatewayTimeout = 10 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}

	return &service{
		store:     store,
		bills:     bills,
		partners:  partners,
		analytics: analyticsSvc,
		gateway:   gw,
		config:    config,
		metrics:   m,
	}
}

func (s *service) CreateFromBill(ctx context.Context, billID string, userID uint) (*Checkout, error) {
	b, err := s.bills.GetPayable(ctx, billID)
	if err != nil {
		return nil, err
	}
	p, err := s.payee(ctx, b.PartnerID, userID)
	if err != nil {
		return nil, err
	}

	split, err := settlement.ComputeSplit(b.Amount, b.DiscountRate, s.config.PlatformFeeRate)
	if err != nil {
		return nil, splitError(err)
	}

	orderID, err := s.nextOrderID(ctx)
	if err != nil {
		return nil, err
	}
	notes := map[string]string{
		"order_id":   orderID,
		"bill_id":    b.BillID,
		"partner_id": strconv.FormatUint(uint64(p.ID), 10),
	}
	gwOrder, err := s.createGatewayOrder(ctx, orderID, split.FinalAmount, notes)
	if err != nil {
		return nil, err
	}

	o := s.newOrder(orderID, userID, p.ID, models.OrderSourceBill, split, gwOrder, notes)
	o.BillRequestID = &b.BillID

	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := s.bills.Consume(ctx, tx, b.BillID, userID, orderID); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		// The gateway order exists but nothing in the ledger points to it.
		// The reconciliation sweep finds it by its receipt.
		log.Warn().
			Err(err).
			Str("order_id", orderID).
			Str("bill_id", b.BillID).
			Str("gateway_order_id", gwOrder.ID).
			Msg("gateway order left without a ledger order")
		return nil, err
	}

	s.created(o)
	return s.checkout(o), nil
}

func (s *service) CreateDirect(ctx context.Context, partnerID, userID uint, amount money.Amount) (*Checkout, error) {
	if amount < s.config.MinAmount || (s.config.MaxAmount > 0 && amount > s.config.MaxAmount) {
		return nil, apperrors.Validation("amount", fmt.Sprintf("must be between %s and %s",
			s.config.MinAmount.String(), s.config.MaxAmount.String()))
	}
	p, err := s.payee(ctx, partnerID, userID)
	if err != nil {
		return nil, err
	}

	split, err := settlement.ComputeSplit(amount, p.DiscountRate, s.config.PlatformFeeRate)
	if err != nil {
		return nil, splitError(err)
	}

	orderID, err := s.nextOrderID(ctx)
	if err != nil {
		return nil, err
	}
	notes := map[string]string{
		"order_id":   orderID,
		"partner_id": strconv.FormatUint(uint64(p.ID), 10),
	}
	gwOrder, err := s.createGatewayOrder(ctx, orderID, split.FinalAmount, notes)
	if err != nil {
		return nil, err
	}

	o := s.newOrder(orderID, userID, p.ID, models.OrderSourceDirect, split, gwOrder, notes)
	if err := s.store.Orders().Create(ctx, o); err != nil {
		log.Warn().
			Err(err).
			Str("order_id", orderID).
			Str("gateway_order_id", gwOrder.ID).
			Msg("gateway order left without a ledger order")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.created(o)
	return s.checkout(o), nil
}

// payee loads the receiving partner and refuses inactive partners and
// partners paying themselves.
func (s *service) payee(ctx context.Context, partnerID, userID uint) (*models.Partner, error) {
	p, err := s.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.ErrPartnerInactive
	}
	if p.OwnerUserID == userID {
		return nil, apperrors.ErrSelfPayment
	}
	return p, nil
}

func (s *service) nextOrderID(ctx context.Context) (string, error) {
	seq, err := s.store.Sequences().Next(ctx, models.SequenceOrder)
	if err != nil {
		return "", fmt.Errorf("failed to allocate order id: %w", err)
	}
	return fmt.Sprintf(orderIDFormat, seq), nil
}

// createGatewayOrder is never retried. Its failure leaves the bill untouched.
func (s *service) createGatewayOrder(ctx context.Context, orderID string, amount money.Amount, notes map[string]string) (*gateway.Order, error) {
	gctx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	o, err := s.gateway.CreateOrder(gctx, gateway.CreateOrderRequest{
		Amount:   amount,
		Currency: s.config.Currency,
		Receipt:  orderID,
		Notes:    notes,
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("gateway order creation failed")
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.ErrGatewayUnavailable.Wrap(err)
	}
	return o, nil
}

func (s *service) newOrder(orderID string, userID, partnerID uint, source string, split settlement.Split, gw *gateway.Order, notes map[string]string) *models.Order {
	raw, _ := json.Marshal(notes)
	return &models.Order{
		OrderID:         orderID,
		UserID:          userID,
		PartnerID:       partnerID,
		Source:          source,
		OriginalAmount:  split.OriginalAmount,
		DiscountRate:    split.DiscountRate,
		DiscountAmount:  split.DiscountAmount,
		PlatformFeeRate: split.PlatformFeeRate,
		PlatformFee:     split.PlatformFee,
		FinalAmount:     split.FinalAmount,
		PartnerPayout:   split.PartnerPayout,
		Currency:        s.config.Currency,
		Status:          models.OrderStatusPending,
		GatewayProvider: s.gateway.Provider(),
		GatewayOrderID:  gw.ID,
		GatewayNotes:    datatypes.JSON(raw),
		CreatedAt:       s.config.Now(),
	}
}

func (s *service) created(o *models.Order) {
	s.metrics.RecordOrderTransition("", string(models.OrderStatusPending))
	log.Info().
		Str("order_id", o.OrderID).
		Str("source", o.Source).
		Uint("user_id", o.UserID).
		Uint("partner_id", o.PartnerID).
		Int64("final_amount", o.FinalAmount.Int64()).
		Str("gateway_order_id", o.GatewayOrderID).
		Msg("order created")
}

func (s *service) checkout(o *models.Order) *Checkout {
	return &Checkout{
		Order: o,
		Gateway: GatewayCheckout{
			Provider: o.GatewayProvider,
			OrderID:  o.GatewayOrderID,
			Amount:   o.FinalAmount,
			Currency: o.Currency,
			Key:      s.gateway.PublicKey(),
		},
	}
}

func (s *service) Verify(ctx context.Context, req VerifyRequest) (*models.Order, error) {
	o, err := s.get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != req.UserID {
		return nil, apperrors.ErrOrderForbidden
	}
	if o.Status == models.OrderStatusCompleted {
		// Client retries of a successful verify are answered with the record.
		if o.GatewayOrderID == req.GatewayOrderID && o.GatewayPaymentID != nil && *o.GatewayPaymentID == req.PaymentID {
			return o, nil
		}
		return nil, apperrors.ErrOrderInvalidState
	}
	if !isOpen(o.Status) {
		return nil, apperrors.ErrOrderInvalidState
	}
	if o.GatewayOrderID != req.GatewayOrderID {
		return nil, apperrors.ErrOrderMismatch
	}

	gctx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()
	ok, err := s.gateway.VerifySignature(gctx, req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		// The payment may still have gone through; the order stays PENDING.
		log.Warn().Err(err).Str("order_id", o.OrderID).Msg("payment verification outcome unknown")
		if errors.Is(err, apperrors.ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, apperrors.ErrGatewayUnavailable.Wrap(err)
	}

	if !ok {
		log.Warn().
			Str("order_id", o.OrderID).
			Str("gateway_order_id", req.GatewayOrderID).
			Str("payment_id", req.PaymentID).
			Uint("user_id", req.UserID).
			Msg("payment signature rejected")
		if _, err := s.transition(ctx, s.store, o, models.OrderStatusFailed, repositories.OrderUpdate{
			GatewayPaymentID: req.PaymentID,
			GatewaySignature: req.Signature,
			FailureReason:    "payment signature verification failed",
		}); err != nil {
			return nil, err
		}
		return nil, apperrors.ErrSignatureInvalid
	}

	if _, err := s.complete(ctx, o, req.PaymentID, req.Signature); err != nil {
		return nil, err
	}

	o, err = s.get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	// A concurrent webhook may have completed it first; either way it is done.
	if o.Status != models.OrderStatusCompleted {
		return nil, apperrors.ErrOrderInvalidState
	}
	return o, nil
}

// complete moves an open order to COMPLETED and records the partner
// analytics in the same transaction. It reports false when another writer
// got there first, in which case analytics are left alone.
func (s *service) complete(ctx context.Context, o *models.Order, paymentID, signature string) (bool, error) {
	now := s.config.Now()
	var changed bool
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		ok, err := tx.Orders().Transition(ctx, o.OrderID, models.SourcesOf(models.OrderStatusCompleted), models.OrderStatusCompleted, repositories.OrderUpdate{
			GatewayPaymentID: paymentID,
			GatewaySignature: signature,
			CompletedAt:      &now,
		})
		if err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}
		if !ok {
			return nil
		}
		changed = true
		return s.analytics.RecordCompletedOrder(ctx, tx, o.PartnerID, o.OriginalAmount, o.DiscountAmount)
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.metrics.RecordOrderTransition(string(o.Status), string(models.OrderStatusCompleted))
		log.Info().
			Str("order_id", o.OrderID).
			Str("payment_id", paymentID).
			Int64("final_amount", o.FinalAmount.Int64()).
			Msg("order completed")
	}
	return changed, nil
}

// transition applies a guarded status change outside of completion.
func (s *service) transition(ctx context.Context, st repositories.Store, o *models.Order, to models.OrderStatus, upd repositories.OrderUpdate) (bool, error) {
	if !models.CanTransition(o.Status, to) {
		return false, nil
	}
	ok, err := st.Orders().Transition(ctx, o.OrderID, models.SourcesOf(to), to, upd)
	if err != nil {
		return false, fmt.Errorf("failed to move order to %s: %w", to, err)
	}
	if ok {
		s.metrics.RecordOrderTransition(string(o.Status), string(to))
		log.Info().
			Str("order_id", o.OrderID).
			Str("from", string(o.Status)).
			Str("to", string(to)).
			Str("reason", upd.FailureReason).
			Msg("order status changed")
	}
	return ok, nil
}

func (s *service) ApplyGatewayEvent(ctx context.Context, ev gateway.Event) (Outcome, error) {
	if ev.Type == gateway.EventIgnored {
		return OutcomeIgnored, nil
	}

	if ev.OrderID == "" && ev.PaymentID != "" {
		gctx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
		p, err := s.gateway.FetchPayment(gctx, ev.PaymentID)
		cancel()
		if err != nil {
			return "", fmt.Errorf("failed to resolve payment %s: %w", ev.PaymentID, err)
		}
		ev.OrderID = p.OrderID
	}

	o, err := s.store.Orders().GetByGatewayOrderID(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.Warn().Str("gateway_order_id", ev.OrderID).Str("event", ev.RawType).Msg("gateway event for unknown order")
			return OutcomeUnknownOrder, nil
		}
		return "", fmt.Errorf("failed to load order: %w", err)
	}

	switch ev.Type {
	case gateway.EventPaymentCaptured:
		if !isOpen(o.Status) {
			return OutcomeIgnored, nil
		}
		if ev.Amount != 0 && ev.Amount != o.FinalAmount {
			return s.amountMismatch(ctx, o, ev)
		}
		changed, err := s.complete(ctx, o, ev.PaymentID, "")
		if err != nil {
			return "", err
		}
		if !changed {
			return OutcomeIgnored, nil
		}
		return OutcomeApplied, nil

	case gateway.EventPaymentFailed:
		if !isOpen(o.Status) {
			return OutcomeIgnored, nil
		}
		reason := ev.Reason
		if reason == "" {
			reason = "payment failed at gateway"
		}
		changed, err := s.transition(ctx, s.store, o, models.OrderStatusFailed, repositories.OrderUpdate{
			GatewayPaymentID: ev.PaymentID,
			FailureReason:    reason,
		})
		if err != nil || !changed {
			return OutcomeIgnored, err
		}
		return OutcomeApplied, nil

	case gateway.EventRefundProcessed:
		if o.Status != models.OrderStatusCompleted {
			return OutcomeIgnored, nil
		}
		now := s.config.Now()
		changed, err := s.transition(ctx, s.store, o, models.OrderStatusRefunded, repositories.OrderUpdate{RefundedAt: &now})
		if err != nil || !changed {
			return OutcomeIgnored, err
		}
		return OutcomeApplied, nil
	}
	return OutcomeIgnored, nil
}

// amountMismatch leaves the order PENDING and files it for an operator.
func (s *service) amountMismatch(ctx context.Context, o *models.Order, ev gateway.Event) (Outcome, error) {
	log.Error().
		Str("order_id", o.OrderID).
		Str("gateway_order_id", o.GatewayOrderID).
		Int64("expected", o.FinalAmount.Int64()).
		Int64("captured", ev.Amount.Int64()).
		Msg("captured amount does not match order")
	_, err := s.store.Reconciliation().Record(ctx, &models.ReconciliationIssue{
		Kind:           models.IssueAmountMismatch,
		GatewayOrderID: o.GatewayOrderID,
		OrderID:        o.OrderID,
		Amount:         ev.Amount,
		Detail:         fmt.Sprintf("expected %s, captured %s (payment %s)", o.FinalAmount, ev.Amount, ev.PaymentID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to record reconciliation issue: %w", err)
	}
	s.metrics.RecordReconcileFinding(models.IssueAmountMismatch)
	return OutcomeAmountMismatch, nil
}

func (s *service) Get(ctx context.Context, orderID string, p Principal) (*models.Order, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == p.UserID || (p.PartnerID != 0 && o.PartnerID == p.PartnerID) {
		return o, nil
	}
	return nil, apperrors.ErrOrderForbidden
}

func (s *service) ListForUser(ctx context.Context, userID uint, opts repositories.ListOptions) ([]models.Order, int64, error) {
	orders, total, err := s.store.Orders().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *service) ListForPartner(ctx context.Context, partnerID uint, opts repositories.ListOptions) ([]models.Order, int64, error) {
	orders, total, err := s.store.Orders().ListByPartner(ctx, partnerID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *service) Abandon(ctx context.Context, orderID, reason string) (bool, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return false, err
	}
	if o.Status != models.OrderStatusPending {
		return false, nil
	}
	return s.transition(ctx, s.store, o, models.OrderStatusCancelled, repositories.OrderUpdate{FailureReason: reason})
}

func (s *service) get(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.store.Orders().GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return o, nil
}

func splitError(err error) error {
	if errors.Is(err, settlement.ErrOverflow) {
		return apperrors.ErrAmountOverflow
	}
	return fmt.Errorf("failed to compute split: %w", err)
}
