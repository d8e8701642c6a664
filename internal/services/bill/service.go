package bill

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/qr"
	"tapdeal/internal/services/settlement"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type service struct {
	store    repositories.Store
	partners partner.Service
	codec    *qr.Codec
	config   Config
	metrics  metrics.Collector
}

func NewService(
	store repositories.Store,
	partners partner.Service,
	codec *qr.Codec,
	config Config,
	m metrics.Collector,
) Service {
	if store == nil {
		panic("store is required")
	}
	if partners == nil {
		panic("partner service is required")
	}
	if codec == nil {
		panic("token codec is required")
	}

	if config.Now == nil {
		config.Now = time.Now
	}
	if config.DefaultExpiry == 0 {
		config.DefaultExpiry = 10 * time.Minute
	}
	if config.MaxExpiry == 0 {
		config.MaxExpiry = 24 * time.Hour
	}
	if config.MaxDiscountRate.IsZero() {
		config.MaxDiscountRate = decimal.NewFromInt(50)
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}

	return &service{
		store:    store,
		partners: partners,
		codec:    codec.WithClock(config.Now),
		config:   config,
		metrics:  m,
	}
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*CreatedBill, error) {
	if req.Amount < s.config.MinAmount || req.Amount > s.config.MaxAmount {
		return nil, apperrors.Validation("amount", fmt.Sprintf("must be between %s and %s",
			s.config.MinAmount.String(), s.config.MaxAmount.String()))
	}
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLength {
		return nil, apperrors.Validation("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	expiry := s.config.DefaultExpiry
	if req.ExpiryMinutes != 0 {
		expiry = time.Duration(req.ExpiryMinutes) * time.Minute
		if req.ExpiryMinutes < 1 || expiry > s.config.MaxExpiry {
			return nil, apperrors.Validation("expiryMinutes", fmt.Sprintf("must be between 1 and %d",
				int(s.config.MaxExpiry/time.Minute)))
		}
	}

	p, err := s.partners.Get(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.ErrPartnerInactive
	}

	// The rate is read once here and locked into the bill.
	rate := p.DiscountRate
	if req.DiscountRate != nil {
		rate = *req.DiscountRate
	}
	if err := s.checkRate(rate); err != nil {
		return nil, err
	}

	split, err := settlement.ComputeSplit(req.Amount, rate, s.config.PlatformFeeRate)
	if err != nil {
		return nil, splitError(err)
	}

	// Step one: reserve the id. Step two: sign a token bound to it. The row is
	// written once, complete, so no reader sees a bill without its token.
	seq, err := s.store.Sequences().Next(ctx, models.SequenceBill)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate bill id: %w", err)
	}
	billID := fmt.Sprintf(billIDFormat, seq)

	expiresAt := s.config.Now().Add(expiry).Truncate(time.Second)
	token, err := s.codec.Encode(qr.Payload{
		BillID:    billID,
		PartnerID: p.ID,
		Amount:    req.Amount.Int64(),
		ExpiresAt: expiresAt.Add(s.config.TokenGrace).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode bill token: %w", err)
	}

	b := &models.BillRequest{
		BillID:       billID,
		PartnerID:    p.ID,
		Amount:       req.Amount,
		DiscountRate: rate,
		Description:  req.Description,
		QRToken:      token,
		Status:       models.BillStatusActive,
		ExpiresAt:    expiresAt,
	}
	if err := s.store.Bills().Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}

	s.metrics.RecordBillCreated()
	log.Info().
		Str("bill_id", billID).
		Uint("partner_id", p.ID).
		Int64("amount", req.Amount.Int64()).
		Str("discount_rate", rate.StringFixed(2)).
		Time("expires_at", expiresAt).
		Msg("bill created")

	return &CreatedBill{Bill: b, Split: split}, nil
}

func (s *service) checkRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(s.config.MaxDiscountRate) {
		return apperrors.Validation("discountRate", fmt.Sprintf("must be between 0 and %s", s.config.MaxDiscountRate.String()))
	}
	if !rate.Shift(2).IsInteger() {
		return apperrors.Validation("discountRate", "must have at most two decimal places")
	}
	return nil
}

func splitError(err error) error {
	switch {
	case errors.Is(err, settlement.ErrOverflow):
		return apperrors.ErrAmountOverflow
	case errors.Is(err, settlement.ErrRateRange), errors.Is(err, settlement.ErrRatePrecision):
		return apperrors.Validation("discountRate", err.Error())
	case errors.Is(err, settlement.ErrNegativeAmount):
		return apperrors.Validation("amount", err.Error())
	}
	return fmt.Errorf("failed to compute split: %w", err)
}

func (s *service) ListActive(ctx context.Context, partnerID uint) ([]models.BillRequest, error) {
	bills, err := s.store.Bills().ListActive(ctx, partnerID, s.config.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active bills: %w", err)
	}
	return bills, nil
}

func (s *service) Cancel(ctx context.Context, partnerID uint, billID string) error {
	b, err := s.get(ctx, billID)
	if err != nil {
		return err
	}
	if b.PartnerID != partnerID {
		return apperrors.ErrBillNotFound
	}

	now := s.config.Now()
	switch EffectiveStatus(b, now) {
	case models.BillStatusActive:
	case models.BillStatusExpired:
		s.correctExpiry(ctx, b, now)
		return apperrors.ErrBillNotActive.WithMessage("bill has expired")
	default:
		return apperrors.ErrBillNotActive
	}

	ok, err := s.store.Bills().Cancel(ctx, billID, partnerID, now)
	if err != nil {
		return fmt.Errorf("failed to cancel bill: %w", err)
	}
	if !ok {
		// Consumed or expired between the read and the write.
		return apperrors.ErrBillNotActive
	}
	log.Info().Str("bill_id", billID).Uint("partner_id", partnerID).Msg("bill cancelled")
	return nil
}

func (s *service) Validate(ctx context.Context, token string) (*ValidatedBill, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		s.metrics.RecordBillValidation("invalid_token")
		log.Warn().Err(err).Msg("qr token rejected")
		return nil, apperrors.ErrInvalidToken
	}

	b, err := s.get(ctx, payload.BillID)
	if err != nil {
		s.metrics.RecordBillValidation("not_found")
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(b.QRToken), []byte(token)) != 1 ||
		b.PartnerID != payload.PartnerID || b.Amount.Int64() != payload.Amount {
		s.metrics.RecordBillValidation("invalid_token")
		log.Warn().Str("bill_id", b.BillID).Msg("qr token does not match the stored bill")
		return nil, apperrors.ErrInvalidToken
	}

	if err := s.checkPayable(ctx, b); err != nil {
		s.metrics.RecordBillValidation(resultOf(err))
		return nil, err
	}

	p, err := s.partners.Get(ctx, b.PartnerID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		s.metrics.RecordBillValidation("partner_inactive")
		return nil, apperrors.ErrPartnerInactive
	}

	split, err := settlement.ComputeSplit(b.Amount, b.DiscountRate, s.config.PlatformFeeRate)
	if err != nil {
		return nil, splitError(err)
	}

	s.metrics.RecordBillValidation("valid")
	return &ValidatedBill{Bill: b, Merchant: p.Public(), Split: split}, nil
}

func (s *service) GetPayable(ctx context.Context, billID string) (*models.BillRequest, error) {
	b, err := s.get(ctx, billID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPayable(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) Consume(ctx context.Context, st repositories.Store, billID string, userID uint, orderID string) (*models.BillRequest, error) {
	if st == nil {
		st = s.store
	}
	now := s.config.Now()
	ok, err := st.Bills().MarkUsed(ctx, billID, userID, orderID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume bill: %w", err)
	}

	b, err := st.Bills().GetByBillID(ctx, billID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrBillNotFound
		}
		return nil, fmt.Errorf("failed to reload bill: %w", err)
	}
	if ok {
		return b, nil
	}

	if err := s.checkPayable(ctx, b); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("bill %s could not be consumed while active", billID)
}

// checkPayable maps a bill's effective status onto the ledger's errors,
// persisting a lazy expiry when it finds one.
func (s *service) checkPayable(ctx context.Context, b *models.BillRequest) error {
	now := s.config.Now()
	switch EffectiveStatus(b, now) {
	case models.BillStatusActive:
		return nil
	case models.BillStatusExpired:
		s.correctExpiry(ctx, b, now)
		return apperrors.ErrBillExpired
	case models.BillStatusUsed:
		return apperrors.ErrBillAlreadyUsed
	case models.BillStatusCancelled:
		return apperrors.ErrBillCancelled
	default:
		return apperrors.ErrBillNotActive
	}
}

// correctExpiry persists an expiry observed on read. It always writes through
// the root store so the correction survives a rolled back caller.
func (s *service) correctExpiry(ctx context.Context, b *models.BillRequest, now time.Time) {
	if b.Status != models.BillStatusActive {
		return
	}
	ok, err := s.store.Bills().MarkExpired(ctx, b.BillID, now)
	if err != nil {
		log.Error().Err(err).Str("bill_id", b.BillID).Msg("failed to persist bill expiry")
		return
	}
	if ok {
		b.Status = models.BillStatusExpired
		log.Info().
			Str("bill_id", b.BillID).
			Time("expires_at", b.ExpiresAt).
			Msg("bill expiry corrected on read")
	}
}

func (s *service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.Bills().ExpireOverdue(ctx, s.config.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue bills: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("overdue bills expired")
	}
	return n, nil
}

func (s *service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.store.Bills().PurgeExpiredBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge bills: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Time("before", before).Msg("stale bills purged")
	}
	return n, nil
}

func (s *service) get(ctx context.Context, billID string) (*models.BillRequest, error) {
	b, err := s.store.Bills().GetByBillID(ctx, billID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.ErrBillNotFound
		}
		return nil, fmt.Errorf("failed to load bill: %w", err)
	}
	return b, nil
}

func resultOf(err error) string {
	if de, ok := apperrors.As(err); ok {
		return de.Code
	}
	return "error"
}
