package bill

import (
	"time"

	"tapdeal/internal/config"
	"tapdeal/internal/models"
	"tapdeal/internal/services/settlement"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

const (
	MaxDescriptionLength = 200
	billIDFormat         = "BR-%06d"
)

type Config struct {
	MinAmount       money.Amount
	MaxAmount       money.Amount
	MaxDiscountRate decimal.Decimal
	PlatformFeeRate decimal.Decimal
	DefaultExpiry   time.Duration
	MaxExpiry       time.Duration
	// TokenGrace keeps a token decodable past the bill's expiry so a late
	// scan is answered with an explicit expiry instead of an invalid token.
	TokenGrace time.Duration
	Now        func() time.Time
}

// ConfigFrom maps the service configuration onto the ledger's.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MinAmount:       cfg.Bill.MinAmount,
		MaxAmount:       cfg.Bill.MaxAmount,
		MaxDiscountRate: cfg.Bill.MaxDiscountRate,
		PlatformFeeRate: cfg.PlatformFeeRate,
		DefaultExpiry:   cfg.Bill.DefaultExpiry,
		MaxExpiry:       cfg.Bill.MaxExpiry,
		TokenGrace:      cfg.Bill.TokenGrace,
	}
}

type CreateRequest struct {
	PartnerID uint
	Amount    money.Amount
	// DiscountRate defaults to the partner's current rate when nil.
	DiscountRate  *decimal.Decimal
	Description   string
	ExpiryMinutes int
}

// CreatedBill is a freshly issued bill with its settlement preview.
type CreatedBill struct {
	Bill  *models.BillRequest
	Split settlement.Split
}

// ValidatedBill is what a scanning user is shown before paying.
type ValidatedBill struct {
	Bill     *models.BillRequest
	Merchant models.PartnerPublic
	Split    settlement.Split
}
