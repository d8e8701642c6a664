package order

import (
	"time"

	"tapdeal/internal/config"
	"tapdeal/internal/models"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

const orderIDFormat = "TT-%06d"

type Config struct {
	Currency        string
	PlatformFeeRate decimal.Decimal
	MinAmount       money.Amount
	MaxAmount       money.Amount
	GatewayTimeout  time.Duration
	Now             func() time.Time
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Currency:        cfg.Currency,
		PlatformFeeRate: cfg.PlatformFeeRate,
		MinAmount:       cfg.Bill.MinAmount,
		MaxAmount:       cfg.Bill.MaxAmount,
		GatewayTimeout:  cfg.Gateway.Timeout,
	}
}

// VerifyRequest is the checkout callback a paying user submits.
type VerifyRequest struct {
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
	UserID         uint
}

// Principal identifies who is reading an order. PartnerID is zero for
// callers without a partner profile.
type Principal struct {
	UserID    uint
	PartnerID uint
}

// GatewayCheckout is what the client needs to open the gateway's checkout.
type GatewayCheckout struct {
	Provider string       `json:"provider"`
	OrderID  string       `json:"orderId"`
	Amount   money.Amount `json:"amount"`
	Currency string       `json:"currency"`
	Key      string       `json:"key"`
}

type Checkout struct {
	Order   *models.Order   `json:"order"`
	Gateway GatewayCheckout `json:"gateway"`
}

// Outcome describes what a gateway event did to the ledger.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeUnknownOrder   Outcome = "unknown_order"
	OutcomeAmountMismatch Outcome = "amount_mismatch"
)
