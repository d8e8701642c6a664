// Package settlement computes how a payment is split between the paying
// user's discount, the platform fee and the partner payout.
//
// Every amount is an integer number of minor units. A percentage rate is
// converted to basis points and applied as
//
//	part = (amount * bps + 5000) / 10000
//
// which rounds half up. The discount is taken from the original amount and
// the user pays original - discount. The platform fee is also charged on the
// original amount, so the partner receives original - fee regardless of the
// discount they grant.
package settlement

import (
	"errors"
	"math/bits"

	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

const (
	bpsPerUnit   = 10000
	halfBps      = bpsPerUnit / 2
	rateDecimals = 2
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrRateRange      = errors.New("rate must be between 0 and 100")
	ErrRatePrecision  = errors.New("rate must have at most two decimal places")
	ErrOverflow       = errors.New("amount too large to settle")
)

// Split is the result of ComputeSplit.
type Split struct {
	OriginalAmount  money.Amount    `json:"originalAmount"`
	DiscountRate    decimal.Decimal `json:"discountRate"`
	DiscountAmount  money.Amount    `json:"discountAmount"`
	FinalAmount     money.Amount    `json:"finalAmount"`
	PlatformFeeRate decimal.Decimal `json:"platformFeeRate"`
	PlatformFee     money.Amount    `json:"platformFee"`
	PartnerPayout   money.Amount    `json:"partnerPayout"`
}

// BasisPoints converts a percentage such as 6.25 into 625.
func BasisPoints(rate decimal.Decimal) (int64, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return 0, ErrRateRange
	}
	shifted := rate.Shift(rateDecimals)
	if !shifted.IsInteger() {
		return 0, ErrRatePrecision
	}
	return shifted.IntPart(), nil
}

// ApplyBasisPoints returns amount * bps / 10000 rounded half up.
func ApplyBasisPoints(amount money.Amount, bps int64) (money.Amount, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	if bps < 0 || bps > bpsPerUnit {
		return 0, ErrRateRange
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(bps))
	if hi != 0 {
		return 0, ErrOverflow
	}
	sum, carry := bits.Add64(lo, halfBps, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return money.Amount(sum / bpsPerUnit), nil
}

// ApplyRate is ApplyBasisPoints for a percentage rate.
func ApplyRate(amount money.Amount, rate decimal.Decimal) (money.Amount, error) {
	bps, err := BasisPoints(rate)
	if err != nil {
		return 0, err
	}
	return ApplyBasisPoints(amount, bps)
}

// ComputeSplit derives the discount, final amount, platform fee and partner
// payout for an original amount.
func ComputeSplit(original money.Amount, discountRate, platformFeeRate decimal.Decimal) (Split, error) {
	discount, err := ApplyRate(original, discountRate)
	if err != nil {
		return Split{}, err
	}
	fee, err := ApplyRate(original, platformFeeRate)
	if err != nil {
		return Split{}, err
	}
	return Split{
		OriginalAmount:  original,
		DiscountRate:    discountRate,
		DiscountAmount:  discount,
		FinalAmount:     original - discount,
		PlatformFeeRate: platformFeeRate,
		PlatformFee:     fee,
		PartnerPayout:   original - fee,
	}, nil
}
