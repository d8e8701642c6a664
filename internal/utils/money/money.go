// Package money holds the integer minor-unit amount type used for every
// stored and computed monetary value. Amounts cross the API boundary in
// major units with two decimals.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponent is the number of minor units per major unit, as a power of ten.
const minorExponent = 2

var (
	ErrFractionalMinorUnit = errors.New("amount has more than two decimal places")
	ErrOutOfRange          = errors.New("amount is out of range")
)

// Amount is a quantity of minor currency units (paise).
type Amount int64

// FromMajor converts a major-unit decimal (rupees) to minor units. Values
// that do not land on a whole minor unit are rejected rather than rounded.
func FromMajor(d decimal.Decimal) (Amount, error) {
	scaled := d.Shift(minorExponent)
	if !scaled.IsInteger() {
		return 0, ErrFractionalMinorUnit
	}
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOutOfRange
	}
	return Amount(bi.Int64()), nil
}

// ParseMajor parses a major-unit string such as "1000.50".
func ParseMajor(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromMajor(d)
}

func (a Amount) Int64() int64 {
	return int64(a)
}

// Major returns the amount in major units.
func (a Amount) Major() decimal.Decimal {
	return decimal.New(int64(a), -minorExponent)
}

func (a Amount) String() string {
	return a.Major().StringFixed(minorExponent)
}

// MarshalJSON renders the amount as a bare major-unit number, e.g. 940.00.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a major-unit number or numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" || raw == "" {
		return nil
	}
	v, err := ParseMajor(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
