package validation

import (
	"testing"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payRequest struct {
	BillID string          `json:"billId" validate:"required,billid"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Note   string          `json:"note" validate:"max=5"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		req     payRequest
		field   string
		message string
	}{
		{"valid", payRequest{BillID: "BR-000001", Amount: decimal.NewFromInt(10)}, "", ""},
		{"missing bill", payRequest{Amount: decimal.NewFromInt(10)}, "billId", "is required"},
		{"bad bill id", payRequest{BillID: "TT-000001", Amount: decimal.NewFromInt(10)}, "billId", "must be a bill id like BR-000123"},
		{"missing amount", payRequest{BillID: "BR-000001"}, "amount", "is required"},
		{"long note", payRequest{BillID: "BR-000001", Amount: decimal.NewFromInt(1), Note: "too long"}, "note", "must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			de, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.KindValidation, de.Kind)
			assert.Equal(t, tt.field, de.Field)
			assert.Equal(t, tt.message, de.Message)
		})
	}
}

func TestAmount(t *testing.T) {
	a, err := Amount("amount", decimal.RequireFromString("1000.50"))
	require.NoError(t, err)
	assert.Equal(t, money.Amount(100050), a)

	for _, raw := range []string{"0", "-1", "10.001"} {
		_, err := Amount("amount", decimal.RequireFromString(raw))
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err), raw)
	}
}
