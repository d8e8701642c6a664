package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMajor(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr error
	}{
		{name: "whole rupees", input: "1000", want: 100000},
		{name: "two decimals", input: "1000.50", want: 100050},
		{name: "one decimal", input: "0.5", want: 50},
		{name: "trailing zeros beyond paise", input: "12.3400", want: 1234},
		{name: "fractional paise", input: "10.005", wantErr: ErrFractionalMinorUnit},
		{name: "too large", input: "100000000000000000000", wantErr: ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromMajor(decimal.RequireFromString(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_JSON(t *testing.T) {
	type body struct {
		Amount Amount `json:"amount"`
	}

	out, err := json.Marshal(body{Amount: 94000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount": 940.00}`, string(out))

	var in body
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 1000.25}`), &in))
	assert.Equal(t, Amount(100025), in.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "12.5"}`), &in))
	assert.Equal(t, Amount(1250), in.Amount)

	assert.Error(t, json.Unmarshal([]byte(`{"amount": 1.001}`), &in))
}
