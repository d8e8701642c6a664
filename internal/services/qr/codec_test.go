package qr

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	apperrors "tapdeal/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-qr-secret"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func samplePayload(exp time.Time) Payload {
	return Payload{
		BillID:    "BR-000123",
		PartnerID: 42,
		Amount:    100000,
		ExpiresAt: exp.Unix(),
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := issued.Add(5 * time.Minute)
	codec := NewCodec(testSecret).WithClock(fixedClock(issued))

	token, err := codec.Encode(samplePayload(exp))
	require.NoError(t, err)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	got, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, samplePayload(exp), got)
}

func TestCodec_ExpiryBoundary(t *testing.T) {
	exp := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	token, err := NewCodec(testSecret).Encode(samplePayload(exp))
	require.NoError(t, err)

	tests := []struct {
		name  string
		now   time.Time
		valid bool
	}{
		{name: "one second before expiry", now: exp.Add(-time.Second), valid: true},
		{name: "one nanosecond before expiry", now: exp.Add(-time.Nanosecond), valid: true},
		{name: "exactly at expiry", now: exp, valid: false},
		{name: "after expiry", now: exp.Add(time.Minute), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCodec(testSecret).WithClock(fixedClock(tt.now)).Decode(token)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
			}
		})
	}
}

func TestCodec_RejectsTampering(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := NewCodec(testSecret).WithClock(fixedClock(now))
	token, err := codec.Encode(samplePayload(now.Add(time.Hour)))
	require.NoError(t, err)

	raw, err := encoding.DecodeString(token)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	reencode := func(e envelope) string {
		b, err := json.Marshal(e)
		require.NoError(t, err)
		return encoding.EncodeToString(b)
	}

	raisedAmount := env
	raisedAmount.Amount = 1
	otherBill := env
	otherBill.BillID = "BR-000124"
	extendedExpiry := env
	extendedExpiry.ExpiresAt += 3600
	shortSig := env
	shortSig.Signature = env.Signature[:8]

	tests := []struct {
		name  string
		token string
	}{
		{name: "amount changed", token: reencode(raisedAmount)},
		{name: "bill changed", token: reencode(otherBill)},
		{name: "expiry extended", token: reencode(extendedExpiry)},
		{name: "truncated signature", token: reencode(shortSig)},
		{name: "not base64", token: "!!!" + token},
		{name: "not json", token: encoding.EncodeToString([]byte("BR-000123|42"))},
		{name: "unknown field", token: encoding.EncodeToString([]byte(strings.Replace(string(raw), `"s":`, `"x":1,"s":`, 1)))},
		{name: "trailing data", token: encoding.EncodeToString(append(raw, []byte(`{}`)...))},
		{name: "empty", token: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

			de, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrInvalidToken.Message, de.Message)
		})
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	token, err := NewCodec(testSecret).Encode(samplePayload(now.Add(time.Hour)))
	require.NoError(t, err)

	_, err = NewCodec("another-secret").WithClock(fixedClock(now)).Decode(token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestCodec_EncodeRequiresFields(t *testing.T) {
	_, err := NewCodec(testSecret).Encode(Payload{BillID: "BR-000001"})
	assert.Error(t, err)
}
