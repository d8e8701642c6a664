package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner("secret")
	sig := s.Sign("order_1", "pay_1")

	assert.Len(t, sig, 64)
	assert.True(t, s.Verify(sig, "order_1", "pay_1"))

	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"not hex", "zz" + sig[2:]},
		{"flipped digit", flip(sig)},
		{"truncated", sig[:62]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, s.Verify(tt.sig, "order_1", "pay_1"))
		})
	}

	assert.False(t, s.Verify(sig, "order_1", "pay_2"))
	assert.False(t, NewSigner("other").Verify(sig, "order_1", "pay_1"))
	assert.False(t, NewSigner("").VerifyBody([]byte("x"), NewSigner("").SignBody([]byte("x"))))
}

func flip(sig string) string {
	b := []byte(sig)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}
