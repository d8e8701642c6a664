// Package qr encodes and decodes the signed, expiring tokens embedded in bill
// QR codes. A token is base64url(JSON{b,p,a,e,s}) where s is the hex of the
// first 8 bytes of HMAC-SHA256 over the JSON of {b,p,a,e}.
package qr

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	apperrors "tapdeal/internal/errors"
)

var encoding = base64.RawURLEncoding

// Codec signs and verifies bill tokens with a server-held secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	if secret == "" {
		panic("qr token secret is required")
	}
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock returns a copy of the codec reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Encode produces the QR token for p.
func (c *Codec) Encode(p Payload) (string, error) {
	if p.BillID == "" || p.PartnerID == 0 || p.Amount <= 0 || p.ExpiresAt <= 0 {
		return "", errMissingField
	}
	mac, err := c.sign(p)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(envelope{
		BillID:    p.BillID,
		PartnerID: p.PartnerID,
		Amount:    p.Amount,
		ExpiresAt: p.ExpiresAt,
		Signature: hex.EncodeToString(mac),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return encoding.EncodeToString(raw), nil
}

// Decode verifies token and returns its payload. Every failure is reported
// as ErrInvalidToken; the wrapped cause is for server-side logs only.
func (c *Codec) Decode(token string) (Payload, error) {
	p, err := c.decode(token)
	if err != nil {
		return Payload{}, apperrors.ErrInvalidToken.Wrap(err)
	}
	return p, nil
}

func (c *Codec) decode(token string) (Payload, error) {
	raw, err := encoding.DecodeString(token)
	if err != nil {
		return Payload{}, errMalformed
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return Payload{}, errMalformed
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, errMalformed
	}

	if env.BillID == "" || env.PartnerID == 0 || env.Amount <= 0 || env.ExpiresAt <= 0 {
		return Payload{}, errMissingField
	}
	got, err := hex.DecodeString(env.Signature)
	if err != nil || len(got) != macLength {
		return Payload{}, errBadMAC
	}

	p := env.payload()
	want, err := c.sign(p)
	if err != nil {
		return Payload{}, err
	}
	if !hmac.Equal(got, want) {
		return Payload{}, errBadMAC
	}

	if !c.now().Before(time.Unix(p.ExpiresAt, 0)) {
		return Payload{}, errExpired
	}
	return p, nil
}

func (c *Codec) sign(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token payload: %w", err)
	}
	h := hmac.New(sha256.New, c.secret)
	h.Write(body)
	return h.Sum(nil)[:macLength], nil
}
