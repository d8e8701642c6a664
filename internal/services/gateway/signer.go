package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Signer produces and checks hex HMAC-SHA256 signatures.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign signs parts joined by "|", the checkout callback format.
func (s *Signer) Sign(parts ...string) string {
	return s.SignBody([]byte(strings.Join(parts, "|")))
}

func (s *Signer) SignBody(body []byte) string {
	return hex.EncodeToString(s.mac(body))
}

// Verify checks signature against parts in constant time.
func (s *Signer) Verify(signature string, parts ...string) bool {
	return s.VerifyBody([]byte(strings.Join(parts, "|")), signature)
}

func (s *Signer) VerifyBody(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(body))
}

func (s *Signer) mac(body []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(body)
	return h.Sum(nil)
}
