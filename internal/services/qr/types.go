package qr

import "errors"

// macLength is the number of HMAC-SHA256 bytes kept in a token.
const macLength = 8

var (
	errMalformed    = errors.New("malformed token")
	errMissingField = errors.New("token is missing a field")
	errBadMAC       = errors.New("token signature mismatch")
	errExpired      = errors.New("token expired")
)

// Payload is the data bound into a bill's QR token.
type Payload struct {
	BillID    string `json:"b"`
	PartnerID uint   `json:"p"`
	Amount    int64  `json:"a"`
	ExpiresAt int64  `json:"e"`
}

// envelope is the wire form: the payload plus its truncated MAC.
type envelope struct {
	BillID    string `json:"b"`
	PartnerID uint   `json:"p"`
	Amount    int64  `json:"a"`
	ExpiresAt int64  `json:"e"`
	Signature string `json:"s"`
}

func (e envelope) payload() Payload {
	return Payload{
		BillID:    e.BillID,
		PartnerID: e.PartnerID,
		Amount:    e.Amount,
		ExpiresAt: e.ExpiresAt,
	}
}
