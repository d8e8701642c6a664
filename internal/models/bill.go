package models

import (
	"time"

	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusActive    BillStatus = "ACTIVE"
	BillStatusExpired   BillStatus = "EXPIRED"
	BillStatusUsed      BillStatus = "USED"
	BillStatusCancelled BillStatus = "CANCELLED"
)

// BillRequest is a partner-issued, time-boxed payment offer. DiscountRate is
// locked when the bill is created and never re-read from the partner.
type BillRequest struct {
	ID           uint            `gorm:"primarykey" json:"-"`
	BillID       string          `gorm:"size:20;uniqueIndex;not null" json:"billId"`
	PartnerID    uint            `gorm:"not null;index:idx_bill_partner_status,priority:1" json:"partnerId"`
	Amount       money.Amount    `gorm:"not null" json:"amount"`
	DiscountRate decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discountRate"`
	Description  string          `gorm:"size:200" json:"description,omitempty"`
	QRToken      string          `gorm:"size:512;uniqueIndex;not null" json:"qrToken"`
	Status       BillStatus      `gorm:"size:16;not null;default:'ACTIVE';index:idx_bill_partner_status,priority:2" json:"status"`
	ExpiresAt    time.Time       `gorm:"not null;index" json:"expiresAt"`
	UsedBy       *uint           `json:"usedBy,omitempty"`
	OrderID      *string         `gorm:"size:20" json:"orderId,omitempty"`
	UsedAt       *time.Time      `json:"usedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsTerminal reports whether no further transition can leave s.
func (s BillStatus) IsTerminal() bool {
	return s != BillStatusActive
}
