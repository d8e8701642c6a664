package models

import (
	"time"

	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
)

// PartnerAnalytics are running totals over completed orders. They are
// derived data and can be rebuilt from the order ledger.
type PartnerAnalytics struct {
	TotalOrders        int64        `gorm:"not null;default:0" json:"totalOrders"`
	TotalRevenue       money.Amount `gorm:"not null;default:0" json:"totalRevenue"`
	TotalDiscountGiven money.Amount `gorm:"not null;default:0" json:"totalDiscountGiven"`
	AverageOrderValue  money.Amount `gorm:"not null;default:0" json:"averageOrderValue"`
}

type Partner struct {
	ID           uint             `gorm:"primarykey" json:"id"`
	OwnerUserID  uint             `gorm:"uniqueIndex;not null" json:"ownerUserId"`
	BusinessName string           `gorm:"size:120;not null" json:"businessName"`
	Category     string           `gorm:"size:60" json:"category"`
	IsActive     bool             `gorm:"not null;default:true" json:"isActive"`
	DiscountRate decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0" json:"discountRate"`
	Analytics    PartnerAnalytics `gorm:"embedded" json:"analytics"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// PartnerPublic is what a paying user sees about a merchant.
type PartnerPublic struct {
	ID           uint   `json:"id"`
	BusinessName string `json:"businessName"`
	Category     string `json:"category"`
}

func (p *Partner) Public() PartnerPublic {
	return PartnerPublic{
		ID:           p.ID,
		BusinessName: p.BusinessName,
		Category:     p.Category,
	}
}
