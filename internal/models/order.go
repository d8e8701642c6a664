package models

import (
	"time"

	"tapdeal/internal/utils/money"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Order sources
const (
	OrderSourceBill   = "bill"
	OrderSourceDirect = "direct"
)

// Order is a payment derived from one bill, or from a direct partner
// payment. All amounts are computed once at creation.
type Order struct {
	ID              uint            `gorm:"primarykey" json:"-"`
	OrderID         string          `gorm:"size:20;uniqueIndex;not null" json:"orderId"`
	UserID          uint            `gorm:"not null;index" json:"userId"`
	PartnerID       uint            `gorm:"not null;index" json:"partnerId"`
	BillRequestID   *string         `gorm:"size:20;index" json:"billRequestId,omitempty"`
	Source          string          `gorm:"size:16;not null" json:"source"`
	OriginalAmount  money.Amount    `gorm:"not null" json:"originalAmount"`
	DiscountRate    decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"discountRate"`
	DiscountAmount  money.Amount    `gorm:"not null" json:"discountAmount"`
	PlatformFeeRate decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"platformFeeRate"`
	PlatformFee     money.Amount    `gorm:"not null" json:"platformFee"`
	FinalAmount     money.Amount    `gorm:"not null" json:"finalAmount"`
	PartnerPayout   money.Amount    `gorm:"not null" json:"partnerPayout"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	Status          OrderStatus     `gorm:"size:16;not null;index" json:"status"`

	GatewayProvider  string         `gorm:"size:16;not null" json:"gatewayProvider"`
	GatewayOrderID   string         `gorm:"size:64;uniqueIndex;not null" json:"gatewayOrderId"`
	GatewayPaymentID *string        `gorm:"size:64" json:"gatewayPaymentId,omitempty"`
	GatewaySignature string         `gorm:"size:256" json:"-"`
	GatewayNotes     datatypes.JSON `gorm:"type:jsonb" json:"gatewayNotes,omitempty"`
	FailureReason    string         `json:"failureReason,omitempty"`

	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RefundedAt  *time.Time `json:"refundedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:  {OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesOf lists the statuses an order may move to `to` from.
func SourcesOf(to OrderStatus) []OrderStatus {
	var from []OrderStatus
	for _, st := range []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusCompleted,
		OrderStatusFailed,
		OrderStatusRefunded,
		OrderStatusCancelled,
	} {
		if CanTransition(st, to) {
			from = append(from, st)
		}
	}
	return from
}
