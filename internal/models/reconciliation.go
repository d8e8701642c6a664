package models

import (
	"time"

	"tapdeal/internal/utils/money"
)

// Reconciliation issue kinds
const (
	IssueOrphanPaid       = "orphan_paid"
	IssueAmountMismatch   = "amount_mismatch"
	IssuePaidNotCompleted = "paid_not_completed"
)

// ReconciliationIssue records a disagreement between the gateway and the
// order ledger that needs an operator.
type ReconciliationIssue struct {
	ID             uint         `gorm:"primarykey" json:"id"`
	Kind           string       `gorm:"size:32;not null;uniqueIndex:ux_reconciliation_issue,priority:2" json:"kind"`
	GatewayOrderID string       `gorm:"size:64;not null;uniqueIndex:ux_reconciliation_issue,priority:1" json:"gatewayOrderId"`
	OrderID        string       `gorm:"size:20" json:"orderId,omitempty"`
	Amount         money.Amount `json:"amount"`
	Detail         string       `gorm:"type:text" json:"detail"`
	ResolvedAt     *time.Time   `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}
