package bill

import (
	"context"
	"time"

	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
)

// Service is the bill ledger.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreatedBill, error)
	ListActive(ctx context.Context, partnerID uint) ([]models.BillRequest, error)
	Cancel(ctx context.Context, partnerID uint, billID string) error
	// Validate resolves a scanned token to a payable bill without changing it
	// beyond a lazy expiry correction.
	Validate(ctx context.Context, token string) (*ValidatedBill, error)
	// GetPayable returns the bill if it can still be paid.
	GetPayable(ctx context.Context, billID string) (*models.BillRequest, error)
	// Consume marks the bill USED by userID for orderID through st, which
	// should be the order-creation transaction. Exactly one caller can win.
	Consume(ctx context.Context, st repositories.Store, billID string, userID uint, orderID string) (*models.BillRequest, error)
	ExpireOverdue(ctx context.Context) (int64, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}
