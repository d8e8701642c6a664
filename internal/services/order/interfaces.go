package order

import (
	"context"

	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/utils/money"
)

// Service is the order ledger.
type Service interface {
	// CreateFromBill turns a payable bill into a PENDING order backed by a
	// gateway order for the discounted amount.
	CreateFromBill(ctx context.Context, billID string, userID uint) (*Checkout, error)
	// CreateDirect starts a payment to a partner without a bill, at the
	// partner's current discount rate.
	CreateDirect(ctx context.Context, partnerID, userID uint, amount money.Amount) (*Checkout, error)
	Verify(ctx context.Context, req VerifyRequest) (*models.Order, error)
	// ApplyGatewayEvent applies a verified gateway event. Events for orders
	// that already left PENDING are ignored.
	ApplyGatewayEvent(ctx context.Context, ev gateway.Event) (Outcome, error)
	Get(ctx context.Context, orderID string, p Principal) (*models.Order, error)
	ListForUser(ctx context.Context, userID uint, opts repositories.ListOptions) ([]models.Order, int64, error)
	ListForPartner(ctx context.Context, partnerID uint, opts repositories.ListOptions) ([]models.Order, int64, error)
	// Abandon cancels a PENDING order that was never paid.
	Abandon(ctx context.Context, orderID, reason string) (bool, error)
}
