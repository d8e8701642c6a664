package partner

import (
	"context"
	"time"

	"tapdeal/internal/models"

	"github.com/shopspring/decimal"
)

// Service is the partner directory the payment core reads from.
type Service interface {
	Get(ctx context.Context, id uint) (*models.Partner, error)
	GetByOwner(ctx context.Context, userID uint) (*models.Partner, error)
	// UpdateDiscountRate changes the live rate used for new bills and direct
	// payments. Bills already issued keep the rate they were created with.
	UpdateDiscountRate(ctx context.Context, id uint, rate decimal.Decimal) (*models.Partner, error)
	Invalidate(ctx context.Context, p *models.Partner)
}

// Cache is the subset of cache.CacheService the directory uses.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
