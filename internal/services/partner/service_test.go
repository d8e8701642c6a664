package partner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func seed(t *testing.T, store *memory.Store) *models.Partner {
	t.Helper()
	p := &models.Partner{
		OwnerUserID:  42,
		BusinessName: "Chai Point",
		Category:     "cafe",
		IsActive:     true,
		DiscountRate: decimal.NewFromInt(6),
	}
	require.NoError(t, store.Partners().Create(context.Background(), p))
	return p
}

func TestService_GetUsesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := seed(t, store)
	cache := newMapCache()
	svc := NewService(store, cache, decimal.NewFromInt(50), nil)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chai Point", got.BusinessName)
	assert.Equal(t, 0, cache.hits)

	got, err = svc.GetByOwner(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.DiscountRate.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 1, cache.hits)
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(memory.NewStore(), nil, decimal.NewFromInt(50), nil)
	_, err := svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, apperrors.ErrPartnerNotFound)
}

func TestService_UpdateDiscountRate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := seed(t, store)
	cache := newMapCache()
	svc := NewService(store, cache, decimal.NewFromInt(50), nil)

	_, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateDiscountRate(ctx, p.ID, decimal.NewFromInt(9))
	require.NoError(t, err)
	assert.True(t, updated.DiscountRate.Equal(decimal.NewFromInt(9)))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.DiscountRate.Equal(decimal.NewFromInt(9)), "cache must be invalidated")

	tests := []struct {
		name string
		rate string
	}{
		{"negative", "-1"},
		{"above max", "50.01"},
		{"three decimals", "5.125"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateDiscountRate(ctx, p.ID, decimal.RequireFromString(tt.rate))
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}
