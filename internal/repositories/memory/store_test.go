package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"tapdeal/internal/models"
	"tapdeal/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MarkUsedSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Bills().Create(ctx, &models.BillRequest{
		BillID:    "BR-000001",
		PartnerID: 1,
		Amount:    1000,
		QRToken:   "tok",
		Status:    models.BillStatusActive,
		ExpiresAt: now.Add(time.Minute),
	}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(user uint) {
			defer wg.Done()
			ok, err := s.Bills().MarkUsed(ctx, "BR-000001", user, "TT-000001", now)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}(uint(i + 1))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestStore_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")

	err := s.ExecuteInTransaction(ctx, func(st repositories.Store) error {
		require.NoError(t, st.Partners().Create(ctx, &models.Partner{OwnerUserID: 7, BusinessName: "Cafe"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Partners().GetByOwner(ctx, 7)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestStore_IncrementAnalytics(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := &models.Partner{OwnerUserID: 1, BusinessName: "Cafe"}
	require.NoError(t, s.Partners().Create(ctx, p))

	require.NoError(t, s.Partners().IncrementAnalytics(ctx, p.ID, 100000, 6000))
	require.NoError(t, s.Partners().IncrementAnalytics(ctx, p.ID, 50001, 3000))

	got, err := s.Partners().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Analytics.TotalOrders)
	assert.EqualValues(t, 150001, got.Analytics.TotalRevenue)
	assert.EqualValues(t, 9000, got.Analytics.TotalDiscountGiven)
	assert.EqualValues(t, 75001, got.Analytics.AverageOrderValue)
}

func TestStore_UpdateKeepsStoredKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Bills().Create(ctx, &models.BillRequest{
		BillID:    "BR-000001",
		PartnerID: 1,
		Amount:    1000,
		QRToken:   "tok",
		Status:    models.BillStatusActive,
		ExpiresAt: now.Add(time.Minute),
	}))

	// A request path parameter aliases a buffer that is reused afterwards.
	buf := []byte("BR-000001")
	id := unsafe.String(&buf[0], len(buf))
	ok, err := s.Bills().Cancel(ctx, id, 1, now)
	require.NoError(t, err)
	require.True(t, ok)
	copy(buf, "XX-999999")

	got, err := s.Bills().GetByBillID(ctx, "BR-000001")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusCancelled, got.Status)
}

func TestStore_RollbackKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Bills().Create(ctx, &models.BillRequest{
		BillID:    "BR-000001",
		PartnerID: 1,
		Amount:    1000,
		QRToken:   "tok",
		Status:    models.BillStatusActive,
		ExpiresAt: now.Add(-time.Second),
	}))
	boom := errors.New("boom")

	err := s.ExecuteInTransaction(ctx, func(st repositories.Store) error {
		ok, err := s.Bills().MarkExpired(ctx, "BR-000001", now)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, st.Partners().Create(ctx, &models.Partner{OwnerUserID: 7, BusinessName: "Cafe"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Bills().GetByBillID(ctx, "BR-000001")
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusExpired, got.Status)
	_, err = s.Partners().GetByOwner(ctx, 7)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
