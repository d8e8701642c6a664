package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"tapdeal/internal/models"
	"tapdeal/internal/repositories/memory"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/gateway/gatewaytest"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/qr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memory.Store
	gw      *gatewaytest.Fake
	bills   bill.Service
	orders  order.Service
	partner *models.Partner
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.NewStore()
	store.Now = clock
	p := &models.Partner{OwnerUserID: 100, BusinessName: "Chai Point", IsActive: true, DiscountRate: decimal.NewFromInt(6)}
	require.NoError(t, store.Partners().Create(ctx, p))

	gw := gatewaytest.New()
	partners := partner.NewService(store, nil, decimal.NewFromInt(50), nil)
	bills := bill.NewService(store, partners, qr.NewCodec("test-secret"), bill.Config{
		MinAmount:       100,
		MaxAmount:       10000000,
		MaxDiscountRate: decimal.NewFromInt(50),
		PlatformFeeRate: decimal.NewFromInt(1),
		DefaultExpiry:   10 * time.Minute,
		MaxExpiry:       24 * time.Hour,
		TokenGrace:      24 * time.Hour,
		Now:             clock,
	}, nil)
	orders := order.NewService(store, bills, partners, analytics.NewService(store), gw, order.Config{
		Currency:        "INR",
		PlatformFeeRate: decimal.NewFromInt(1),
		MinAmount:       100,
		MaxAmount:       10000000,
		Now:             clock,
	}, nil)

	return &fixture{store: store, gw: gw, bills: bills, orders: orders, partner: p, now: now}
}

// sweeper returns a sweeper whose clock runs `after` past order creation.
func (f *fixture) sweeper(after time.Duration) *Sweeper {
	return NewSweeper(f.store, f.gw, f.orders, f.bills, Config{
		PendingAfter: 15 * time.Minute,
		AbandonAfter: 24 * time.Hour,
		Lookback:     48 * time.Hour,
		PurgeGrace:   24 * time.Hour,
		Concurrency:  2,
		Now:          func() time.Time { return f.now.Add(after) },
	}, nil)
}

func (f *fixture) pending(t *testing.T) *models.Order {
	t.Helper()
	co, err := f.orders.CreateDirect(context.Background(), f.partner.ID, 7, 100000)
	require.NoError(t, err)
	return co.Order
}

func (f *fixture) order(t *testing.T, orderID string) *models.Order {
	t.Helper()
	o, err := f.store.Orders().GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

func TestSweeper_SettlesMissedCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paid := f.pending(t)
	unpaid := f.pending(t)
	f.gw.Capture(paid.GatewayOrderID, "pay_1")

	report, err := f.sweeper(20 * time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Settled)
	assert.Zero(t, report.Abandoned)

	settled := f.order(t, paid.OrderID)
	assert.Equal(t, models.OrderStatusCompleted, settled.Status)
	require.NotNil(t, settled.GatewayPaymentID)
	assert.Equal(t, "pay_1", *settled.GatewayPaymentID)
	assert.Equal(t, models.OrderStatusPending, f.order(t, unpaid.OrderID).Status)

	p, err := f.store.Partners().GetByID(ctx, f.partner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Analytics.TotalOrders)
}

func TestSweeper_SkipsFreshOrders(t *testing.T) {
	f := newFixture(t)
	o := f.pending(t)
	f.gw.Capture(o.GatewayOrderID, "pay_1")

	report, err := f.sweeper(5 * time.Minute).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Equal(t, models.OrderStatusPending, f.order(t, o.OrderID).Status)
}

func TestSweeper_AbandonsUnpaidOrders(t *testing.T) {
	f := newFixture(t)
	o := f.pending(t)

	report, err := f.sweeper(25 * time.Hour).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Abandoned)

	stored := f.order(t, o.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
	assert.Equal(t, "no payment received", stored.FailureReason)
}

func TestSweeper_GatewayErrorsAreCounted(t *testing.T) {
	f := newFixture(t)
	o := f.pending(t)
	f.gw.FetchErr = errors.New("gateway down")

	report, err := f.sweeper(25 * time.Hour).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, models.OrderStatusPending, f.order(t, o.OrderID).Status, "never abandoned without a gateway answer")

	f.gw.FetchErr = nil
	f.gw.ListErr = errors.New("gateway down")
	_, err = f.sweeper(25 * time.Hour).Sweep(context.Background())
	assert.Error(t, err)
}

func TestSweeper_FilesOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.gw.AddOrder(gateway.Order{ID: "order_lost", Receipt: "TT-000777", Amount: 94000, AmountPaid: 94000, Paid: true})
	f.gw.AddOrder(gateway.Order{ID: "order_unpaid", Receipt: "TT-000778", Amount: 94000})

	failed := f.pending(t)
	_, err := f.orders.ApplyGatewayEvent(ctx, gateway.Event{Type: gateway.EventPaymentFailed, OrderID: failed.GatewayOrderID})
	require.NoError(t, err)
	f.gw.Capture(failed.GatewayOrderID, "pay_late")

	sw := f.sweeper(time.Minute)
	report, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Issues)

	issues, err := f.store.Reconciliation().ListOpen(ctx, 10)
	require.NoError(t, err)
	kinds := map[string]string{}
	for _, i := range issues {
		kinds[i.GatewayOrderID] = i.Kind
	}
	assert.Equal(t, map[string]string{
		"order_lost":          models.IssueOrphanPaid,
		failed.GatewayOrderID: models.IssuePaidNotCompleted,
	}, kinds)

	report, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Issues, "issues are filed once")
}

func TestSweeper_Janitor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created, err := f.bills.Create(ctx, bill.CreateRequest{PartnerID: f.partner.ID, Amount: 100000})
	require.NoError(t, err)

	// The bill service clock is fixed, so the bill is still live for it.
	expired, purged, err := f.sweeper(48 * time.Hour).Janitor(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.EqualValues(t, 1, purged)

	_, err = f.store.Bills().GetByBillID(ctx, created.Bill.BillID)
	assert.Error(t, err)
}
