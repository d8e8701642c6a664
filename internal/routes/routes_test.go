package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tapdeal/internal/handlers"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories/memory"
	"tapdeal/internal/services/analytics"
	"tapdeal/internal/services/bill"
	"tapdeal/internal/services/gateway/gatewaytest"
	"tapdeal/internal/services/order"
	"tapdeal/internal/services/partner"
	"tapdeal/internal/services/qr"
	"tapdeal/internal/services/webhook"
	"tapdeal/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret = "test-jwt-secret"
	ownerID   = 100
	payerID   = 7
)

type fixture struct {
	app     *fiber.App
	store   *memory.Store
	gw      *gatewaytest.Fake
	partner *models.Partner
	owner   string
	payer   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	p := &models.Partner{OwnerUserID: ownerID, BusinessName: "Chai Point", Category: "food", IsActive: true, DiscountRate: decimal.NewFromInt(6)}
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
	}, nil)
	stats := analytics.NewService(store)
	orders := order.NewService(store, bills, partners, stats, gw, order.Config{
		Currency:        "INR",
		PlatformFeeRate: decimal.NewFromInt(1),
		MinAmount:       100,
		MaxAmount:       10000000,
		GatewayTimeout:  time.Second,
	}, nil)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	SetupRoutes(app, Dependencies{
		Store:         store,
		Gateway:       gw,
		Bills:         bills,
		Orders:        orders,
		Partners:      partners,
		Analytics:     stats,
		Dispatcher:    webhook.NewDispatcher(store, gw, orders, nil, nil),
		JWTSecret:     jwtSecret,
		Gatherer:      prometheus.NewRegistry(),
		ValidateLimit: 5,
	})

	return &fixture{
		app:     app,
		store:   store,
		gw:      gw,
		partner: p,
		owner:   token(t, ownerID, models.RolePartner),
		payer:   token(t, payerID, models.RoleUser),
	}
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(jwtSecret, models.UserClaims{UserID: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request and decodes the JSON response into out when set.
func (f *fixture) do(t *testing.T, method, path, bearer string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

type createdBill struct {
	BillID  string `json:"billId"`
	QRToken string `json:"qrToken"`
	Amounts struct {
		OriginalAmount decimal.Decimal `json:"originalAmount"`
		DiscountAmount decimal.Decimal `json:"discountAmount"`
		FinalAmount    decimal.Decimal `json:"finalAmount"`
		PartnerPayout  decimal.Decimal `json:"partnerPayout"`
	} `json:"amounts"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type checkout struct {
	OrderID string       `json:"orderId"`
	Order   models.Order `json:"order"`
	Gateway struct {
		OrderID  string          `json:"orderId"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Key      string          `json:"key"`
	} `json:"gateway"`
}

func (f *fixture) createBill(t *testing.T, body interface{}) createdBill {
	t.Helper()
	var out createdBill
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/bills/create", f.owner, body, &out))
	return out
}

func TestBillToPaymentFlow(t *testing.T) {
	f := newFixture(t)

	b := f.createBill(t, map[string]interface{}{"amount": 1000, "description": "Table 4"})
	assert.Regexp(t, `^BR-\d{6}$`, b.BillID)
	assert.NotEmpty(t, b.QRToken)
	assert.True(t, decimal.RequireFromString("60").Equal(b.Amounts.DiscountAmount))
	assert.True(t, decimal.RequireFromString("940").Equal(b.Amounts.FinalAmount))
	assert.True(t, decimal.RequireFromString("990").Equal(b.Amounts.PartnerPayout))

	var active struct {
		Bills []struct {
			BillID string            `json:"billId"`
			Status models.BillStatus `json:"status"`
		} `json:"bills"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/bills/active", f.owner, nil, &active))
	require.Len(t, active.Bills, 1)
	assert.Equal(t, b.BillID, active.Bills[0].BillID)
	assert.Equal(t, models.BillStatusActive, active.Bills[0].Status)

	var validated struct {
		BillID   string               `json:"billId"`
		Merchant models.PartnerPublic `json:"merchant"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/bills/validate", f.payer, map[string]string{"qrToken": b.QRToken}, &validated))
	assert.Equal(t, b.BillID, validated.BillID)
	assert.Equal(t, "Chai Point", validated.Merchant.BusinessName)

	var co checkout
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": b.BillID}, &co))
	assert.Regexp(t, `^TT-\d{6}$`, co.OrderID)
	assert.Equal(t, models.OrderStatusPending, co.Order.Status)
	assert.Equal(t, "rzp_test_key", co.Gateway.Key)
	assert.Equal(t, "INR", co.Gateway.Currency)
	assert.True(t, decimal.RequireFromString("940").Equal(co.Gateway.Amount))

	var again errorBody
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": b.BillID}, &again))
	assert.Equal(t, "BILL_ALREADY_USED", again.Error.Code)

	verify := map[string]string{
		"orderId":        co.OrderID,
		"gatewayOrderId": co.Gateway.OrderID,
		"paymentId":      "pay_1",
		"signature":      f.gw.Sign(co.Gateway.OrderID, "pay_1"),
	}
	var verified struct {
		Order models.Order `json:"order"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/payments/verify", f.payer, verify, &verified))
	assert.Equal(t, models.OrderStatusCompleted, verified.Order.Status)

	// A client retry is answered with the same order.
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/payments/verify", f.payer, verify, &verified))
	assert.Equal(t, models.OrderStatusCompleted, verified.Order.Status)

	var got struct {
		Order models.Order `json:"order"`
	}
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/"+co.OrderID, f.payer, nil, &got))
	assert.Equal(t, co.OrderID, got.Order.OrderID)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/"+co.OrderID, f.owner, nil, nil))
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/orders/"+co.OrderID, token(t, 55, models.RoleUser), nil, nil))

	var history utils.PaginatedResponse
	history.Data = &[]models.Order{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders?page=1&limit=10", f.payer, nil, &history))
	assert.Len(t, *history.Data.(*[]models.Order), 1)
	assert.EqualValues(t, 1, history.Pagination.Total)

	var stats struct {
		Analytics models.PartnerAnalytics `json:"analytics"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/partners/analytics", f.owner, nil, &stats))
	assert.EqualValues(t, 1, stats.Analytics.TotalOrders)
	assert.EqualValues(t, 100000, stats.Analytics.TotalRevenue.Int64())
	assert.EqualValues(t, 6000, stats.Analytics.TotalDiscountGiven.Int64())

	var partnerOrders utils.PaginatedResponse
	partnerOrders.Data = &[]models.Order{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/partners/orders", f.owner, nil, &partnerOrders))
	assert.Len(t, *partnerOrders.Data.(*[]models.Order), 1)

	require.NoError(t, f.store.Partners().SetAnalytics(context.Background(), f.partner.ID, models.PartnerAnalytics{}))
	stats.Analytics = models.PartnerAnalytics{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/partners/analytics/rebuild", f.owner, nil, &stats))
	assert.EqualValues(t, 1, stats.Analytics.TotalOrders)
	assert.EqualValues(t, 100000, stats.Analytics.TotalRevenue.Int64())
	assert.EqualValues(t, 6000, stats.Analytics.TotalDiscountGiven.Int64())

	var body errorBody
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/partners/analytics/rebuild", f.payer, nil, &body))
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
		code   string
	}{
		{"missing token", http.MethodGet, "/api/bills/active", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"garbage token", http.MethodGet, "/api/bills/active", "not-a-jwt", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"token signed with another secret", http.MethodGet, "/api/orders", mustSign(t, "other-secret"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"user without partner profile", http.MethodGet, "/api/bills/active", f.payer, http.StatusForbidden, "PARTNER_REQUIRED"},
		{"partner routes need a partner", http.MethodGet, "/api/partners/analytics", f.payer, http.StatusForbidden, "PARTNER_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			assert.Equal(t, tt.want, f.do(t, tt.method, tt.path, tt.bearer, nil, &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func mustSign(t *testing.T, secret string) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, models.UserClaims{UserID: payerID, Role: models.RoleUser}, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	// A partner token stripped of bill:write cannot issue bills.
	tok, err := utils.GenerateToken(jwtSecret, models.UserClaims{
		UserID:      ownerID,
		Role:        models.RolePartner,
		Permissions: []string{models.PermissionBillRead},
	}, time.Hour)
	require.NoError(t, err)

	var body errorBody
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/bills/create", tok, map[string]interface{}{"amount": 10}, &body))
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body.Error.Code)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   interface{}
		want   int
		code   string
		field  string
	}{
		{"malformed json", http.MethodPost, "/api/bills/create", f.owner, "{", http.StatusBadRequest, "INVALID_REQUEST_BODY", ""},
		{"missing amount", http.MethodPost, "/api/bills/create", f.owner, map[string]interface{}{}, http.StatusBadRequest, "VALIDATION_ERROR", "amount"},
		{"sub-paisa amount", http.MethodPost, "/api/bills/create", f.owner, map[string]interface{}{"amount": "10.001"}, http.StatusBadRequest, "VALIDATION_ERROR", "amount"},
		{"negative amount", http.MethodPost, "/api/bills/create", f.owner, map[string]interface{}{"amount": -5}, http.StatusBadRequest, "VALIDATION_ERROR", "amount"},
		{"rate above cap", http.MethodPost, "/api/bills/create", f.owner, map[string]interface{}{"amount": 10, "discountRate": 80}, http.StatusBadRequest, "VALIDATION_ERROR", "discountRate"},
		{"bad bill id", http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": "nope"}, http.StatusBadRequest, "VALIDATION_ERROR", "billId"},
		{"unknown bill", http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": "BR-999999"}, http.StatusNotFound, "BILL_NOT_FOUND", ""},
		{"missing signature", http.MethodPost, "/api/payments/verify", f.payer, map[string]string{"orderId": "TT-000001", "gatewayOrderId": "order_1", "paymentId": "pay_1"}, http.StatusBadRequest, "VALIDATION_ERROR", "signature"},
		{"tampered token", http.MethodPost, "/api/bills/validate", f.payer, map[string]string{"qrToken": "abc.def"}, http.StatusBadRequest, "INVALID_QR", ""},
		{"unknown route", http.MethodGet, "/api/nowhere", f.payer, nil, http.StatusNotFound, "NOT_FOUND", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			assert.Equal(t, tt.want, f.do(t, tt.method, tt.path, tt.bearer, tt.body, &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.field, body.Error.Field)
		})
	}
}

func TestCancelBill(t *testing.T) {
	f := newFixture(t)
	b := f.createBill(t, map[string]interface{}{"amount": 250.5})

	var ok map[string]bool
	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/bills/"+b.BillID, f.owner, nil, &ok))
	assert.True(t, ok["success"])

	var body errorBody
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodDelete, "/api/bills/"+b.BillID, f.owner, nil, &body))
	assert.Equal(t, "BILL_NOT_ACTIVE", body.Error.Code)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": b.BillID}, &body))
	assert.Equal(t, "BILL_CANCELLED", body.Error.Code)
}

func TestDiscountRateChangeKeepsIssuedBills(t *testing.T) {
	f := newFixture(t)
	b := f.createBill(t, map[string]interface{}{"amount": 1000})

	var updated struct {
		Partner models.Partner `json:"partner"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/partners/discount-rate", f.owner, map[string]interface{}{"discountRate": 9}, &updated))
	assert.True(t, decimal.NewFromInt(9).Equal(updated.Partner.DiscountRate))

	var co checkout
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": b.BillID}, &co))
	assert.True(t, decimal.NewFromInt(6).Equal(co.Order.DiscountRate))

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/payments/direct", f.payer, map[string]interface{}{"partnerId": f.partner.ID, "amount": 1000}, &co))
	assert.True(t, decimal.NewFromInt(9).Equal(co.Order.DiscountRate))
	assert.Equal(t, models.OrderSourceDirect, co.Order.Source)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/partners/discount-rate", f.owner, map[string]interface{}{}, &body))
	assert.Equal(t, "discountRate", body.Error.Field)
}

func TestWebhook(t *testing.T) {
	f := newFixture(t)
	b := f.createBill(t, map[string]interface{}{"amount": 1000})
	var co checkout
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/bills/pay", f.payer, map[string]string{"billId": b.BillID}, &co))

	body, sig := f.gw.Webhook("payment.captured", co.Gateway.OrderID, "pay_9", co.Order.FinalAmount.Int64())

	send := func(signature string) (int, map[string]interface{}) {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(f.gw.SignatureHeader(), signature)
		req.Header.Set(f.gw.EventIDHeader(), "evt_1")
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	status, _ := send("bad")
	assert.Equal(t, http.StatusBadRequest, status)

	status, out := send(sig)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["received"])

	status, out = send(sig)
	assert.Equal(t, http.StatusOK, status, "redeliveries are acknowledged")
	assert.Equal(t, true, out["received"])

	o, err := f.store.Orders().GetByOrderID(context.Background(), co.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, o.Status)
	require.NotNil(t, o.GatewayPaymentID)
	assert.Equal(t, "pay_9", *o.GatewayPaymentID)
}

func TestValidateIsRateLimited(t *testing.T) {
	f := newFixture(t)
	b := f.createBill(t, map[string]interface{}{"amount": 1000})

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/bills/validate", f.payer, map[string]string{"qrToken": b.QRToken}, nil))
	}
	var body errorBody
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/bills/validate", f.payer, map[string]string{"qrToken": b.QRToken}, &body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	var health struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "", nil, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "connected", health.Services["database"])
	assert.Equal(t, "disabled", health.Services["redis"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
