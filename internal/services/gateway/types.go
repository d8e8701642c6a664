package gateway

import (
	"context"
	"time"

	"tapdeal/internal/metrics"
	"tapdeal/internal/utils/money"
)

// Providers
const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type EventType string

const (
	EventPaymentCaptured EventType = "payment.captured"
	EventPaymentFailed   EventType = "payment.failed"
	EventRefundProcessed EventType = "refund.processed"
	EventIgnored         EventType = "ignored"
)

type CreateOrderRequest struct {
	Amount   money.Amount
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is the gateway-side order a payment is collected against.
type Order struct {
	ID         string       `json:"id"`
	Amount     money.Amount `json:"amount"`
	AmountPaid money.Amount `json:"amountPaid"`
	Currency   string       `json:"currency"`
	Receipt    string       `json:"receipt"`
	Status     string       `json:"status"`
	Paid       bool         `json:"paid"`
	CreatedAt  time.Time    `json:"createdAt"`
}

type Payment struct {
	ID       string        `json:"id"`
	OrderID  string        `json:"orderId"`
	Amount   money.Amount  `json:"amount"`
	Currency string        `json:"currency"`
	Status   PaymentStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// Event is a webhook normalized across providers.
type Event struct {
	ID        string
	Type      EventType
	RawType   string
	OrderID   string
	PaymentID string
	Amount    money.Amount
	Reason    string
}

// Gateway wraps an external payment processor. Network failures and
// ambiguous responses are reported as apperrors.ErrGatewayUnavailable and
// must never be read as a failed payment.
type Gateway interface {
	Provider() string
	// PublicKey is handed to clients to open the checkout.
	PublicKey() string
	SignatureHeader() string
	EventIDHeader() string

	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	VerifySignature(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error)
	VerifyWebhookSignature(body []byte, signature string) bool
	ParseWebhookEvent(ctx context.Context, body []byte) (*Event, error)
	FetchPayment(ctx context.Context, paymentID string) (*Payment, error)
	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error)
	ListOrders(ctx context.Context, from, to time.Time) ([]Order, error)
}

func observe(m metrics.Collector, operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RecordGatewayRequest(operation, outcome, time.Since(start))
}
