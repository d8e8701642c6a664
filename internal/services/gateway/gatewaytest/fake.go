// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tapdeal/internal/services/gateway"
)

const (
	Secret        = "test-key-secret"
	WebhookSecret = "test-webhook-secret"
)

// Fake signs checkout callbacks and webhooks like Razorpay and keeps
// created orders in memory. The *Err fields inject failures.
type Fake struct {
	mu       sync.Mutex
	seq      int
	orders   map[string]gateway.Order
	payments map[string][]gateway.Payment

	checkout *gateway.Signer
	webhook  *gateway.Signer

	CreateErr error
	VerifyErr error
	FetchErr  error
	ListErr   error

	CreateCalls int
}

func New() *Fake {
	return &Fake{
		orders:   make(map[string]gateway.Order),
		payments: make(map[string][]gateway.Payment),
		checkout: gateway.NewSigner(Secret),
		webhook:  gateway.NewSigner(WebhookSecret),
	}
}

func (f *Fake) Provider() string        { return gateway.ProviderRazorpay }
func (f *Fake) PublicKey() string       { return "rzp_test_key" }
func (f *Fake) SignatureHeader() string { return "X-Razorpay-Signature" }
func (f *Fake) EventIDHeader() string   { return "X-Razorpay-Event-Id" }

func (f *Fake) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	o := gateway.Order{
		ID:        fmt.Sprintf("order_%04d", f.seq),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    "created",
		CreatedAt: time.Now().UTC(),
	}
	f.orders[o.ID] = o
	return &o, nil
}

// Sign returns the checkout signature a real client would submit.
func (f *Fake) Sign(gatewayOrderID, paymentID string) string {
	return f.checkout.Sign(gatewayOrderID, paymentID)
}

func (f *Fake) VerifySignature(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	if f.VerifyErr != nil {
		return false, f.VerifyErr
	}
	return f.checkout.Verify(signature, gatewayOrderID, paymentID), nil
}

// Capture marks an order paid as if the customer completed checkout.
func (f *Fake) Capture(gatewayOrderID, paymentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[gatewayOrderID]
	o.ID = gatewayOrderID
	o.Status = "paid"
	o.Paid = true
	o.AmountPaid = o.Amount
	f.orders[gatewayOrderID] = o
	f.payments[gatewayOrderID] = append(f.payments[gatewayOrderID], gateway.Payment{
		ID:       paymentID,
		OrderID:  gatewayOrderID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Status:   gateway.PaymentCaptured,
	})
}

// Webhook builds a signed Razorpay-style payment event body.
func (f *Fake) Webhook(event, gatewayOrderID, paymentID string, amount int64) ([]byte, string) {
	body, _ := json.Marshal(map[string]interface{}{
		"event": event,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": gatewayOrderID,
					"amount":   amount,
					"status":   "captured",
				},
			},
		},
	})
	return body, f.webhook.SignBody(body)
}

func (f *Fake) VerifyWebhookSignature(body []byte, signature string) bool {
	return f.webhook.VerifyBody(body, signature)
}

func (f *Fake) ParseWebhookEvent(ctx context.Context, body []byte) (*gateway.Event, error) {
	return (&gateway.RazorpayGateway{}).ParseWebhookEvent(ctx, body)
}

func (f *Fake) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	for _, ps := range f.payments {
		for _, p := range ps {
			if p.ID == paymentID {
				return &p, nil
			}
		}
	}
	return nil, fmt.Errorf("payment %s not found", paymentID)
}

func (f *Fake) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]gateway.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]gateway.Payment(nil), f.payments[gatewayOrderID]...), nil
}

func (f *Fake) ListOrders(ctx context.Context, from, to time.Time) ([]gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var out []gateway.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

// AddOrder registers an order the local store knows nothing about.
func (f *Fake) AddOrder(o gateway.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}
