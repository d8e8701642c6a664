package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tapdeal/internal/config"
	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/utils/money"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	receiptMetadataKey    = "receipt"
)

// StripeGateway maps gateway orders onto PaymentIntents and payments onto
// their charges.
type StripeGateway struct {
	api           *client.API
	publicKey     string
	webhookSecret string
	timeout       time.Duration
	metrics       metrics.Collector
}

func NewStripeGateway(cfg config.GatewayConfig, m metrics.Collector) *StripeGateway {
	if m == nil {
		m = metrics.NoopCollector{}
	}
	backends := &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        &http.Client{Timeout: cfg.Timeout},
			MaxNetworkRetries: stripe.Int64(int64(cfg.MaxRetries)),
		}),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	}
	return &StripeGateway{
		api:           client.New(cfg.StripeSecretKey, backends),
		publicKey:     cfg.StripePublicKey,
		webhookSecret: cfg.StripeWebhook,
		timeout:       cfg.Timeout,
		metrics:       m,
	}
}

func (g *StripeGateway) Provider() string        { return ProviderStripe }
func (g *StripeGateway) PublicKey() string       { return g.publicKey }
func (g *StripeGateway) SignatureHeader() string { return stripeSignatureHeader }

// EventIDHeader is empty: Stripe carries the event id in the body.
func (g *StripeGateway) EventIDHeader() string { return "" }

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	start := time.Now()
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Int64()),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	// The receipt is unique per order, so a retried create returns the same intent.
	params.SetIdempotencyKey(req.Receipt)
	params.AddMetadata(receiptMetadataKey, req.Receipt)
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	err = classifyStripeError(err)
	observe(g.metrics, "create_order", start, err)
	if err != nil {
		return nil, err
	}
	o := intentToOrder(pi)
	return &o, nil
}

// VerifySignature confirms the payment server side: Stripe has no client
// callback signature, so the intent must report a paid charge with the
// claimed id. The signature argument is not consulted.
func (g *StripeGateway) VerifySignature(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	start := time.Now()
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(gatewayOrderID, params)
	err = classifyStripeError(err)
	observe(g.metrics, "verify_payment", start, err)
	if err != nil {
		if errors.Is(err, apperrors.ErrGatewayRejected) {
			return false, nil
		}
		return false, err
	}

	return intentConfirms(pi, paymentID)
}

// intentConfirms reports whether a succeeded intent carries the claimed paid
// charge. Only a canceled intent is a definite failure; any other status may
// still end in a capture, so the outcome is reported as unknown.
func intentConfirms(pi *stripe.PaymentIntent, paymentID string) (bool, error) {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
	case stripe.PaymentIntentStatusCanceled:
		return false, nil
	default:
		return false, apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status))
	}
	if pi.Charges == nil {
		return false, nil
	}
	for _, ch := range pi.Charges.Data {
		if ch.ID == paymentID && ch.Paid {
			return true, nil
		}
	}
	return false, nil
}

func (g *StripeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g.webhookSecret == "" || signature == "" {
		return false
	}
	_, err := webhook.ConstructEvent(body, signature, g.webhookSecret)
	return err == nil
}

// ParseWebhookEvent expects a body whose signature was already checked.
func (g *StripeGateway) ParseWebhookEvent(ctx context.Context, body []byte) (*Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decode stripe event: %w", err)
	}
	return eventFromStripe(ev)
}

func eventFromStripe(ev stripe.Event) (*Event, error) {
	out := &Event{ID: ev.ID, RawType: ev.Type, Type: EventIgnored}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.OrderID = pi.ID
		if ev.Type == "payment_intent.succeeded" {
			out.Type = EventPaymentCaptured
			out.Amount = money.Amount(pi.AmountReceived)
		} else {
			out.Type = EventPaymentFailed
			out.Amount = money.Amount(pi.Amount)
			if pi.LastPaymentError != nil {
				out.Reason = pi.LastPaymentError.Msg
			}
		}
		if pi.Charges != nil && len(pi.Charges.Data) > 0 {
			out.PaymentID = pi.Charges.Data[len(pi.Charges.Data)-1].ID
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		out.Type = EventRefundProcessed
		out.PaymentID = ch.ID
		out.Amount = money.Amount(ch.AmountRefunded)
		if ch.PaymentIntent != nil {
			out.OrderID = ch.PaymentIntent.ID
		}
	}
	return out, nil
}

func (g *StripeGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	start := time.Now()
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.ChargeParams{}
	params.Context = ctx
	ch, err := g.api.Charges.Get(paymentID, params)
	err = classifyStripeError(err)
	observe(g.metrics, "fetch_payment", start, err)
	if err != nil {
		return nil, err
	}
	p := chargeToPayment(ch)
	return &p, nil
}

func (g *StripeGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	start := time.Now()
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(gatewayOrderID, params)
	err = classifyStripeError(err)
	observe(g.metrics, "fetch_order_payments", start, err)
	if err != nil {
		return nil, err
	}
	var payments []Payment
	if pi.Charges != nil {
		for _, ch := range pi.Charges.Data {
			p := chargeToPayment(ch)
			p.OrderID = pi.ID
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (g *StripeGateway) ListOrders(ctx context.Context, from, to time.Time) ([]Order, error) {
	start := time.Now()
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentListParams{}
	params.Context = ctx
	params.CreatedRange = &stripe.RangeQueryParams{
		GreaterThanOrEqual: from.Unix(),
		LesserThan:         to.Unix(),
	}

	var orders []Order
	it := g.api.PaymentIntents.List(params)
	for it.Next() {
		orders = append(orders, intentToOrder(it.PaymentIntent()))
	}
	err := classifyStripeError(it.Err())
	observe(g.metrics, "list_orders", start, err)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func intentToOrder(pi *stripe.PaymentIntent) Order {
	return Order{
		ID:         pi.ID,
		Amount:     money.Amount(pi.Amount),
		AmountPaid: money.Amount(pi.AmountReceived),
		Currency:   strings.ToUpper(string(pi.Currency)),
		Receipt:    pi.Metadata[receiptMetadataKey],
		Status:     string(pi.Status),
		Paid:       pi.Status == stripe.PaymentIntentStatusSucceeded,
		CreatedAt:  time.Unix(pi.Created, 0).UTC(),
	}
}

func chargeToPayment(ch *stripe.Charge) Payment {
	p := Payment{
		ID:       ch.ID,
		Amount:   money.Amount(ch.Amount),
		Currency: strings.ToUpper(string(ch.Currency)),
		Error:    ch.FailureMessage,
	}
	if ch.PaymentIntent != nil {
		p.OrderID = ch.PaymentIntent.ID
	}
	switch {
	case ch.Refunded:
		p.Status = PaymentRefunded
	case ch.Paid && ch.Captured:
		p.Status = PaymentCaptured
	case ch.Paid:
		p.Status = PaymentAuthorized
	case string(ch.Status) == "failed":
		p.Status = PaymentFailed
	default:
		p.Status = PaymentCreated
	}
	return p
}

// classifyStripeError separates definite rejections from outcomes we could
// not observe.
func classifyStripeError(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests || se.Type == stripe.ErrorTypeAPI {
			return apperrors.ErrGatewayUnavailable.Wrap(err)
		}
		return apperrors.ErrGatewayRejected.Wrap(err)
	}
	return apperrors.ErrGatewayUnavailable.Wrap(err)
}
