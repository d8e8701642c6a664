package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tapdeal/internal/config"
	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/utils/money"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
	razorpayPageSize        = 100
)

type RazorpayGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	timeout    time.Duration
	maxRetries int
	checkout   *Signer
	webhook    *Signer
	metrics    metrics.Collector
}

func NewRazorpayGateway(cfg config.GatewayConfig, m metrics.Collector) *RazorpayGateway {
	if m == nil {
		m = metrics.NoopCollector{}
	}
	base := strings.TrimRight(cfg.RazorpayBaseURL, "/")
	if base == "" {
		base = "https://api.razorpay.com"
	}
	return &RazorpayGateway{
		baseURL:    base,
		keyID:      cfg.RazorpayKeyID,
		keySecret:  cfg.RazorpayKeySecret,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		checkout:   NewSigner(cfg.RazorpayKeySecret),
		webhook:    NewSigner(cfg.RazorpayWebhook),
		metrics:    m,
	}
}

func (g *RazorpayGateway) Provider() string        { return ProviderRazorpay }
func (g *RazorpayGateway) PublicKey() string       { return g.keyID }
func (g *RazorpayGateway) SignatureHeader() string { return razorpaySignatureHeader }
func (g *RazorpayGateway) EventIDHeader() string   { return razorpayEventIDHeader }

type razorpayOrder struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Notes      map[string]string `json:"notes,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

func (o razorpayOrder) toOrder() Order {
	return Order{
		ID:         o.ID,
		Amount:     money.Amount(o.Amount),
		AmountPaid: money.Amount(o.AmountPaid),
		Currency:   o.Currency,
		Receipt:    o.Receipt,
		Status:     o.Status,
		Paid:       o.Status == "paid",
		CreatedAt:  time.Unix(o.CreatedAt, 0).UTC(),
	}
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

func (p razorpayPayment) toPayment() Payment {
	return Payment{
		ID:       p.ID,
		OrderID:  p.OrderID,
		Amount:   money.Amount(p.Amount),
		Currency: p.Currency,
		Status:   PaymentStatus(p.Status),
		Error:    p.ErrorDescription,
	}
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder is not retried: a lost response may still have created the
// order upstream, and the receipt is not an idempotency key on this API.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	start := time.Now()
	body := map[string]interface{}{
		"amount":          req.Amount.Int64(),
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out razorpayOrder
	err := g.do(ctx, fiber.MethodPost, "/v1/orders", nil, body, &out)
	observe(g.metrics, "create_order", start, err)
	if err != nil {
		return nil, err
	}
	o := out.toOrder()
	return &o, nil
}

func (g *RazorpayGateway) VerifySignature(ctx context.Context, gatewayOrderID, paymentID, signature string) (bool, error) {
	return g.checkout.Verify(signature, gatewayOrderID, paymentID), nil
}

func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return g.webhook.VerifyBody(body, signature)
}

type razorpayEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity razorpayPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity razorpayOrder `json:"entity"`
		} `json:"order"`
		Refund *struct {
			Entity struct {
				ID        string `json:"id"`
				PaymentID string `json:"payment_id"`
				Amount    int64  `json:"amount"`
			} `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

func (g *RazorpayGateway) ParseWebhookEvent(ctx context.Context, body []byte) (*Event, error) {
	var raw razorpayEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode razorpay event: %w", err)
	}

	ev := &Event{RawType: raw.Event, Type: EventIgnored}
	if p := raw.Payload.Payment; p != nil {
		ev.PaymentID = p.Entity.ID
		ev.OrderID = p.Entity.OrderID
		ev.Amount = money.Amount(p.Entity.Amount)
		ev.Reason = p.Entity.ErrorDescription
	}
	if o := raw.Payload.Order; o != nil && ev.OrderID == "" {
		ev.OrderID = o.Entity.ID
		ev.Amount = money.Amount(o.Entity.AmountPaid)
	}

	switch raw.Event {
	case "payment.captured", "order.paid":
		ev.Type = EventPaymentCaptured
	case "payment.failed":
		ev.Type = EventPaymentFailed
	case "refund.processed":
		ev.Type = EventRefundProcessed
		if r := raw.Payload.Refund; r != nil {
			ev.Amount = money.Amount(r.Entity.Amount)
			if ev.PaymentID == "" {
				ev.PaymentID = r.Entity.PaymentID
			}
		}
	}
	return ev, nil
}

func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	start := time.Now()
	var out razorpayPayment
	err := g.get(ctx, "/v1/payments/"+url.PathEscape(paymentID), nil, &out)
	observe(g.metrics, "fetch_payment", start, err)
	if err != nil {
		return nil, err
	}
	p := out.toPayment()
	return &p, nil
}

func (g *RazorpayGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	start := time.Now()
	var out struct {
		Items []razorpayPayment `json:"items"`
	}
	err := g.get(ctx, "/v1/orders/"+url.PathEscape(gatewayOrderID)+"/payments", nil, &out)
	observe(g.metrics, "fetch_order_payments", start, err)
	if err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(out.Items))
	for _, p := range out.Items {
		payments = append(payments, p.toPayment())
	}
	return payments, nil
}

// ListOrders pages through every order created in [from, to).
func (g *RazorpayGateway) ListOrders(ctx context.Context, from, to time.Time) ([]Order, error) {
	start := time.Now()
	var orders []Order
	var err error
	for skip := 0; ; skip += razorpayPageSize {
		q := url.Values{}
		q.Set("from", strconv.FormatInt(from.Unix(), 10))
		q.Set("to", strconv.FormatInt(to.Unix(), 10))
		q.Set("count", strconv.Itoa(razorpayPageSize))
		q.Set("skip", strconv.Itoa(skip))

		var page struct {
			Count int             `json:"count"`
			Items []razorpayOrder `json:"items"`
		}
		if err = g.get(ctx, "/v1/orders", q, &page); err != nil {
			break
		}
		for _, o := range page.Items {
			orders = append(orders, o.toOrder())
		}
		if len(page.Items) < razorpayPageSize {
			break
		}
	}
	observe(g.metrics, "list_orders", start, err)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// get retries idempotent reads with exponential backoff.
func (g *RazorpayGateway) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	backoff := 200 * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		err = g.do(ctx, fiber.MethodGet, path, query, nil, out)
		if err == nil || !errors.Is(err, apperrors.ErrGatewayUnavailable) || attempt >= g.maxRetries {
			return err
		}
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt+1).Msg("gateway read failed, retrying")
		select {
		case <-ctx.Done():
			return apperrors.ErrGatewayUnavailable.Wrap(ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (g *RazorpayGateway) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return apperrors.ErrGatewayUnavailable.Wrap(err)
	}

	target := g.baseURL + path
	var a *fiber.Agent
	switch method {
	case fiber.MethodPost:
		a = fiber.Post(target)
	default:
		a = fiber.Get(target)
	}
	a.BasicAuth(g.keyID, g.keySecret)
	a.Timeout(g.requestTimeout(ctx))
	if query != nil {
		a.QueryString(query.Encode())
	}
	if body != nil {
		a.JSON(body)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return apperrors.ErrGatewayUnavailable.Wrap(err)
	}

	code, resp, errs := a.Bytes()
	if len(errs) > 0 {
		return apperrors.ErrGatewayUnavailable.Wrap(errs[0])
	}

	switch {
	case code >= 500 || code == fiber.StatusTooManyRequests:
		return apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("razorpay %s %s: status %d", method, path, code))
	case code >= 400:
		var re razorpayError
		_ = json.Unmarshal(resp, &re)
		return apperrors.ErrGatewayRejected.Wrap(fmt.Errorf("razorpay %s %s: status %d: %s %s",
			method, path, code, re.Error.Code, re.Error.Description))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		// A 2xx we cannot read leaves the upstream outcome unknown.
		return apperrors.ErrGatewayUnavailable.Wrap(fmt.Errorf("decode razorpay response: %w", err))
	}
	return nil
}

func (g *RazorpayGateway) requestTimeout(ctx context.Context) time.Duration {
	timeout := g.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	return timeout
}
