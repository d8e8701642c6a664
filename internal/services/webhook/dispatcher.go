// Package webhook turns signed gateway callbacks into order ledger
// transitions. Every event is stored once per (provider, event id) and
// applied at most once; redelivered events are acknowledged without effect.
package webhook

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "tapdeal/internal/errors"
	"tapdeal/internal/metrics"
	"tapdeal/internal/models"
	"tapdeal/internal/repositories"
	"tapdeal/internal/services/gateway"
	"tapdeal/internal/services/order"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"gorm.io/datatypes"
)

const defaultLockTTL = 30 * time.Second

// Locker marks an event as in flight across instances.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Request is a raw webhook delivery.
type Request struct {
	Body      []byte
	Signature string
	// EventID comes from the gateway's event id header, when it sends one.
	EventID string
}

// Result reports what a delivery did. Every Result is acknowledged.
type Result struct {
	EventID   string
	Outcome   order.Outcome
	Duplicate bool
}

type Dispatcher struct {
	store   repositories.Store
	gateway gateway.Gateway
	orders  order.Service
	locker  Locker
	lockTTL time.Duration
	metrics metrics.Collector
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. locker may be nil when only one
// instance processes webhooks.
func NewDispatcher(store repositories.Store, gw gateway.Gateway, orders order.Service, locker Locker, m metrics.Collector) *Dispatcher {
	if store == nil {
		panic("store is required")
	}
	if gw == nil {
		panic("gateway is required")
	}
	if orders == nil {
		panic("order service is required")
	}
	if m == nil {
		m = metrics.NoopCollector{}
	}
	return &Dispatcher{
		store:   store,
		gateway: gw,
		orders:  orders,
		locker:  locker,
		lockTTL: defaultLockTTL,
		metrics: m,
		now:     time.Now,
	}
}

// Dispatch verifies and applies one delivery. An error other than
// ErrWebhookSignatureInvalid means the event was not durably handled and
// the gateway should retry it.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !d.gateway.VerifyWebhookSignature(req.Body, req.Signature) {
		log.Warn().
			Str("provider", d.gateway.Provider()).
			Str("event_id", req.EventID).
			Int("body_bytes", len(req.Body)).
			Msg("webhook signature rejected")
		d.metrics.RecordWebhookEvent("unknown", "rejected")
		return nil, apperrors.ErrWebhookSignatureInvalid
	}

	ev, err := d.gateway.ParseWebhookEvent(ctx, req.Body)
	if err != nil {
		// Signed but unreadable: retrying would not help.
		log.Error().Err(err).Str("event_id", req.EventID).Msg("unparseable webhook acknowledged")
		d.metrics.RecordWebhookEvent("unknown", "unparseable")
		return &Result{EventID: req.EventID, Outcome: order.OutcomeIgnored}, nil
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = ev.ID
	}
	if eventID == "" {
		eventID = Fingerprint(req.Body)
	}

	record, fresh, err := d.record(ctx, eventID, ev, req.Body)
	if err != nil {
		return nil, err
	}
	if !fresh && record.ProcessedAt != nil {
		d.metrics.RecordWebhookEvent(ev.RawType, "duplicate")
		return &Result{EventID: eventID, Outcome: order.OutcomeIgnored, Duplicate: true}, nil
	}

	if d.locker != nil {
		key := "webhook:" + d.gateway.Provider() + ":" + eventID
		ok, err := d.locker.AcquireLock(ctx, key, d.lockTTL)
		if err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("webhook lock unavailable, processing anyway")
		} else if !ok {
			d.metrics.RecordWebhookEvent(ev.RawType, "in_flight")
			return &Result{EventID: eventID, Outcome: order.OutcomeIgnored, Duplicate: true}, nil
		} else {
			defer func() {
				if err := d.locker.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
					log.Warn().Err(err).Str("event_id", eventID).Msg("failed to release webhook lock")
				}
			}()
		}
	}

	outcome, applyErr := d.orders.ApplyGatewayEvent(ctx, *ev)
	if applyErr != nil {
		if err := d.store.WebhookEvents().MarkProcessed(ctx, record.ID, nil, applyErr.Error()); err != nil {
			log.Error().Err(err).Str("event_id", eventID).Msg("failed to record webhook failure")
		}
		d.metrics.RecordWebhookEvent(ev.RawType, "error")
		log.Error().
			Err(applyErr).
			Str("event_id", eventID).
			Str("event", ev.RawType).
			Str("gateway_order_id", ev.OrderID).
			Msg("webhook processing failed")
		return nil, fmt.Errorf("failed to apply webhook %s: %w", eventID, applyErr)
	}

	processedAt := d.now().UTC()
	if err := d.store.WebhookEvents().MarkProcessed(ctx, record.ID, &processedAt, ""); err != nil {
		return nil, fmt.Errorf("failed to mark webhook %s processed: %w", eventID, err)
	}

	d.metrics.RecordWebhookEvent(ev.RawType, string(outcome))
	log.Info().
		Str("event_id", eventID).
		Str("event", ev.RawType).
		Str("gateway_order_id", ev.OrderID).
		Str("outcome", string(outcome)).
		Msg("webhook processed")
	return &Result{EventID: eventID, Outcome: outcome}, nil
}

// record stores the event, or loads the stored copy of a redelivery.
func (d *Dispatcher) record(ctx context.Context, eventID string, ev *gateway.Event, body []byte) (*models.WebhookEvent, bool, error) {
	payload := datatypes.JSON(body)
	if !json.Valid(body) {
		payload = datatypes.JSON("{}")
	}
	eventType := ev.RawType
	if eventType == "" {
		eventType = string(ev.Type)
	}
	record := &models.WebhookEvent{
		Provider:        d.gateway.Provider(),
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         payload,
	}

	created, err := d.store.WebhookEvents().Record(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record webhook %s: %w", eventID, err)
	}
	if created {
		return record, true, nil
	}

	existing, err := d.store.WebhookEvents().Get(ctx, record.Provider, eventID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, fmt.Errorf("webhook %s vanished after insert conflict", eventID)
		}
		return nil, false, fmt.Errorf("failed to load webhook %s: %w", eventID, err)
	}
	return existing, false, nil
}

// Fingerprint identifies a delivery by its body when the gateway sends no
// event id.
func Fingerprint(body []byte) string {
	sum := blake3.Sum256(body)
	return "b3:" + hex.EncodeToString(sum[:16])
}
