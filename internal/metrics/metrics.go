// Package metrics defines the collector the services report to, with a
// Prometheus implementation and a no-op one for tests and tools.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting payment lifecycle metrics
type Collector interface {
	// Bill metrics
	RecordBillCreated()
	RecordBillValidation(result string)

	// Order metrics
	RecordOrderTransition(from, to string)

	// Gateway metrics
	RecordGatewayRequest(operation, outcome string, duration time.Duration)

	// Webhook metrics
	RecordWebhookEvent(eventType, result string)

	// Reconciliation metrics
	RecordReconcileFinding(kind string)

	// Cache metrics
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

// NoopCollector is a no-op implementation of Collector
type NoopCollector struct{}

func (NoopCollector) RecordBillCreated()                                 {}
func (NoopCollector) RecordBillValidation(string)                        {}
func (NoopCollector) RecordOrderTransition(string, string)               {}
func (NoopCollector) RecordGatewayRequest(string, string, time.Duration) {}
func (NoopCollector) RecordWebhookEvent(string, string)                  {}
func (NoopCollector) RecordReconcileFinding(string)                      {}
func (NoopCollector) RecordCacheHit(string)                              {}
func (NoopCollector) RecordCacheMiss(string)                             {}

type PrometheusCollector struct {
	billsCreated      prometheus.Counter
	billValidations   *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	webhookEvents     *prometheus.CounterVec
	reconcileFindings *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

// NewPrometheusCollector registers the collectors on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "bills_created_total",
			Help:      "Bills issued by partners.",
		}),
		billValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "bill_validations_total",
			Help:      "QR scans by outcome.",
		}, []string{"result"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "order_transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapdeal",
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "webhook_events_total",
			Help:      "Gateway webhook deliveries by type and result.",
		}, []string{"type", "result"}),
		reconcileFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "reconcile_findings_total",
			Help:      "Reconciliation sweep findings.",
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapdeal",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
	}

	reg.MustRegister(
		c.billsCreated,
		c.billValidations,
		c.orderTransitions,
		c.gatewayDuration,
		c.webhookEvents,
		c.reconcileFindings,
		c.cacheLookups,
	)
	return c
}

func (c *PrometheusCollector) RecordBillCreated() {
	c.billsCreated.Inc()
}

func (c *PrometheusCollector) RecordBillValidation(result string) {
	c.billValidations.WithLabelValues(result).Inc()
}

func (c *PrometheusCollector) RecordOrderTransition(from, to string) {
	c.orderTransitions.WithLabelValues(from, to).Inc()
}

func (c *PrometheusCollector) RecordGatewayRequest(operation, outcome string, duration time.Duration) {
	c.gatewayDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordWebhookEvent(eventType, result string) {
	c.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (c *PrometheusCollector) RecordReconcileFinding(kind string) {
	c.reconcileFindings.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) RecordCacheHit(cache string) {
	c.cacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (c *PrometheusCollector) RecordCacheMiss(cache string) {
	c.cacheLookups.WithLabelValues(cache, "miss").Inc()
}
