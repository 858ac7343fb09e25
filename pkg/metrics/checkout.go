package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records order placement outcomes.
type CheckoutMetrics struct {
	orders          *prometheus.CounterVec
	duration        prometheus.Histogram
	rollbacks       *prometheus.CounterVec
	reconciliations prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on reg. A nil registerer
// yields a recorder that drops everything.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_orders_total",
		Help: "Order placement attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of order placement in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_rollbacks_total",
		Help: "Aborted checkouts by transaction mode.",
	}, []string{"mode"})
	reconciliations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reconciliation_tasks_total",
		Help: "Reconciliation tasks recorded after invoice linking failed.",
	})
	reg.MustRegister(orders, duration, rollbacks, reconciliations)
	return &CheckoutMetrics{
		orders:          orders,
		duration:        duration,
		rollbacks:       rollbacks,
		reconciliations: reconciliations,
	}
}

// Observe records one placement attempt.
func (c *CheckoutMetrics) Observe(outcome string, duration time.Duration) {
	if c == nil || c.orders == nil {
		return
	}
	c.orders.WithLabelValues(normalizeLabel(outcome)).Inc()
	c.duration.Observe(duration.Seconds())
}

// IncRollback counts an aborted unit of work.
func (c *CheckoutMetrics) IncRollback(mode string) {
	if c == nil || c.rollbacks == nil {
		return
	}
	c.rollbacks.WithLabelValues(normalizeLabel(mode)).Inc()
}

// IncReconciliation counts a recorded reconciliation task.
func (c *CheckoutMetrics) IncReconciliation() {
	if c == nil || c.reconciliations == nil {
		return
	}
	c.reconciliations.Inc()
}

// OutboxMetrics counts events handed to a broker.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox metrics on reg.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published by broker.",
	}, []string{"broker"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish failures by broker.",
	}, []string{"broker"})
	reg.MustRegister(published, failed)
	return &OutboxMetrics{published: published, failed: failed}
}

func (o *OutboxMetrics) IncPublished(broker string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(broker)).Inc()
}

func (o *OutboxMetrics) IncFailed(broker string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(broker)).Inc()
}
