package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records confirmation and payment outcomes.
type CheckoutMetrics struct {
	confirmDuration *prometheus.HistogramVec
	confirmations   *prometheus.CounterVec
	paymentAttempts *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	confirmDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_confirm_duration_seconds",
		Help:    "Duration of checkout confirmations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_confirmations_total",
		Help: "Checkout confirmations by outcome.",
	}, []string{"outcome"})
	paymentAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Payment attempts by gateway and outcome.",
	}, []string{"gateway", "outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhooks_total",
		Help: "Inbound gateway webhooks by brand and outcome.",
	}, []string{"gateway", "outcome"})
	reg.MustRegister(confirmDuration, confirmations, paymentAttempts, webhooks)
	return &CheckoutMetrics{
		confirmDuration: confirmDuration,
		confirmations:   confirmations,
		paymentAttempts: paymentAttempts,
		webhooks:        webhooks,
	}
}

// ObserveConfirm records one confirmation with its duration.
func (m *CheckoutMetrics) ObserveConfirm(outcome string, duration time.Duration) {
	if m == nil || m.confirmDuration == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.confirmDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.confirmations.WithLabelValues(label).Inc()
}

// IncPaymentAttempt counts one payment attempt outcome.
func (m *CheckoutMetrics) IncPaymentAttempt(gateway, outcome string) {
	if m == nil || m.paymentAttempts == nil {
		return
	}
	m.paymentAttempts.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

// IncWebhook counts one inbound webhook outcome.
func (m *CheckoutMetrics) IncWebhook(gateway, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(gateway), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
