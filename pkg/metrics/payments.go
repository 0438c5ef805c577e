package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics tracks ledger transitions, webhook outcomes and provider latency.
type PaymentMetrics struct {
	transitions *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
	gateway     *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "transitions_total",
		Help:      "Payment intent status transitions by trigger.",
	}, []string{"from", "to", "trigger"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "webhook_deliveries_total",
		Help:      "Authenticated provider webhook deliveries by outcome.",
	}, []string{"outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"operation", "outcome"})
	reg.MustRegister(transitions, webhooks, gateway)
	return &PaymentMetrics{
		transitions: transitions,
		webhooks:    webhooks,
		gateway:     gateway,
	}
}

// ObserveTransition counts a persisted status change.
func (m *PaymentMetrics) ObserveTransition(from, to, trigger string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(trigger)).Inc()
}

// ObserveWebhook counts a webhook delivery outcome.
func (m *PaymentMetrics) ObserveWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records the latency of a provider request.
func (m *PaymentMetrics) ObserveGatewayCall(operation, outcome string, elapsed time.Duration) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Observe(elapsed.Seconds())
}
