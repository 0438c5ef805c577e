package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_duration_seconds",
		Help:      "Time from publish to broker acknowledgement.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(outcomes, latency)
	return &OutboxMetrics{outcomes: outcomes, latency: latency}
}

// ObserveOutcome records one row. outcome is published, retry or terminal.
func (o *OutboxMetrics) ObserveOutcome(eventType, outcome string) {
	if o == nil || o.outcomes == nil {
		return
	}
	o.outcomes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (o *OutboxMetrics) ObservePublish(elapsed time.Duration) {
	if o == nil || o.latency == nil {
		return
	}
	o.latency.Observe(elapsed.Seconds())
}
