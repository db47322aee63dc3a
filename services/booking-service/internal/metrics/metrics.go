package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for the booking flows. A nil *Metrics is a no-op.
type Metrics struct {
	intakeTotal     *prometheus.CounterVec
	lifecycleTotal  *prometheus.CounterVec
	slotQueries     *prometheus.CounterVec
	outboxPublished *prometheus.CounterVec
	emailsTotal     *prometheus.CounterVec
	intakeLatency   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		intakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetbook",
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Payment confirmations by outcome",
		}, []string{"status", "reason"}),
		lifecycleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetbook",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome",
		}, []string{"operation", "outcome"}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetbook",
			Subsystem: "availability",
			Name:      "queries_total",
			Help:      "Slot queries by outcome",
		}, []string{"outcome"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events delivered to Kafka",
		}, []string{"event_type"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vetbook",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Notification emails by recipient kind and outcome",
		}, []string{"recipient", "outcome"}),
		intakeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vetbook",
			Subsystem: "intake",
			Name:      "latency_seconds",
			Help:      "Latency of payment confirmation processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intakeTotal, m.lifecycleTotal, m.slotQueries, m.outboxPublished, m.emailsTotal, m.intakeLatency)
	return m
}

func (m *Metrics) ObserveIntake(status, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.intakeTotal.WithLabelValues(status, reason).Inc()
	m.intakeLatency.Observe(seconds)
}

func (m *Metrics) ObserveLifecycle(operation, outcome string) {
	if m == nil {
		return
	}
	m.lifecycleTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveSlotQuery(outcome string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOutboxPublished(eventType string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveEmail(recipient string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.emailsTotal.WithLabelValues(recipient, outcome).Inc()
}
