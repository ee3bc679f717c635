package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook relay.
type RelayMetrics struct {
	webhookEvents     *prometheus.CounterVec
	replies           *prometheus.CounterVec
	generationLatency prometheus.Histogram
	deliveries        *prometheus.CounterVec
	contextRecoveries prometheus.Counter
	webhookLatency    *prometheus.HistogramVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "webhook_events_total",
			Help:      "Total inbound WhatsApp webhook events",
		}, []string{"kind", "status"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "replies_total",
			Help:      "Generated replies by outcome",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "generation_seconds",
			Help:      "Time spent producing a reply, fallbacks included",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "deliveries_total",
			Help:      "Outbound Graph API sends",
		}, []string{"status"}),
		contextRecoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "context_recoveries_total",
			Help:      "Stored conversation contexts replaced after the backend rejected them",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookEvents, m.replies, m.generationLatency, m.deliveries, m.contextRecoveries, m.webhookLatency)
	return m
}

func (m *RelayMetrics) ObserveWebhook(kind, status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, status).Inc()
}

func (m *RelayMetrics) ObserveWebhookLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(kind).Observe(seconds)
}

// ObserveReply records a reply outcome: "ok" or a failure kind.
func (m *RelayMetrics) ObserveReply(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(outcome).Inc()
	m.generationLatency.Observe(seconds)
}

func (m *RelayMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
}

func (m *RelayMetrics) IncContextRecovery() {
	if m == nil {
		return
	}
	m.contextRecoveries.Inc()
}
