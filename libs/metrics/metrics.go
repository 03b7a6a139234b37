package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gildedshear"

// BookingMetrics covers the webhook and booking-writer paths.
type BookingMetrics struct {
	webhookEvents   *prometheus.CounterVec
	bookings        *prometheus.CounterVec
	unknownServices *prometheus.CounterVec
	monthCache      *prometheus.CounterVec
	webhookLatency  prometheus.Histogram
	outboxPublished *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Stripe webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "confirmations_total",
			Help:      "Booking writer results (created, existing, conflict, invalid, error)",
		}, []string{"outcome"}),
		unknownServices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "unknown_service_total",
			Help:      "Bookings whose service was not in the catalog and fell back to the default duration",
		}, []string{"service"}),
		monthCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "month_cache_total",
			Help:      "Month availability cache lookups by result",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of Stripe webhook processing",
			Buckets:   prometheus.DefBuckets,
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events published to Kafka by result",
		}, []string{"event_type", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookEvents, m.bookings, m.unknownServices, m.monthCache, m.webhookLatency, m.outboxPublished)
	return m
}

func (m *BookingMetrics) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveUnknownService(service string) {
	if m == nil {
		return
	}
	m.unknownServices.WithLabelValues(service).Inc()
}

func (m *BookingMetrics) ObserveMonthCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.monthCache.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveOutboxPublish(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outboxPublished.WithLabelValues(eventType, result).Inc()
}

// PushMetrics covers the notification dispatcher.
type PushMetrics struct {
	sends   *prometheus.CounterVec
	skipped *prometheus.CounterVec
}

func NewPushMetrics(reg prometheus.Registerer) *PushMetrics {
	m := &PushMetrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "sends_total",
			Help:      "Per-token push sends by result",
		}, []string{"result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "skipped_total",
			Help:      "Notifications not sent, by reason",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sends, m.skipped)
	return m
}

func (m *PushMetrics) ObserveSends(sent, failed int) {
	if m == nil {
		return
	}
	if sent > 0 {
		m.sends.WithLabelValues("sent").Add(float64(sent))
	}
	if failed > 0 {
		m.sends.WithLabelValues("failed").Add(float64(failed))
	}
}

func (m *PushMetrics) ObserveSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}
