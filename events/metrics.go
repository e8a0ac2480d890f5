package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the EventBus
type Metrics struct {
	// Gauges (current values)
	SubscribersTotal  prometheus.Gauge
	SubscribersByType *prometheus.GaugeVec

	// Counters (cumulative values)
	EventsPublishedTotal *prometheus.CounterVec
	EventsDeliveredTotal *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	EventsFilteredTotal  *prometheus.CounterVec
	SubscriptionsTotal   prometheus.Counter
	UnsubscriptionsTotal prometheus.Counter
}

// NewMetrics creates and registers all EventBus metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	if namespace == "" {
		namespace = "engine"
	}
	if subsystem == "" {
		subsystem = "eventbus"
	}

	return &Metrics{
		SubscribersTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_total",
			Help:      "Current number of active subscribers",
		}),
		SubscribersByType: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_by_type",
			Help:      "Current number of subscribers by topic category",
		}, []string{"event_type"}),
		EventsPublishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Total number of events published",
		}, []string{"event_type"}),
		EventsDeliveredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_delivered_total",
			Help:      "Total number of events delivered to subscribers",
		}, []string{"event_type"}),
		EventsDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to full channels",
		}, []string{"event_type"}),
		EventsFilteredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_filtered_total",
			Help:      "Total number of events filtered out by subscriber filters",
		}, []string{"event_type"}),
		SubscriptionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_total",
			Help:      "Total number of subscription requests",
		}),
		UnsubscriptionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unsubscriptions_total",
			Help:      "Total number of unsubscription requests",
		}),
	}
}

// RecordEventPublished increments the published counter for an event type
func (m *Metrics) RecordEventPublished(eventType EventType) {
	m.EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordEventDelivered increments the delivered counter for an event type
func (m *Metrics) RecordEventDelivered(eventType EventType) {
	m.EventsDeliveredTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordEventDropped increments the dropped counter for an event type
func (m *Metrics) RecordEventDropped(eventType EventType) {
	m.EventsDroppedTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordEventFiltered increments the filtered counter for an event type
func (m *Metrics) RecordEventFiltered(eventType EventType) {
	m.EventsFilteredTotal.WithLabelValues(string(eventType)).Inc()
}

// RecordSubscription increments the subscription counter
func (m *Metrics) RecordSubscription() {
	m.SubscriptionsTotal.Inc()
}

// RecordUnsubscription increments the unsubscription counter
func (m *Metrics) RecordUnsubscription() {
	m.UnsubscriptionsTotal.Inc()
}

// UpdateSubscriberCount sets the current subscriber gauge
func (m *Metrics) UpdateSubscriberCount(count int) {
	m.SubscribersTotal.Set(float64(count))
}

// UpdateSubscribersByType sets the subscriber gauge for an event type
func (m *Metrics) UpdateSubscribersByType(eventType EventType, count int) {
	m.SubscribersByType.WithLabelValues(string(eventType)).Set(float64(count))
}
