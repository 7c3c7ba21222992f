package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking ledger metrics
	BookingsCreated   prometheus.Counter
	BookingRejections *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	Refunds           prometheus.Counter
	CalendarReplaces  *prometheus.CounterVec
	CalendarCacheHits *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxQueueSize         prometheus.Gauge
	OutboxRetries           *prometheus.CounterVec
	OutboxEventsPurged      prometheus.Counter

	// Notification metrics
	NotificationsSent *prometheus.CounterVec
}

// New builds an unregistered metric set. Call Register to expose it.
func New(namespace string) *Metrics {
	return &Metrics{
		BookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "created_total",
			Help:      "Total number of bookings created",
		}),
		BookingRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "rejections_total",
			Help:      "Booking requests rejected by the ledger",
		}, []string{"reason"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Booking status transitions applied",
		}, []string{"kind", "from", "to"}),
		Refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "refunds_total",
			Help:      "Total number of refunds recorded",
		}),
		CalendarReplaces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "replacements_total",
			Help:      "Calendar replacements by scope",
		}, []string{"scope"}),
		CalendarCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "cache_lookups_total",
			Help:      "Calendar day lookups by cache result",
		}, []string{"result"}),

		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "queue_size",
			Help:      "Current number of events waiting in the outbox",
		}),
		OutboxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),
		OutboxEventsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_purged_total",
			Help:      "Processed outbox events removed by the cleanup worker",
		}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "sent_total",
			Help:      "Notification emails by outcome",
		}, []string{"event_type", "status"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BookingsCreated,
		m.BookingRejections,
		m.StatusTransitions,
		m.Refunds,
		m.CalendarReplaces,
		m.CalendarCacheHits,
		m.OutboxEventsProcessed,
		m.OutboxEventsFailed,
		m.OutboxProcessingLatency,
		m.OutboxQueueSize,
		m.OutboxRetries,
		m.OutboxEventsPurged,
		m.NotificationsSent,
	}
}
