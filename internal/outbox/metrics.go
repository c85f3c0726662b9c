package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox delivery attempts that failed and were left for the next poll, by event type.",
	}, []string{"event_type"})

	abandonedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "outbox",
		Name:      "events_abandoned_total",
		Help:      "Number of outbox events that ran out of delivery attempts, labeled by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stravahub",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, publishing and settling one outbox batch.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, abandonedCounter, batchDuration)
}

func recordDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.EventType).Inc()
	}
}

// recordFailed counts one failed attempt per message and flags those that used their last attempt.
func recordFailed(messages []Message, maxAttempts int) {
	for _, msg := range messages {
		failedCounter.WithLabelValues(msg.EventType).Inc()
		if msg.Attempts+1 >= maxAttempts {
			abandonedCounter.WithLabelValues(msg.Topic).Inc()
		}
	}
}
