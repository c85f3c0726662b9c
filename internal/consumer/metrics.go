package consumer

import (
	"github.com/prometheus/client_golang/prometheus"

	"example.com/stravahub/internal/events"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Number of Kafka messages successfully handled.",
	}, []string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic and event type.",
	}, []string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	activitiesLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "event_log",
		Name:      "activities_total",
		Help:      "Imported activities recorded in the event log, by activity type.",
	}, []string{"activity_type"})

	distanceLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "event_log",
		Name:      "distance_meters_total",
		Help:      "Distance of imported activities recorded in the event log, by activity type.",
	}, []string{"activity_type"})

	syncRunsLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "event_log",
		Name:      "sync_runs_total",
		Help:      "Completed sync runs recorded in the event log, by mode and outcome.",
	}, []string{"mode", "outcome"})

	lastSyncCompleted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stravahub",
		Subsystem: "event_log",
		Name:      "last_sync_completed_timestamp_seconds",
		Help:      "Finish time of the newest sync run seen on the sync_runs topic.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter,
		activitiesLogged, distanceLogged, syncRunsLogged, lastSyncCompleted)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordActivity(e events.ActivityImported) {
	activityType := e.ActivityType
	if activityType == "" {
		activityType = "unknown"
	}
	activitiesLogged.WithLabelValues(activityType).Inc()
	distanceLogged.WithLabelValues(activityType).Add(e.DistanceMeters)
}

func recordSyncCompleted(e events.SyncCompleted) {
	outcome := "ok"
	if e.Error != "" {
		outcome = "failed"
	}
	syncRunsLogged.WithLabelValues(e.Mode, outcome).Inc()
	if !e.FinishedAt.IsZero() {
		lastSyncCompleted.Set(float64(e.FinishedAt.Unix()))
	}
}
