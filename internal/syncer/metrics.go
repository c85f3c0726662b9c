package syncer

import "github.com/prometheus/client_golang/prometheus"

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of sync runs grouped by mode and stop reason.",
	}, []string{"mode", "stop_reason"})

	importedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "sync",
		Name:      "activities_imported_total",
		Help:      "Number of activities inserted by sync runs.",
	}, []string{"mode"})

	rejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "sync",
		Name:      "activities_rejected_total",
		Help:      "Number of remote activities skipped because they failed validation.",
	})

	pagesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stravahub",
		Subsystem: "sync",
		Name:      "pages_fetched_total",
		Help:      "Number of activity pages fetched from Strava.",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stravahub",
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of sync runs from token refresh to stop.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(runsCounter, importedCounter, rejectedCounter, pagesCounter, runDuration)
}

func recordRun(res Result) {
	runsCounter.WithLabelValues(string(res.Mode), string(res.StopReason)).Inc()
	importedCounter.WithLabelValues(string(res.Mode)).Add(float64(res.Added))
	rejectedCounter.Add(float64(res.Rejected))
	runDuration.Observe(res.Duration().Seconds())
}
