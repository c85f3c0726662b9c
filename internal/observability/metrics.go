// Package observability holds logger construction and the watermark gauges shared by the stores.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityImportedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stravahub",
		Subsystem: "persistence",
		Name:      "last_activity_imported_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed activity import.",
	})
	syncRunGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "stravahub",
		Subsystem: "persistence",
		Name:      "last_sync_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recently recorded sync run, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(activityImportedGauge, syncRunGauge)
}

// RecordActivitiesImported moves the import watermark forward.
func RecordActivitiesImported(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityImportedGauge.Set(float64(ts.Unix()))
}

// RecordSyncRun updates the run watermark for the "ok" or "failed" outcome.
func RecordSyncRun(finishedAt time.Time, failed bool) {
	if finishedAt.IsZero() {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	syncRunGauge.WithLabelValues(outcome).Set(float64(finishedAt.Unix()))
}
