// Package events defines the payloads published for synced activities.
package events

import "time"

// Event types as stored in the outbox and carried through Kafka.
const (
	TypeActivityImported = "activity.imported"
	TypeSyncCompleted    = "sync.completed"
)

// ActivityImported is emitted once per activity inserted by a sync run.
type ActivityImported struct {
	ExternalID        int64     `json:"external_id"`
	Name              string    `json:"name"`
	ActivityType      string    `json:"activity_type"`
	DistanceMeters    float64   `json:"distance_meters"`
	MovingTimeSeconds int       `json:"moving_time_seconds"`
	StartedAt         time.Time `json:"started_at"`
	HasRoute          bool      `json:"has_route"`
	ImportedAt        time.Time `json:"imported_at"`
}

// SyncCompleted summarises a finished run, successful or not.
type SyncCompleted struct {
	RunID        string    `json:"run_id"`
	Mode         string    `json:"mode"`
	Added        int       `json:"added"`
	Skipped      int       `json:"skipped"`
	Rejected     int       `json:"rejected"`
	PagesFetched int       `json:"pages_fetched"`
	StopReason   string    `json:"stop_reason"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}
