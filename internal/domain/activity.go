package domain

import (
	"context"
	"time"
)

// Activity is one Strava activity as stored locally. ExternalID is the Strava id and the natural key.
type Activity struct {
	ExternalID               int64
	Name                     string
	ActivityType             string
	DistanceMeters           float64
	MovingTimeSeconds        int
	TotalElevationGainMeters float64
	StartedAt                time.Time
	EncodedPath              *string
	AverageHeartRate         *float64
	ImportedAt               time.Time
}

// Cursor models the list pagination token.
type Cursor struct {
	StartedAt  time.Time
	ExternalID int64
}

// TypeSummary aggregates stored activities of one activity type.
type TypeSummary struct {
	ActivityType             string
	Count                    int
	DistanceMeters           float64
	MovingTimeSeconds        int64
	TotalElevationGainMeters float64
}

// ActivityStore is the write handle a sync run merges into. Inserts stay pending until CommitBatch.
type ActivityStore interface {
	// FindByExternalID returns nil, nil when no activity carries the id.
	FindByExternalID(ctx context.Context, externalID int64) (*Activity, error)
	// Insert fails with *ConflictError when the id is already stored.
	Insert(ctx context.Context, activity Activity) error
	CommitBatch(ctx context.Context) error
	DiscardBatch(ctx context.Context) error
}

// ActivityReader captures the read-side queries.
type ActivityReader interface {
	Get(ctx context.Context, externalID int64) (*Activity, error)
	List(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
	Count(ctx context.Context) (int, error)
	SummaryByType(ctx context.Context) ([]TypeSummary, error)
}
