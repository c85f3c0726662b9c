// Package postgres stores activities, sync runs and outbox events in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/events"
	"example.com/stravahub/internal/observability"
	"example.com/stravahub/internal/persistence"
)

const uniqueViolation = "23505"

const activityColumns = `external_id, name, activity_type, distance_meters, moving_time_seconds, total_elevation_gain_meters, started_at, encoded_path, average_heart_rate, imported_at`

// Repository provides Postgres-backed persistence for activities, sync runs and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Session returns a write handle for one sync run. It is not safe for concurrent use.
func (r *Repository) Session() *Session {
	return &Session{pool: r.pool}
}

// Session implements domain.ActivityStore. The first Insert of a batch opens a transaction that
// CommitBatch or DiscardBatch closes; lookups made while it is open see its pending rows.
type Session struct {
	pool     *pgxpool.Pool
	tx       pgx.Tx
	imported time.Time
}

var _ domain.ActivityStore = (*Session)(nil)

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

// FindByExternalID returns nil, nil when the id is not stored.
func (s *Session) FindByExternalID(ctx context.Context, externalID int64) (*domain.Activity, error) {
	return getActivity(ctx, s.q(), externalID)
}

// Insert adds the activity and its activity.imported outbox row to the pending batch.
func (s *Session) Insert(ctx context.Context, activity domain.Activity) error {
	if s.tx == nil {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		s.tx = tx
	}

	if activity.ImportedAt.IsZero() {
		activity.ImportedAt = time.Now().UTC()
	}

	_, err := s.tx.Exec(ctx, `INSERT INTO activities (`+activityColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		activity.ExternalID,
		activity.Name,
		activity.ActivityType,
		activity.DistanceMeters,
		activity.MovingTimeSeconds,
		activity.TotalElevationGainMeters,
		activity.StartedAt,
		activity.EncodedPath,
		activity.AverageHeartRate,
		activity.ImportedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &domain.ConflictError{ExternalID: activity.ExternalID, Err: err}
		}
		return err
	}

	if err := insertOutbox(ctx, s.tx, events.TypeActivityImported, fmt.Sprint(activity.ExternalID), events.ActivityImported{
		ExternalID:        activity.ExternalID,
		Name:              activity.Name,
		ActivityType:      activity.ActivityType,
		DistanceMeters:    activity.DistanceMeters,
		MovingTimeSeconds: activity.MovingTimeSeconds,
		StartedAt:         activity.StartedAt,
		HasRoute:          activity.EncodedPath != nil,
		ImportedAt:        activity.ImportedAt,
	}); err != nil {
		return err
	}

	if activity.ImportedAt.After(s.imported) {
		s.imported = activity.ImportedAt
	}
	return nil
}

// CommitBatch commits the pending batch. It is a no-op when nothing was inserted.
func (s *Session) CommitBatch(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivitiesImported(s.imported)
	return nil
}

// DiscardBatch rolls the pending batch back.
func (s *Session) DiscardBatch(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// Get retrieves an activity by Strava id, nil when absent.
func (r *Repository) Get(ctx context.Context, externalID int64) (*domain.Activity, error) {
	return getActivity(ctx, r.pool, externalID)
}

// List returns activities newest first, continuing after cursor when given.
func (r *Repository) List(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{limit}
	query := `SELECT ` + activityColumns + ` FROM activities`
	if cursor != nil {
		query += ` WHERE (started_at, external_id) < ($2, $3)`
		args = append(args, cursor.StartedAt, cursor.ExternalID)
	}
	query += ` ORDER BY started_at DESC, external_id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return results, persistence.NextCursor(results, limit), nil
}

// Count returns the number of stored activities.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SummaryByType aggregates stored activities per activity type.
func (r *Repository) SummaryByType(ctx context.Context) ([]domain.TypeSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT activity_type, COUNT(*), COALESCE(SUM(distance_meters), 0),
        COALESCE(SUM(moving_time_seconds), 0), COALESCE(SUM(total_elevation_gain_meters), 0)
        FROM activities GROUP BY activity_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TypeSummary
	for rows.Next() {
		var s domain.TypeSummary
		if err := rows.Scan(&s.ActivityType, &s.Count, &s.DistanceMeters, &s.MovingTimeSeconds, &s.TotalElevationGainMeters); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordRun stores the run and a sync.completed outbox row in one transaction.
func (r *Repository) RecordRun(ctx context.Context, run domain.SyncRun) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `INSERT INTO sync_runs (run_id, mode, added, skipped, rejected, pages_fetched, stopped_page, stop_reason, error, started_at, finished_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID,
		run.Mode,
		run.Added,
		run.Skipped,
		run.Rejected,
		run.PagesFetched,
		run.StoppedPage,
		run.StopReason,
		nullIfEmpty(run.Error),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, events.TypeSyncCompleted, run.ID, events.SyncCompleted{
		RunID:        run.ID,
		Mode:         run.Mode,
		Added:        run.Added,
		Skipped:      run.Skipped,
		Rejected:     run.Rejected,
		PagesFetched: run.PagesFetched,
		StopReason:   run.StopReason,
		Error:        run.Error,
		FinishedAt:   run.FinishedAt,
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordSyncRun(run.FinishedAt, run.Failed())
	return nil
}

// ListRuns returns the most recent runs first.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	rows, err := r.pool.Query(ctx, `SELECT run_id::text, mode, added, skipped, rejected, pages_fetched, stopped_page, stop_reason, COALESCE(error, ''), started_at, finished_at
        FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.SyncRun, 0, limit)
	for rows.Next() {
		var run domain.SyncRun
		if err := rows.Scan(&run.ID, &run.Mode, &run.Added, &run.Skipped, &run.Rejected, &run.PagesFetched, &run.StoppedPage, &run.StopReason, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.StartedAt = run.StartedAt.UTC()
		run.FinishedAt = run.FinishedAt.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func getActivity(ctx context.Context, q querier, externalID int64) (*domain.Activity, error) {
	row := q.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE external_id=$1`, externalID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	if err := row.Scan(&a.ExternalID, &a.Name, &a.ActivityType, &a.DistanceMeters, &a.MovingTimeSeconds, &a.TotalElevationGainMeters, &a.StartedAt, &a.EncodedPath, &a.AverageHeartRate, &a.ImportedAt); err != nil {
		return nil, err
	}
	a.StartedAt = a.StartedAt.UTC()
	a.ImportedAt = a.ImportedAt.UTC()
	return &a, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.Topic+"-value",
		aggregateID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityImported: {AggregateType: "activity", Topic: "activity_imported"},
	events.TypeSyncCompleted:    {AggregateType: "sync_run", Topic: "sync_runs"},
}
