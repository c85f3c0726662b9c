// Package sqlite is a single-file activity store for local use.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/observability"
	"example.com/stravahub/internal/persistence"
)

//go:embed schema.sql
var schemaSQL string

const activityColumns = `external_id, name, activity_type, distance_meters, moving_time_seconds, total_elevation_gain_meters, started_at, encoded_path, average_heart_rate, imported_at`

// Store keeps activities and sync runs in one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps pragmas and the session transaction on the same handle.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session returns a write handle for one sync run.
func (s *Store) Session() *Session {
	return &Session{db: s.db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session implements domain.ActivityStore on top of a lazily opened transaction.
type Session struct {
	db       *sql.DB
	tx       *sql.Tx
	imported time.Time
}

var _ domain.ActivityStore = (*Session)(nil)

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// FindByExternalID returns nil, nil when the id is not stored.
func (s *Session) FindByExternalID(ctx context.Context, externalID int64) (*domain.Activity, error) {
	return getActivity(ctx, s.q(), externalID)
}

// Insert adds the activity to the pending batch.
func (s *Session) Insert(ctx context.Context, activity domain.Activity) error {
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		s.tx = tx
	}
	if activity.ImportedAt.IsZero() {
		activity.ImportedAt = time.Now().UTC()
	}

	_, err := s.tx.ExecContext(ctx, `INSERT INTO activities (`+activityColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		activity.ExternalID,
		activity.Name,
		activity.ActivityType,
		activity.DistanceMeters,
		activity.MovingTimeSeconds,
		activity.TotalElevationGainMeters,
		activity.StartedAt.UTC().UnixNano(),
		activity.EncodedPath,
		activity.AverageHeartRate,
		activity.ImportedAt.UTC().UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{ExternalID: activity.ExternalID, Err: err}
		}
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
	if err := tx.Commit(); err != nil {
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
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Get retrieves an activity by Strava id, nil when absent.
func (s *Store) Get(ctx context.Context, externalID int64) (*domain.Activity, error) {
	return getActivity(ctx, s.db, externalID)
}

// List returns activities newest first, continuing after cursor when given.
func (s *Store) List(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	query := `SELECT ` + activityColumns + ` FROM activities`
	args := []any{}
	if cursor != nil {
		query += ` WHERE (started_at, external_id) < (?, ?)`
		args = append(args, cursor.StartedAt.UTC().UnixNano(), cursor.ExternalID)
	}
	query += ` ORDER BY started_at DESC, external_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`).Scan(&n)
	return n, err
}

// SummaryByType aggregates stored activities per activity type.
func (s *Store) SummaryByType(ctx context.Context) ([]domain.TypeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT activity_type, COUNT(*), COALESCE(SUM(distance_meters), 0.0),
        COALESCE(SUM(moving_time_seconds), 0), COALESCE(SUM(total_elevation_gain_meters), 0.0)
        FROM activities GROUP BY activity_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TypeSummary
	for rows.Next() {
		var t domain.TypeSummary
		if err := rows.Scan(&t.ActivityType, &t.Count, &t.DistanceMeters, &t.MovingTimeSeconds, &t.TotalElevationGainMeters); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordRun stores the outcome of one sync run.
func (s *Store) RecordRun(ctx context.Context, run domain.SyncRun) error {
	var runErr any
	if run.Error != "" {
		runErr = run.Error
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_runs (run_id, mode, added, skipped, rejected, pages_fetched, stopped_page, stop_reason, error, started_at, finished_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Mode, run.Added, run.Skipped, run.Rejected, run.PagesFetched, run.StoppedPage, run.StopReason, runErr,
		run.StartedAt.UTC().UnixNano(), run.FinishedAt.UTC().UnixNano(),
	)
	if err != nil {
		return err
	}
	observability.RecordSyncRun(run.FinishedAt, run.Failed())
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, mode, added, skipped, rejected, pages_fetched, stopped_page, stop_reason, COALESCE(error, ''), started_at, finished_at
        FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var (
			run               domain.SyncRun
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &run.Mode, &run.Added, &run.Skipped, &run.Rejected, &run.PagesFetched, &run.StoppedPage, &run.StopReason, &run.Error, &started, &finished); err != nil {
			return nil, err
		}
		run.StartedAt = time.Unix(0, started).UTC()
		run.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getActivity(ctx context.Context, q querier, externalID int64) (*domain.Activity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE external_id = ?`, externalID)
	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

func scanActivity(row rowScanner) (*domain.Activity, error) {
	var (
		a                 domain.Activity
		started, imported int64
		path              sql.NullString
		heartRate         sql.NullFloat64
	)
	if err := row.Scan(&a.ExternalID, &a.Name, &a.ActivityType, &a.DistanceMeters, &a.MovingTimeSeconds, &a.TotalElevationGainMeters, &started, &path, &heartRate, &imported); err != nil {
		return nil, err
	}
	a.StartedAt = time.Unix(0, started).UTC()
	a.ImportedAt = time.Unix(0, imported).UTC()
	if path.Valid {
		a.EncodedPath = &path.String
	}
	if heartRate.Valid {
		a.AverageHeartRate = &heartRate.Float64
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
