package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravahub/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "activities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleActivity(id int64, startedAt time.Time) domain.Activity {
	return domain.Activity{
		ExternalID:        id,
		Name:              "Morning Run",
		ActivityType:      "Run",
		DistanceMeters:    5000,
		MovingTimeSeconds: 1500,
		StartedAt:         startedAt,
		ImportedAt:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSessionCommitMakesRowsVisible(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := store.Session()

	path := "_p~iF~ps|U_ulLnnqC"
	hr := 148.5
	activity := sampleActivity(42, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC))
	activity.EncodedPath = &path
	activity.AverageHeartRate = &hr
	require.NoError(t, session.Insert(ctx, activity))

	pending, err := session.FindByExternalID(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, pending)

	require.NoError(t, session.CommitBatch(ctx))

	stored, err := store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, activity.StartedAt, stored.StartedAt)
	require.Equal(t, activity.ImportedAt, stored.ImportedAt)
	require.Equal(t, path, *stored.EncodedPath)
	require.InDelta(t, hr, *stored.AverageHeartRate, 0.0001)
}

func TestFindByExternalIDMissing(t *testing.T) {
	store := openTestStore(t)

	found, err := store.Session().FindByExternalID(context.Background(), 404)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestDiscardBatchDropsPendingRows(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := store.Session()

	require.NoError(t, session.Insert(ctx, sampleActivity(1, time.Now().UTC())))
	require.NoError(t, session.DiscardBatch(ctx))
	require.NoError(t, session.DiscardBatch(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestInsertDuplicateReturnsConflict(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := store.Session()

	require.NoError(t, session.Insert(ctx, sampleActivity(5, time.Now().UTC())))
	require.NoError(t, session.CommitBatch(ctx))

	err := session.Insert(ctx, sampleActivity(5, time.Now().UTC()))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, int64(5), conflict.ExternalID)
	require.NoError(t, session.DiscardBatch(ctx))
}

func TestListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := store.Session()

	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, session.Insert(ctx, sampleActivity(i, base.Add(time.Duration(i)*time.Hour))))
	}
	// Same start time as id 3; the id breaks the tie.
	require.NoError(t, session.Insert(ctx, sampleActivity(30, base.Add(3*time.Hour))))
	require.NoError(t, session.CommitBatch(ctx))

	var seen []int64
	var cursor *domain.Cursor
	for {
		page, next, err := store.List(ctx, cursor, 2)
		require.NoError(t, err)
		for _, a := range page {
			seen = append(seen, a.ExternalID)
		}
		if next == nil {
			break
		}
		cursor = next
	}
	require.Equal(t, []int64{5, 4, 30, 3, 2, 1}, seen)
}

func TestSummaryByType(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	session := store.Session()

	run := sampleActivity(1, time.Now().UTC())
	ride := sampleActivity(2, time.Now().UTC())
	ride.ActivityType = "Ride"
	ride.DistanceMeters = 40000
	ride.TotalElevationGainMeters = 300
	secondRun := sampleActivity(3, time.Now().UTC())
	for _, a := range []domain.Activity{run, ride, secondRun} {
		require.NoError(t, session.Insert(ctx, a))
	}
	require.NoError(t, session.CommitBatch(ctx))

	summary, err := store.SummaryByType(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byType := map[string]domain.TypeSummary{}
	for _, s := range summary {
		byType[s.ActivityType] = s
	}
	require.Equal(t, 2, byType["Run"].Count)
	require.Equal(t, 10000.0, byType["Run"].DistanceMeters)
	require.Equal(t, int64(3000), byType["Run"].MovingTimeSeconds)
	require.Equal(t, 300.0, byType["Ride"].TotalElevationGainMeters)
}

func TestRecordAndListRuns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	started := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordRun(ctx, domain.SyncRun{
		ID: "older", Mode: "full", Added: 3, StopReason: "empty_page",
		StartedAt: started, FinishedAt: started.Add(time.Second),
	}))
	require.NoError(t, store.RecordRun(ctx, domain.SyncRun{
		ID: "newer", Mode: "recent", StopReason: "api_error", Error: "strava api error on page 1 (status 401)",
		StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Second),
	}))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "newer", runs[0].ID)
	require.True(t, runs[0].Failed())
	require.Equal(t, "older", runs[1].ID)
	require.False(t, runs[1].Failed())
	require.Equal(t, started, runs[1].StartedAt)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activities.db")

	first, err := Open(path)
	require.NoError(t, err)
	session := first.Session()
	require.NoError(t, session.Insert(context.Background(), sampleActivity(1, time.Now().UTC())))
	require.NoError(t, session.CommitBatch(context.Background()))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	count, err := second.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
