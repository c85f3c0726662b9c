// Package domain defines the activity model, store contracts and read-side logic.
package domain

import (
	"context"
	"sort"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Service answers read queries over synced activities.
type Service struct {
	repo ActivityReader
}

// NewService constructs a Service.
func NewService(repo ActivityReader) *Service {
	return &Service{repo: repo}
}

// Summary is the overview shown on the landing page.
type Summary struct {
	Total                    int
	DistanceMeters           float64
	MovingTimeSeconds        int64
	TotalElevationGainMeters float64
	ByType                   []TypeSummary
}

// GetActivity fetches by Strava id.
func (s *Service) GetActivity(ctx context.Context, externalID int64) (*Activity, error) {
	activity, err := s.repo.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// ListActivities returns activities newest first with cursor pagination.
func (s *Service) ListActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.List(ctx, cursor, limit)
}

// Summarize totals activities overall and per type, largest distance first.
func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	byType, err := s.repo.SummaryByType(ctx)
	if err != nil {
		return Summary{}, err
	}

	sort.SliceStable(byType, func(i, j int) bool {
		if byType[i].DistanceMeters == byType[j].DistanceMeters {
			return byType[i].ActivityType < byType[j].ActivityType
		}
		return byType[i].DistanceMeters > byType[j].DistanceMeters
	})

	summary := Summary{Total: total, ByType: byType}
	for _, t := range byType {
		summary.DistanceMeters += t.DistanceMeters
		summary.MovingTimeSeconds += t.MovingTimeSeconds
		summary.TotalElevationGainMeters += t.TotalElevationGainMeters
	}
	return summary, nil
}
