package syncer

import (
	"strconv"
	"time"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/strava"
)

// startDateLayout is the only accepted start_date format.
const startDateLayout = "2006-01-02T15:04:05Z"

// toActivity maps one raw payload into an Activity. Missing ids, unparseable start dates and
// negative distances or moving times are returned as *domain.ValidationError.
func toActivity(raw strava.Activity) (domain.Activity, error) {
	if raw.ID == nil {
		return domain.Activity{}, &domain.ValidationError{Field: "id"}
	}
	id := *raw.ID

	startedAt, err := time.Parse(startDateLayout, raw.StartDate)
	if err != nil {
		return domain.Activity{}, &domain.ValidationError{ExternalID: id, Field: "start_date", Value: raw.StartDate, Err: err}
	}

	if raw.Distance < 0 {
		return domain.Activity{}, &domain.ValidationError{ExternalID: id, Field: "distance", Value: strconv.FormatFloat(raw.Distance, 'f', -1, 64)}
	}
	if raw.MovingTime < 0 {
		return domain.Activity{}, &domain.ValidationError{ExternalID: id, Field: "moving_time", Value: strconv.Itoa(raw.MovingTime)}
	}

	activity := domain.Activity{
		ExternalID:        id,
		Name:              raw.Name,
		ActivityType:      raw.Type,
		DistanceMeters:    raw.Distance,
		MovingTimeSeconds: raw.MovingTime,
		StartedAt:         startedAt.UTC(),
		AverageHeartRate:  raw.AverageHeartrate,
	}
	if raw.TotalElevationGain != nil {
		activity.TotalElevationGainMeters = *raw.TotalElevationGain
	}
	if raw.Map != nil && raw.Map.SummaryPolyline != nil && *raw.Map.SummaryPolyline != "" {
		path := *raw.Map.SummaryPolyline
		activity.EncodedPath = &path
	}
	return activity, nil
}
