// Package routes decodes the encoded summary polylines stored with activities.
package routes

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/twpayne/go-polyline"

	"example.com/stravahub/internal/domain"
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the bounding box of a set of points.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Route is one activity's decoded path.
type Route struct {
	ExternalID   int64     `json:"external_id"`
	Name         string    `json:"name"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
	Points       []Point   `json:"points"`
	Bounds       Bounds    `json:"bounds"`
}

// Decode returns the activity's route, or nil when it has none. Malformed input yields a
// *domain.DecodeError.
func Decode(activity domain.Activity) (*Route, error) {
	if activity.EncodedPath == nil || *activity.EncodedPath == "" {
		return nil, nil
	}

	coords, rest, err := polyline.DecodeCoords([]byte(*activity.EncodedPath))
	if err != nil {
		return nil, &domain.DecodeError{ExternalID: activity.ExternalID, Err: err}
	}
	if len(rest) != 0 {
		return nil, &domain.DecodeError{ExternalID: activity.ExternalID, Err: fmt.Errorf("%d trailing bytes", len(rest))}
	}
	if len(coords) == 0 {
		return nil, &domain.DecodeError{ExternalID: activity.ExternalID, Err: errors.New("no coordinates")}
	}

	points := make([]Point, 0, len(coords))
	for _, c := range coords {
		points = append(points, Point{Lat: c[0], Lng: c[1]})
	}

	return &Route{
		ExternalID:   activity.ExternalID,
		Name:         activity.Name,
		ActivityType: activity.ActivityType,
		StartedAt:    activity.StartedAt,
		Points:       points,
		Bounds:       boundsOf(points),
	}, nil
}

// Collect decodes every activity that has a path. Undecodable paths are logged and skipped.
func Collect(activities []domain.Activity, logger zerolog.Logger) []Route {
	out := make([]Route, 0, len(activities))
	for _, activity := range activities {
		route, err := Decode(activity)
		if err != nil {
			logger.Warn().Err(err).Int64("external_id", activity.ExternalID).Msg("skipping undecodable route")
			continue
		}
		if route != nil {
			out = append(out, *route)
		}
	}
	return out
}

// Union returns the box covering every route, and false when routes is empty.
func Union(routes []Route) (Bounds, bool) {
	if len(routes) == 0 {
		return Bounds{}, false
	}
	b := routes[0].Bounds
	for _, r := range routes[1:] {
		b.South = math.Min(b.South, r.Bounds.South)
		b.West = math.Min(b.West, r.Bounds.West)
		b.North = math.Max(b.North, r.Bounds.North)
		b.East = math.Max(b.East, r.Bounds.East)
	}
	return b, true
}

func boundsOf(points []Point) Bounds {
	b := Bounds{South: points[0].Lat, North: points[0].Lat, West: points[0].Lng, East: points[0].Lng}
	for _, p := range points[1:] {
		b.South = math.Min(b.South, p.Lat)
		b.North = math.Max(b.North, p.Lat)
		b.West = math.Min(b.West, p.Lng)
		b.East = math.Max(b.East, p.Lng)
	}
	return b
}
