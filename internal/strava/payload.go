package strava

// Activity is the summary activity object returned by GET /athlete/activities. Only the fields the
// sync maps are declared; pointers mark fields whose absence is meaningful.
type Activity struct {
	ID                 *int64   `json:"id"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	Distance           float64  `json:"distance"`
	MovingTime         int      `json:"moving_time"`
	TotalElevationGain *float64 `json:"total_elevation_gain"`
	StartDate          string   `json:"start_date"`
	Map                *Map     `json:"map"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
}

// Map carries the route of an activity.
type Map struct {
	SummaryPolyline *string `json:"summary_polyline"`
}

// fault is the error object Strava returns instead of a list.
type fault struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
	} `json:"errors"`
}
