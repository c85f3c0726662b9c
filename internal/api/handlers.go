// Package api exposes the HTTP surface: the sync trigger and read endpoints over stored activities.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"example.com/stravahub/internal/auth"
	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/persistence"
	"example.com/stravahub/internal/routes"
	"example.com/stravahub/internal/syncer"
)

const (
	defaultRunsLimit   = 20
	defaultRoutesLimit = 50
	maxRoutesLimit     = 200
)

// Syncer runs one sync into the given store. *syncer.Engine implements it.
type Syncer interface {
	Run(ctx context.Context, store domain.ActivityStore, mode syncer.Mode) (syncer.Result, error)
}

// SessionFunc opens a fresh store session for one sync run.
type SessionFunc func() domain.ActivityStore

// Handler coordinates HTTP requests with the read service and the sync engine.
type Handler struct {
	service  *domain.Service
	syncer   Syncer
	sessions SessionFunc
	runs     domain.RunLog
	logger   zerolog.Logger
}

// NewHandler builds a Handler. runs may be nil, in which case /v1/sync/runs answers 404.
func NewHandler(service *domain.Service, s Syncer, sessions SessionFunc, runs domain.RunLog, logger zerolog.Logger) *Handler {
	return &Handler{service: service, syncer: s, sessions: sessions, runs: runs, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/sync/runs", h.listRuns)
	mux.HandleFunc("/v1/activities", h.listActivities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/activities/summary", h.summary)
	mux.HandleFunc("/v1/activities/routes", h.routes)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesSync) {
		return
	}

	mode, err := syncer.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	res, err := h.syncer.Run(r.Context(), h.sessions(), mode)
	if err != nil {
		h.writeSyncError(w, res, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(res, "success"))
}

func (h *Handler) writeSyncError(w http.ResponseWriter, res syncer.Result, err error) {
	body := map[string]any{
		"type":   "server_error",
		"detail": err.Error(),
		"result": toSyncResponse(res, "failed"),
	}
	status := http.StatusInternalServerError

	var (
		authErr     *domain.AuthError
		apiErr      *domain.APIError
		conflictErr *domain.ConflictError
	)
	switch {
	case errors.As(err, &authErr):
		status = http.StatusBadGateway
		body["type"] = "strava_auth_failed"
		body["details"] = rawPayload(authErr.Payload)
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		body["type"] = "strava_api_error"
		body["strava_response"] = rawPayload(apiErr.Payload)
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
		body["type"] = "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
		body["type"] = "canceled"
	}

	h.logger.Error().Err(err).Int("status", status).Str("stop_reason", string(res.StopReason)).Msg("sync request failed")
	writeJSON(w, status, body)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}

	limit, ok := parseLimit(w, r, 0)
	if !ok {
		return
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "activity id must be an integer")
		return
	}

	activity, err := h.service.GetActivity(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}

	summary, err := h.service.Summarize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := SummaryResponse{
		Total:                    summary.Total,
		DistanceMeters:           summary.DistanceMeters,
		MovingTimeSeconds:        summary.MovingTimeSeconds,
		TotalElevationGainMeters: summary.TotalElevationGainMeters,
		ByType:                   make([]TypeSummaryView, 0, len(summary.ByType)),
	}
	for _, t := range summary.ByType {
		resp.ByType = append(resp.ByType, TypeSummaryView{
			ActivityType:             t.ActivityType,
			Count:                    t.Count,
			DistanceMeters:           t.DistanceMeters,
			MovingTimeSeconds:        t.MovingTimeSeconds,
			TotalElevationGainMeters: t.TotalElevationGainMeters,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) routes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}

	limit, ok := parseLimit(w, r, defaultRoutesLimit)
	if !ok {
		return
	}
	if limit > maxRoutesLimit {
		limit = maxRoutesLimit
	}

	activities, _, err := h.service.ListActivities(r.Context(), nil, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	decoded := routes.Collect(activities, h.logger)
	resp := RoutesResponse{Routes: decoded}
	if bounds, ok := routes.Union(decoded); ok {
		resp.Bounds = &bounds
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeActivitiesRead) {
		return
	}
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "not_found", "run history is not recorded")
		return
	}

	limit, ok := parseLimit(w, r, defaultRunsLimit)
	if !ok {
		return
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]SyncRunView, 0, len(runs))
	for _, run := range runs {
		items = append(items, SyncRunView{
			RunID:        run.ID,
			Mode:         run.Mode,
			Added:        run.Added,
			Skipped:      run.Skipped,
			Rejected:     run.Rejected,
			PagesFetched: run.PagesFetched,
			StoppedPage:  run.StoppedPage,
			StopReason:   run.StopReason,
			Error:        run.Error,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Items: items})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	return true
}

// parseLimit reads ?limit=; fallback applies when it is absent.
func parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
		return 0, false
	}
	return parsed, true
}

// rawPayload embeds JSON payloads as-is and anything else as a string.
func rawPayload(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	if json.Valid(payload) {
		return json.RawMessage(payload)
	}
	return string(payload)
}

// SyncResponse is the body of POST /v1/sync.
type SyncResponse struct {
	Status        string `json:"status"`
	Mode          string `json:"mode"`
	AddedCount    int    `json:"added_count"`
	Skipped       int    `json:"skipped"`
	Rejected      int    `json:"rejected"`
	PagesFetched  int    `json:"pages_fetched"`
	StoppedPage   int    `json:"stopped_page"`
	StoppedReason string `json:"stopped_reason"`
	DurationMS    int64  `json:"duration_ms"`
}

func toSyncResponse(res syncer.Result, status string) SyncResponse {
	return SyncResponse{
		Status:        status,
		Mode:          string(res.Mode),
		AddedCount:    res.Added,
		Skipped:       res.Skipped,
		Rejected:      res.Rejected,
		PagesFetched:  res.PagesFetched,
		StoppedPage:   res.StoppedPage,
		StoppedReason: string(res.StopReason),
		DurationMS:    res.Duration().Milliseconds(),
	}
}

// ActivityView exposes a stored activity.
type ActivityView struct {
	ExternalID               int64     `json:"external_id"`
	Name                     string    `json:"name"`
	ActivityType             string    `json:"activity_type"`
	DistanceMeters           float64   `json:"distance_meters"`
	MovingTimeSeconds        int       `json:"moving_time_seconds"`
	TotalElevationGainMeters float64   `json:"total_elevation_gain_meters"`
	StartedAt                time.Time `json:"started_at"`
	SummaryPolyline          *string   `json:"summary_polyline,omitempty"`
	AverageHeartRate         *float64  `json:"average_heartrate,omitempty"`
	ImportedAt               time.Time `json:"imported_at"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ExternalID:               a.ExternalID,
		Name:                     a.Name,
		ActivityType:             a.ActivityType,
		DistanceMeters:           a.DistanceMeters,
		MovingTimeSeconds:        a.MovingTimeSeconds,
		TotalElevationGainMeters: a.TotalElevationGainMeters,
		StartedAt:                a.StartedAt,
		SummaryPolyline:          a.EncodedPath,
		AverageHeartRate:         a.AverageHeartRate,
		ImportedAt:               a.ImportedAt,
	}
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// TypeSummaryView is one row of the per-type breakdown.
type TypeSummaryView struct {
	ActivityType             string  `json:"activity_type"`
	Count                    int     `json:"count"`
	DistanceMeters           float64 `json:"distance_meters"`
	MovingTimeSeconds        int64   `json:"moving_time_seconds"`
	TotalElevationGainMeters float64 `json:"total_elevation_gain_meters"`
}

// SummaryResponse totals all stored activities.
type SummaryResponse struct {
	Total                    int               `json:"total"`
	DistanceMeters           float64           `json:"distance_meters"`
	MovingTimeSeconds        int64             `json:"moving_time_seconds"`
	TotalElevationGainMeters float64           `json:"total_elevation_gain_meters"`
	ByType                   []TypeSummaryView `json:"by_type"`
}

// RoutesResponse carries decoded routes for a map view.
type RoutesResponse struct {
	Routes []routes.Route `json:"routes"`
	Bounds *routes.Bounds `json:"bounds,omitempty"`
}

// SyncRunView exposes one recorded run.
type SyncRunView struct {
	RunID        string    `json:"run_id"`
	Mode         string    `json:"mode"`
	Added        int       `json:"added"`
	Skipped      int       `json:"skipped"`
	Rejected     int       `json:"rejected"`
	PagesFetched int       `json:"pages_fetched"`
	StoppedPage  int       `json:"stopped_page"`
	StopReason   string    `json:"stop_reason"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ListRunsResponse packages run history.
type ListRunsResponse struct {
	Items []SyncRunView `json:"items"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
