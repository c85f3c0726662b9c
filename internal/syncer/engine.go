// Package syncer merges Strava activities into a local store.
//
// A run refreshes the access token once, then fetches pages in order and merges each page into the
// store before the next fetch. Every page is committed on its own so progress survives a failure
// later in the run. In recent mode the first already-stored activity ends the run; in full mode
// stored activities are skipped and left untouched. At most MaxPages pages are fetched per run.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"example.com/stravahub/internal/config"
	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/strava"
)

const (
	// MaxPages bounds a single run: 20 pages of 50 activities.
	MaxPages = 20
	// PageSize is the per_page value requested from Strava.
	PageSize = strava.DefaultPageSize
)

// Source is the remote side of a sync.
type Source interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	FetchActivitiesPage(ctx context.Context, accessToken string, page, perPage int) ([]strava.Activity, error)
}

// RunRecorder persists the outcome of a run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.SyncRun) error
}

// RefreshTokenFunc returns the refresh token to exchange at the start of a run.
type RefreshTokenFunc func() (string, error)

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRefreshToken overrides where the refresh token comes from.
func WithRefreshToken(fn RefreshTokenFunc) Option {
	return func(e *Engine) {
		e.refreshToken = fn
	}
}

// WithMaxPages lowers or raises the per-run page ceiling. Values below 1 are ignored.
func WithMaxPages(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPages = n
		}
	}
}

// WithPageSize overrides per_page. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithRunRecorder stores every run's Result.
func WithRunRecorder(recorder RunRecorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// Engine runs syncs against one Source. It keeps no state between runs.
type Engine struct {
	source       Source
	refreshToken RefreshTokenFunc
	recorder     RunRecorder
	maxPages     int
	pageSize     int
	logger       zerolog.Logger
	now          func() time.Time
}

// NewEngine constructs an Engine. The refresh token is read from the environment on every run unless
// WithRefreshToken is given.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:       source,
		refreshToken: envRefreshToken,
		maxPages:     MaxPages,
		pageSize:     PageSize,
		logger:       zerolog.Nop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func envRefreshToken() (string, error) {
	creds, err := config.StravaCredentials()
	if err != nil {
		return "", err
	}
	return creds.RefreshToken, nil
}

// Run performs one sync into store. The returned Result is always populated; the error is a
// *domain.AuthError, *domain.APIError, *domain.ConflictError (wrapped) or a transport/store failure.
func (e *Engine) Run(ctx context.Context, store domain.ActivityStore, mode Mode) (res Result, err error) {
	res = Result{Mode: mode, StartedAt: e.now()}
	logger := e.logger.With().Str("mode", string(mode)).Logger()

	defer func() {
		res.FinishedAt = e.now()
		recordRun(res)
		e.record(ctx, logger, res, err)

		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.
			Int("added", res.Added).
			Int("skipped", res.Skipped).
			Int("rejected", res.Rejected).
			Int("pages", res.PagesFetched).
			Int("stopped_page", res.StoppedPage).
			Str("stop_reason", string(res.StopReason)).
			Dur("duration", res.Duration()).
			Msg("sync finished")
	}()

	if mode != ModeRecent && mode != ModeFull {
		res.StopReason = StopInvalidMode
		return res, fmt.Errorf("unknown sync mode %q", mode)
	}

	token, err := e.authorize(ctx)
	if err != nil {
		res.StopReason = StopAuthFailed
		return res, err
	}

	for page := 1; page <= e.maxPages; page++ {
		res.StoppedPage = page

		if ctxErr := ctx.Err(); ctxErr != nil {
			res.StopReason = StopCanceled
			return res, ctxErr
		}

		raws, fetchErr := e.source.FetchActivitiesPage(ctx, token.AccessToken, page, e.pageSize)
		if fetchErr != nil {
			var apiErr *domain.APIError
			if errors.As(fetchErr, &apiErr) {
				res.StopReason = StopAPIError
			} else {
				res.StopReason = StopFetchFailed
			}
			return res, fetchErr
		}
		res.PagesFetched++
		pagesCounter.Inc()

		if len(raws) == 0 {
			res.StopReason = StopEmptyPage
			return res, nil
		}

		added, halted, mergeErr := e.mergePage(ctx, logger, store, mode, raws, &res)
		if mergeErr != nil {
			if discardErr := store.DiscardBatch(ctx); discardErr != nil {
				mergeErr = errors.Join(mergeErr, fmt.Errorf("discard page %d: %w", page, discardErr))
			}
			res.StopReason = StopStoreError
			return res, mergeErr
		}

		if commitErr := store.CommitBatch(ctx); commitErr != nil {
			res.StopReason = StopStoreError
			return res, fmt.Errorf("commit page %d: %w", page, commitErr)
		}
		res.Added += added
		logger.Debug().Int("page", page).Int("fetched", len(raws)).Int("added", added).Msg("page merged")

		if halted {
			res.StopReason = StopKnownActivity
			return res, nil
		}
	}

	res.StopReason = StopPageLimit
	return res, nil
}

func (e *Engine) authorize(ctx context.Context) (*oauth2.Token, error) {
	refreshToken, err := e.refreshToken()
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}

	token, err := e.source.RefreshToken(ctx, refreshToken)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, &domain.AuthError{Err: err}
	}
	if token == nil || token.AccessToken == "" {
		return nil, &domain.AuthError{Err: errors.New("response carried no access token")}
	}
	return token, nil
}

// mergePage walks raws in the order received. halted is true when recent mode met a stored activity;
// the remainder of the page is not looked at.
func (e *Engine) mergePage(ctx context.Context, logger zerolog.Logger, store domain.ActivityStore, mode Mode, raws []strava.Activity, res *Result) (int, bool, error) {
	added := 0
	for _, raw := range raws {
		if raw.ID == nil {
			e.reject(logger, res, &domain.ValidationError{Field: "id"})
			continue
		}
		id := *raw.ID

		existing, err := store.FindByExternalID(ctx, id)
		if err != nil {
			return added, false, fmt.Errorf("lookup activity %d: %w", id, err)
		}
		if existing != nil {
			if mode == ModeRecent {
				logger.Debug().Int64("external_id", id).Msg("reached stored activity")
				return added, true, nil
			}
			res.Skipped++
			continue
		}

		activity, err := toActivity(raw)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				e.reject(logger, res, verr)
				continue
			}
			return added, false, err
		}
		activity.ImportedAt = e.now()

		if err := store.Insert(ctx, activity); err != nil {
			return added, false, fmt.Errorf("insert activity %d: %w", id, err)
		}
		added++
	}
	return added, false, nil
}

func (e *Engine) reject(logger zerolog.Logger, res *Result, verr *domain.ValidationError) {
	res.Rejected++
	res.Rejections = append(res.Rejections, verr)
	logger.Warn().Err(verr).Int64("external_id", verr.ExternalID).Msg("skipping invalid activity")
}

func (e *Engine) record(ctx context.Context, logger zerolog.Logger, res Result, runErr error) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordRun(context.WithoutCancel(ctx), res.Run(runErr)); err != nil {
		logger.Error().Err(err).Msg("failed to record sync run")
	}
}
