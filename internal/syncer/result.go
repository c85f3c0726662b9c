package syncer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/stravahub/internal/domain"
)

// Mode selects how the merge reacts to an already-stored activity.
type Mode string

const (
	// ModeRecent halts at the first known activity, relying on newest-first ordering.
	ModeRecent Mode = "recent"
	// ModeFull walks every page, skipping known activities without overwriting them.
	ModeFull Mode = "full"
)

// ParseMode accepts "recent" (also the empty string) and "full".
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "", ModeRecent:
		return ModeRecent, nil
	case ModeFull:
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q (want %q or %q)", value, ModeRecent, ModeFull)
	}
}

// StopReason records why a run ended.
type StopReason string

const (
	StopAuthFailed    StopReason = "auth_failed"
	StopEmptyPage     StopReason = "empty_page"
	StopKnownActivity StopReason = "known_activity"
	StopAPIError      StopReason = "api_error"
	StopFetchFailed   StopReason = "fetch_failed"
	StopStoreError    StopReason = "store_error"
	StopPageLimit     StopReason = "page_limit"
	StopCanceled      StopReason = "canceled"
	StopInvalidMode   StopReason = "invalid_mode"
)

// Result is the terminal outcome of one run. It is filled in even when Run returns an error.
type Result struct {
	Mode         Mode
	Added        int
	Skipped      int
	Rejected     int
	PagesFetched int
	StoppedPage  int
	StopReason   StopReason
	StartedAt    time.Time
	FinishedAt   time.Time
	Rejections   []*domain.ValidationError
}

// Duration is the wall time of the run.
func (r Result) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run converts the result into the record kept in the run log.
func (r Result) Run(runErr error) domain.SyncRun {
	run := domain.SyncRun{
		ID:           uuid.NewString(),
		Mode:         string(r.Mode),
		Added:        r.Added,
		Skipped:      r.Skipped,
		Rejected:     r.Rejected,
		PagesFetched: r.PagesFetched,
		StoppedPage:  r.StoppedPage,
		StopReason:   string(r.StopReason),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run
}
