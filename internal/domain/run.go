package domain

import (
	"context"
	"time"
)

// SyncRun is the persisted outcome of one sync invocation.
type SyncRun struct {
	ID           string
	Mode         string
	Added        int
	Skipped      int
	Rejected     int
	PagesFetched int
	StoppedPage  int
	StopReason   string
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Failed reports whether the run ended with an error.
func (r SyncRun) Failed() bool { return r.Error != "" }

// RunLog stores and lists sync runs, newest first.
type RunLog interface {
	RecordRun(ctx context.Context, run SyncRun) error
	ListRuns(ctx context.Context, limit int) ([]SyncRun, error)
}
