// Package cursor persists per-source ingestion progress.
package cursor

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome of the most recent run for a source.
type Status string

const (
	// StatusIdle means the source has never been run.
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

var (
	// ErrCursorNotFound is returned when no cursor row exists for a source.
	ErrCursorNotFound = errors.New("cursor not found")
	// ErrRunInProgress is returned by Claim when another live run holds the source.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrRunSuperseded is returned by Complete when the claim was taken over by a newer run.
	ErrRunSuperseded = errors.New("run claim superseded")
)

// Cursor is the persisted progress marker for one source.
type Cursor struct {
	SourceID            string     `json:"sourceId"`
	LastWatermark       int64      `json:"lastWatermark"`
	LastRunAt           *time.Time `json:"lastRunAt,omitempty"`
	LastRunStatus       Status     `json:"lastRunStatus"`
	RecordsAddedLastRun int        `json:"recordsAddedLastRun"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	RunID               string     `json:"runId,omitempty"`
	RunStartedAt        *time.Time `json:"runStartedAt,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Result is what a finished run writes back.
type Result struct {
	RunID  string
	Status Status
	// Watermark is applied only when AdvanceWatermark is set, and never lowers the stored value.
	Watermark        int64
	AdvanceWatermark bool
	RecordsAdded     int
	ErrorMessage     string
	FinishedAt       time.Time
}

// Store defines cursor persistence.
//
// Only the scheduler writes cursors through Claim and Complete; Reset is the
// administrative override and the only path that may lower a watermark.
type Store interface {
	Get(ctx context.Context, sourceID string) (*Cursor, error)
	// Ensure creates the cursor with initialWatermark if it does not exist yet.
	Ensure(ctx context.Context, sourceID string, initialWatermark int64) (*Cursor, error)
	// Claim moves the cursor to in_progress unless a run younger than staleAfter holds it.
	Claim(ctx context.Context, sourceID, runID string, staleAfter time.Duration) (*Cursor, error)
	Complete(ctx context.Context, sourceID string, res Result) (*Cursor, error)
	Reset(ctx context.Context, sourceID string, watermark int64) (*Cursor, error)
	List(ctx context.Context) ([]*Cursor, error)
}
