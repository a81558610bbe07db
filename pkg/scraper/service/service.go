// Package service exposes manual trigger, status and reset operations over the ingestion scheduler.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
)

// Runner is the part of scheduler.Runner the service depends on.
type Runner interface {
	RunOnce(ctx context.Context) ([]scheduler.SourceResult, error)
}

// PassResult is one source's result of a full runner pass.
type PassResult struct {
	Source  string                `json:"source"`
	Outcome *scheduler.RunOutcome `json:"outcome,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Service defines the scraper administration operations
type Service interface {
	RunIncremental(ctx context.Context, sourceID string, lookback *int) (*scheduler.RunOutcome, error)
	RunAll(ctx context.Context) ([]PassResult, error)
	Status(ctx context.Context, sourceID string) (*cursor.Cursor, error)
	StatusAll(ctx context.Context) ([]*cursor.Cursor, error)
	ResetState(ctx context.Context, sourceID string, window int64) (*cursor.Cursor, error)
}

type scraperService struct {
	scheduler       scheduler.Incremental
	runner          Runner
	cursors         cursor.Store
	sources         []config.SourceConfig
	defaultLookback int
	logger          *zap.Logger
}

// NewService creates a new scraper service
func NewService(
	sched scheduler.Incremental,
	runner Runner,
	cursors cursor.Store,
	sources []config.SourceConfig,
	defaultLookback int,
	logger *zap.Logger,
) Service {
	return &scraperService{
		scheduler:       sched,
		runner:          runner,
		cursors:         cursors,
		sources:         sources,
		defaultLookback: defaultLookback,
		logger:          logger,
	}
}

func (s *scraperService) source(id string) (config.SourceConfig, error) {
	for _, src := range s.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return config.SourceConfig{}, apperrors.ResourceNotFoundError(nil, fmt.Sprintf("unknown source %q", id))
}

// RunIncremental runs one source synchronously. A nil lookback uses the configured default.
func (s *scraperService) RunIncremental(ctx context.Context, sourceID string, lookback *int) (*scheduler.RunOutcome, error) {
	if _, err := s.source(sourceID); err != nil {
		return nil, err
	}
	lb := s.defaultLookback
	if lookback != nil {
		lb = *lookback
	}
	if lb < 0 {
		return nil, apperrors.BadRequestError(scheduler.ErrInvalidLookback, "lookback must not be negative")
	}

	out, err := s.scheduler.RunIncremental(ctx, sourceID, lb)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, cursor.ErrRunInProgress):
		return nil, apperrors.ConflictError(err, fmt.Sprintf("a run for %s is already in progress", sourceID))
	case errors.Is(err, cursor.ErrRunSuperseded):
		return nil, apperrors.ConflictError(err, fmt.Sprintf("run for %s was superseded", sourceID))
	default:
		return nil, apperrors.GeneralError(err)
	}
}

// RunAll triggers a full runner pass over all active sources.
func (s *scraperService) RunAll(ctx context.Context) ([]PassResult, error) {
	results, err := s.runner.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			return nil, apperrors.ConflictError(err, "a runner pass is already in progress")
		}
		return nil, apperrors.GeneralError(err)
	}

	out := make([]PassResult, len(results))
	for i, res := range results {
		out[i] = PassResult{Source: res.Source, Outcome: res.Outcome}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	return out, nil
}

// Status returns the cursor of a configured source. Sources that never ran report an idle cursor.
func (s *scraperService) Status(ctx context.Context, sourceID string) (*cursor.Cursor, error) {
	src, err := s.source(sourceID)
	if err != nil {
		return nil, err
	}

	c, err := s.cursors.Get(ctx, sourceID)
	if errors.Is(err, cursor.ErrCursorNotFound) {
		return idleCursor(src), nil
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return c, nil
}

// StatusAll returns one cursor per configured source, ordered as configured.
func (s *scraperService) StatusAll(ctx context.Context) ([]*cursor.Cursor, error) {
	stored, err := s.cursors.List(ctx)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	byID := make(map[string]*cursor.Cursor, len(stored))
	for _, c := range stored {
		byID[c.SourceID] = c
	}

	out := make([]*cursor.Cursor, 0, len(s.sources))
	for _, src := range s.sources {
		if c, ok := byID[src.ID]; ok {
			out = append(out, c)
			continue
		}
		out = append(out, idleCursor(src))
	}
	return out, nil
}

// ResetState overwrites the watermark, bypassing monotonicity.
func (s *scraperService) ResetState(ctx context.Context, sourceID string, window int64) (*cursor.Cursor, error) {
	if _, err := s.source(sourceID); err != nil {
		return nil, err
	}
	if window < 0 {
		return nil, apperrors.BadRequestError(nil, "window must not be negative")
	}

	c, err := s.cursors.Reset(ctx, sourceID, window)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return c, nil
}

func idleCursor(src config.SourceConfig) *cursor.Cursor {
	return &cursor.Cursor{
		SourceID:      src.ID,
		LastWatermark: int64(src.InitialWindow),
		LastRunStatus: cursor.StatusIdle,
	}
}
