package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db  bun.IDB
	now func() time.Time
}

// NewStore creates a new postgres implementation of the cursor store
func NewStore(db bun.IDB) *pgStore {
	return &pgStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *pgStore) Get(ctx context.Context, sourceID string) (*Cursor, error) {
	dao := new(CursorDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("source_id = ?", sourceID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCursorNotFound
		}
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return toCursor(dao), nil
}

func (s *pgStore) Ensure(ctx context.Context, sourceID string, initialWatermark int64) (*Cursor, error) {
	dao := &CursorDao{
		SourceID:      sourceID,
		LastWatermark: initialWatermark,
		LastRunStatus: string(StatusIdle),
	}
	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (source_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure cursor: %w", err)
	}
	return s.Get(ctx, sourceID)
}

func (s *pgStore) Claim(ctx context.Context, sourceID, runID string, staleAfter time.Duration) (*Cursor, error) {
	now := s.now()
	dao := new(CursorDao)
	err := s.db.NewUpdate().
		Model(dao).
		Set("last_run_status = ?", StatusInProgress).
		Set("run_id = ?", runID).
		Set("run_started_at = ?", now).
		Set("updated_at = ?", now).
		Where("source_id = ?", sourceID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("last_run_status <> ?", StatusInProgress).
				WhereOr("run_started_at IS NULL").
				WhereOr("run_started_at < ?", now.Add(-staleAfter))
		}).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return toCursor(dao), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim cursor: %w", err)
	}

	if _, err := s.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	return nil, ErrRunInProgress
}

func (s *pgStore) Complete(ctx context.Context, sourceID string, res Result) (*Cursor, error) {
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}

	dao := new(CursorDao)
	q := s.db.NewUpdate().
		Model(dao).
		Set("last_run_status = ?", res.Status).
		Set("last_run_at = ?", finished).
		Set("records_added_last_run = ?", res.RecordsAdded).
		Set("error_message = ?", nullString(res.ErrorMessage)).
		Set("run_started_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("source_id = ?", sourceID).
		Where("run_id = ?", res.RunID)
	if res.AdvanceWatermark {
		q = q.Set("last_watermark = GREATEST(last_watermark, ?)", res.Watermark)
	}

	err := q.Returning("*").Scan(ctx)
	if err == nil {
		return toCursor(dao), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to complete cursor: %w", err)
	}
	if _, err := s.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	return nil, ErrRunSuperseded
}

func (s *pgStore) Reset(ctx context.Context, sourceID string, watermark int64) (*Cursor, error) {
	dao := &CursorDao{
		SourceID:      sourceID,
		LastWatermark: watermark,
		LastRunStatus: string(StatusIdle),
		UpdatedAt:     s.now(),
	}
	err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (source_id) DO UPDATE").
		Set("last_watermark = EXCLUDED.last_watermark").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reset cursor: %w", err)
	}
	return toCursor(dao), nil
}

func (s *pgStore) List(ctx context.Context) ([]*Cursor, error) {
	var daos []CursorDao
	err := s.db.NewSelect().
		Model(&daos).
		Order("source_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	cursors := make([]*Cursor, len(daos))
	for i := range daos {
		cursors[i] = toCursor(&daos[i])
	}
	return cursors, nil
}
