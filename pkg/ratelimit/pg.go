package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// PGStore keeps counters in postgres so all instances share one quota.
type PGStore struct {
	db *bun.DB
}

// NewPGStore creates a new postgres implementation of the counter store
func NewPGStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

// Consume locks both counter rows for the identity, compares and increments them in one transaction.
func (s *PGStore) Consume(ctx context.Context, identity string, hour, day Window) (*Usage, error) {
	var usage *Usage
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// day sorts before hour; insert and lock in the same order everywhere
		rows := []*WindowCounterDao{
			{Identity: identity, WindowStart: day.Start, WindowKind: string(WindowDay)},
			{Identity: identity, WindowStart: hour.Start, WindowKind: string(WindowHour)},
		}
		if _, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (identity, window_start, window_kind) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to ensure counters: %w", err)
		}

		var locked []WindowCounterDao
		err := tx.NewSelect().
			Model(&locked).
			Where("identity = ?", identity).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.
					WhereOr("window_kind = ? AND window_start = ?", string(WindowDay), day.Start).
					WhereOr("window_kind = ? AND window_start = ?", string(WindowHour), hour.Start)
			}).
			Order("window_kind ASC").
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to lock counters: %w", err)
		}

		var hourCount, dayCount int
		for _, row := range locked {
			switch WindowKind(row.WindowKind) {
			case WindowHour:
				hourCount = row.Count
			case WindowDay:
				dayCount = row.Count
			}
		}

		if kind, ok := check(hourCount, dayCount, hour, day); !ok {
			usage = &Usage{HourCount: hourCount, DayCount: dayCount, Exceeded: kind}
			return nil
		}

		_, err = tx.NewUpdate().
			Model((*WindowCounterDao)(nil)).
			Set("count = count + 1").
			Set("updated_at = current_timestamp").
			Where("identity = ?", identity).
			WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.
					WhereOr("window_kind = ? AND window_start = ?", string(WindowDay), day.Start).
					WhereOr("window_kind = ? AND window_start = ?", string(WindowHour), hour.Start)
			}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment counters: %w", err)
		}

		usage = &Usage{Allowed: true, HourCount: hourCount + 1, DayCount: dayCount + 1}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume quota for %s: %w", identity, err)
	}
	return usage, nil
}

// Sweep deletes counters of past windows.
func (s *PGStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*WindowCounterDao)(nil)).
		WhereOr("window_kind = ? AND window_start < ?", string(WindowHour), HourStart(now)).
		WhereOr("window_kind = ? AND window_start < ?", string(WindowDay), DayStart(now)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate counters: %w", err)
	}
	return int(n), nil
}
