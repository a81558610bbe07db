package ingest

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the record store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetOrCreateSubResource(ctx context.Context, sourceID, name string) (*SubResource, bool, error) {
	var (
		dao      SubResourceDao
		inserted bool
	)
	// The no-op update makes RETURNING yield the existing row on conflict; xmax = 0 only for
	// a freshly inserted tuple.
	err := s.db.NewRaw(`
		INSERT INTO sub_resources (source_id, name) VALUES (?, ?)
		ON CONFLICT (source_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, source_id, name, created_at, (xmax = 0) AS inserted`,
		sourceID, name,
	).Scan(ctx, &dao.ID, &dao.SourceID, &dao.Name, &dao.CreatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create sub-resource %s/%s: %w", sourceID, name, err)
	}
	return toSubResource(&dao), inserted, nil
}

func (s *pgStore) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	var found []string
	err := s.db.NewSelect().
		Model((*RecordDao)(nil)).
		Column("external_id").
		Where("external_id IN (?)", bun.In(ids)).
		Scan(ctx, &found)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing external ids: %w", err)
	}
	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

func (s *pgStore) InsertRecords(ctx context.Context, records []*Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	daos := make([]*RecordDao, len(records))
	for i, rec := range records {
		daos[i] = toRecordDao(rec)
	}

	var inserted int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewInsert().
			Model(&daos).
			On("CONFLICT (external_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		inserted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert records: %w", err)
	}
	return int(inserted), nil
}

func (s *pgStore) ListRecords(ctx context.Context, filter ListFilter) ([]*Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var daos []RecordDao
	q := s.db.NewSelect().
		Model(&daos).
		Relation("SubResource").
		Order("r.id ASC").
		Limit(limit)
	if filter.SourceID != "" {
		q = q.Where("r.source_id = ?", filter.SourceID)
	}
	if filter.Window != nil {
		q = q.Where("r.sol = ?", *filter.Window)
	}
	if filter.AfterID > 0 {
		q = q.Where("r.id > ?", filter.AfterID)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	records := make([]*Record, len(daos))
	for i := range daos {
		records[i] = toRecord(&daos[i])
	}
	return records, nil
}

func (s *pgStore) CountRecords(ctx context.Context, sourceID string) (int, error) {
	q := s.db.NewSelect().Model((*RecordDao)(nil))
	if sourceID != "" {
		q = q.Where("source_id = ?", sourceID)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
