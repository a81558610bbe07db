package ingest

import (
	"context"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	GetOrCreateSubResourceFunc func(ctx context.Context, sourceID, name string) (*SubResource, bool, error)
	ExistingExternalIDsFunc    func(ctx context.Context, ids []string) (map[string]struct{}, error)
	InsertRecordsFunc          func(ctx context.Context, records []*Record) (int, error)
	ListRecordsFunc            func(ctx context.Context, filter ListFilter) ([]*Record, error)
	CountRecordsFunc           func(ctx context.Context, sourceID string) (int, error)
}

func (m *MockStore) GetOrCreateSubResource(ctx context.Context, sourceID, name string) (*SubResource, bool, error) {
	if m.GetOrCreateSubResourceFunc != nil {
		return m.GetOrCreateSubResourceFunc(ctx, sourceID, name)
	}
	return &SubResource{SourceID: sourceID, Name: name}, false, nil
}

func (m *MockStore) ExistingExternalIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if m.ExistingExternalIDsFunc != nil {
		return m.ExistingExternalIDsFunc(ctx, ids)
	}
	return map[string]struct{}{}, nil
}

func (m *MockStore) InsertRecords(ctx context.Context, records []*Record) (int, error) {
	if m.InsertRecordsFunc != nil {
		return m.InsertRecordsFunc(ctx, records)
	}
	return len(records), nil
}

func (m *MockStore) ListRecords(ctx context.Context, filter ListFilter) ([]*Record, error) {
	if m.ListRecordsFunc != nil {
		return m.ListRecordsFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockStore) CountRecords(ctx context.Context, sourceID string) (int, error) {
	if m.CountRecordsFunc != nil {
		return m.CountRecordsFunc(ctx, sourceID)
	}
	return 0, nil
}
