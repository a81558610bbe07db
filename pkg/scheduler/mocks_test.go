package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/record"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/upstream"
)

// memCursors is an in-memory cursor.Store with the same claim semantics as the pg store.
type memCursors struct {
	mu   sync.Mutex
	rows map[string]*cursor.Cursor
}

func newMemCursors() *memCursors {
	return &memCursors{rows: map[string]*cursor.Cursor{}}
}

func (m *memCursors) Get(_ context.Context, sourceID string) (*cursor.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[sourceID]
	if !ok {
		return nil, cursor.ErrCursorNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCursors) Ensure(ctx context.Context, sourceID string, initial int64) (*cursor.Cursor, error) {
	m.mu.Lock()
	if _, ok := m.rows[sourceID]; !ok {
		m.rows[sourceID] = &cursor.Cursor{SourceID: sourceID, LastWatermark: initial, LastRunStatus: cursor.StatusIdle}
	}
	m.mu.Unlock()
	return m.Get(ctx, sourceID)
}

func (m *memCursors) Claim(ctx context.Context, sourceID, runID string, _ time.Duration) (*cursor.Cursor, error) {
	m.mu.Lock()
	c, ok := m.rows[sourceID]
	if !ok {
		m.mu.Unlock()
		return nil, cursor.ErrCursorNotFound
	}
	if c.LastRunStatus == cursor.StatusInProgress {
		m.mu.Unlock()
		return nil, cursor.ErrRunInProgress
	}
	now := time.Now()
	c.LastRunStatus = cursor.StatusInProgress
	c.RunID = runID
	c.RunStartedAt = &now
	m.mu.Unlock()
	return m.Get(ctx, sourceID)
}

func (m *memCursors) Complete(ctx context.Context, sourceID string, res cursor.Result) (*cursor.Cursor, error) {
	m.mu.Lock()
	c, ok := m.rows[sourceID]
	if !ok {
		m.mu.Unlock()
		return nil, cursor.ErrCursorNotFound
	}
	if c.RunID != res.RunID {
		m.mu.Unlock()
		return nil, cursor.ErrRunSuperseded
	}
	if res.AdvanceWatermark && res.Watermark > c.LastWatermark {
		c.LastWatermark = res.Watermark
	}
	finished := res.FinishedAt
	c.LastRunAt = &finished
	c.LastRunStatus = res.Status
	c.RecordsAddedLastRun = res.RecordsAdded
	c.ErrorMessage = res.ErrorMessage
	c.RunStartedAt = nil
	m.mu.Unlock()
	return m.Get(ctx, sourceID)
}

func (m *memCursors) Reset(ctx context.Context, sourceID string, watermark int64) (*cursor.Cursor, error) {
	m.mu.Lock()
	c, ok := m.rows[sourceID]
	if !ok {
		c = &cursor.Cursor{SourceID: sourceID, LastRunStatus: cursor.StatusIdle}
		m.rows[sourceID] = c
	}
	c.LastWatermark = watermark
	m.mu.Unlock()
	return m.Get(ctx, sourceID)
}

func (m *memCursors) List(context.Context) ([]*cursor.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*cursor.Cursor, 0, len(m.rows))
	for _, c := range m.rows {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// MockUpstream is a mock implementation of upstream.Source
type MockUpstream struct {
	MaxWindowFunc   func(ctx context.Context, sourceID string) (int64, error)
	FetchWindowFunc func(ctx context.Context, sourceID string, window int64) (*upstream.WindowResult, error)

	mu      sync.Mutex
	fetched []int64
}

func (m *MockUpstream) MaxWindow(ctx context.Context, sourceID string) (int64, error) {
	if m.MaxWindowFunc != nil {
		return m.MaxWindowFunc(ctx, sourceID)
	}
	return 0, nil
}

func (m *MockUpstream) FetchWindow(ctx context.Context, sourceID string, window int64) (*upstream.WindowResult, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, window)
	m.mu.Unlock()
	if m.FetchWindowFunc != nil {
		return m.FetchWindowFunc(ctx, sourceID, window)
	}
	return &upstream.WindowResult{Window: window}, nil
}

func (m *MockUpstream) Fetched() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.fetched...)
}

// setIngester stores external ids in a set.
type setIngester struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newSetIngester(existing ...string) *setIngester {
	s := &setIngester{seen: map[string]struct{}{}}
	for _, id := range existing {
		s.seen[id] = struct{}{}
	}
	return s
}

func (s *setIngester) Ingest(_ context.Context, _ string, batch []record.Normalized) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, n := range batch {
		if _, ok := s.seen[n.ExternalID]; ok {
			continue
		}
		s.seen[n.ExternalID] = struct{}{}
		added++
	}
	return added, nil
}

func (s *setIngester) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// MockIncremental is a mock implementation of Incremental
type MockIncremental struct {
	RunIncrementalFunc func(ctx context.Context, sourceID string, lookback int) (*RunOutcome, error)
}

func (m *MockIncremental) RunIncremental(ctx context.Context, sourceID string, lookback int) (*RunOutcome, error) {
	if m.RunIncrementalFunc != nil {
		return m.RunIncrementalFunc(ctx, sourceID, lookback)
	}
	return &RunOutcome{Source: sourceID}, nil
}
