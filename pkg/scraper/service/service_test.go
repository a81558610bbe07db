package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/james-langridge/mars-vista-api-sub000/pkg/app/errors"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
)

var testSources = []config.SourceConfig{
	{ID: "curiosity", InitialWindow: 0},
	{ID: "perseverance", InitialWindow: 10},
}

type fixture struct {
	sched   *mockIncremental
	runner  *mockRunner
	cursors *mockCursors
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{sched: &mockIncremental{}, runner: &mockRunner{}, cursors: &mockCursors{}}
	f.svc = NewLog(NewService(f.sched, f.runner, f.cursors, testSources, 7, zap.NewNop()), zap.NewNop())
	t.Cleanup(func() {
		f.sched.AssertExpectations(t)
		f.runner.AssertExpectations(t)
		f.cursors.AssertExpectations(t)
	})
	return f
}

func TestRunIncremental_DefaultLookback(t *testing.T) {
	f := newFixture(t)
	want := &scheduler.RunOutcome{Source: "curiosity", Status: cursor.StatusSuccess, RecordsAdded: 3}
	f.sched.On("RunIncremental", mock.Anything, "curiosity", 7).Return(want, nil)

	got, err := f.svc.RunIncremental(context.Background(), "curiosity", nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRunIncremental_ExplicitLookback(t *testing.T) {
	f := newFixture(t)
	f.sched.On("RunIncremental", mock.Anything, "curiosity", 0).
		Return(&scheduler.RunOutcome{Source: "curiosity"}, nil)

	zero := 0
	_, err := f.svc.RunIncremental(context.Background(), "curiosity", &zero)
	require.NoError(t, err)
}

func TestRunIncremental_ErrorMapping(t *testing.T) {
	neg := -1
	tests := []struct {
		name     string
		source   string
		lookback *int
		schedErr error
		category apperrors.Category
	}{
		{name: "unknown source", source: "spirit", category: apperrors.CategoryResourceNotFound},
		{name: "negative lookback", source: "curiosity", lookback: &neg, category: apperrors.CategoryDataError},
		{name: "run in progress", source: "curiosity", schedErr: cursor.ErrRunInProgress, category: apperrors.CategoryDataConflict},
		{name: "store failure", source: "curiosity", schedErr: errors.New("db down"), category: apperrors.CategoryGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.schedErr != nil {
				f.sched.On("RunIncremental", mock.Anything, tt.source, 7).Return(nil, tt.schedErr)
			}

			_, err := f.svc.RunIncremental(context.Background(), tt.source, tt.lookback)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.category), "got %v", err)
		})
	}
}

func TestRunAll(t *testing.T) {
	f := newFixture(t)
	f.runner.On("RunOnce", mock.Anything).Return([]scheduler.SourceResult{
		{Source: "curiosity", Outcome: &scheduler.RunOutcome{Source: "curiosity"}},
		{Source: "perseverance", Err: errors.New("boom")},
	}, nil)

	results, err := f.svc.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "boom", results[1].Error)
}

func TestRunAll_AlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.runner.On("RunOnce", mock.Anything).Return(nil, scheduler.ErrAlreadyRunning)

	_, err := f.svc.RunAll(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict))
}

func TestStatus_NeverRunIsIdle(t *testing.T) {
	f := newFixture(t)
	f.cursors.On("Get", mock.Anything, "perseverance").Return(nil, cursor.ErrCursorNotFound)

	c, err := f.svc.Status(context.Background(), "perseverance")
	require.NoError(t, err)
	assert.Equal(t, cursor.StatusIdle, c.LastRunStatus)
	assert.Equal(t, int64(10), c.LastWatermark)
}

func TestStatusAll_FillsMissingSources(t *testing.T) {
	f := newFixture(t)
	f.cursors.On("List", mock.Anything).Return([]*cursor.Cursor{
		{SourceID: "curiosity", LastWatermark: 4100, LastRunStatus: cursor.StatusSuccess},
		{SourceID: "retired", LastWatermark: 1},
	}, nil)

	cs, err := f.svc.StatusAll(context.Background())
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, int64(4100), cs[0].LastWatermark)
	assert.Equal(t, "perseverance", cs[1].SourceID)
	assert.Equal(t, cursor.StatusIdle, cs[1].LastRunStatus)
}

func TestResetState(t *testing.T) {
	f := newFixture(t)
	f.cursors.On("Reset", mock.Anything, "curiosity", int64(50)).
		Return(&cursor.Cursor{SourceID: "curiosity", LastWatermark: 50}, nil)

	c, err := f.svc.ResetState(context.Background(), "curiosity", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.LastWatermark)

	_, err = f.svc.ResetState(context.Background(), "curiosity", -3)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataError))

	_, err = f.svc.ResetState(context.Background(), "spirit", 1)
	assert.True(t, apperrors.Is(err, apperrors.CategoryResourceNotFound))
}
