package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
)

type mockService struct{ mock.Mock }

func (m *mockService) RunIncremental(ctx context.Context, sourceID string, lookback *int) (*scheduler.RunOutcome, error) {
	args := m.Called(ctx, sourceID, lookback)
	out, _ := args.Get(0).(*scheduler.RunOutcome)
	return out, args.Error(1)
}

func (m *mockService) RunAll(ctx context.Context) ([]PassResult, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]PassResult)
	return out, args.Error(1)
}

func (m *mockService) Status(ctx context.Context, sourceID string) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockService) StatusAll(ctx context.Context) ([]*cursor.Cursor, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]*cursor.Cursor)
	return cs, args.Error(1)
}

func (m *mockService) ResetState(ctx context.Context, sourceID string, window int64) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID, window)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

type mockIncremental struct{ mock.Mock }

func (m *mockIncremental) RunIncremental(ctx context.Context, sourceID string, lookback int) (*scheduler.RunOutcome, error) {
	args := m.Called(ctx, sourceID, lookback)
	out, _ := args.Get(0).(*scheduler.RunOutcome)
	return out, args.Error(1)
}

type mockRunner struct{ mock.Mock }

func (m *mockRunner) RunOnce(ctx context.Context) ([]scheduler.SourceResult, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]scheduler.SourceResult)
	return out, args.Error(1)
}

type mockCursors struct{ mock.Mock }

func (m *mockCursors) Get(ctx context.Context, sourceID string) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockCursors) Ensure(ctx context.Context, sourceID string, initialWatermark int64) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID, initialWatermark)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockCursors) Claim(ctx context.Context, sourceID, runID string, staleAfter time.Duration) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID, runID, staleAfter)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockCursors) Complete(ctx context.Context, sourceID string, res cursor.Result) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID, res)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockCursors) Reset(ctx context.Context, sourceID string, watermark int64) (*cursor.Cursor, error) {
	args := m.Called(ctx, sourceID, watermark)
	c, _ := args.Get(0).(*cursor.Cursor)
	return c, args.Error(1)
}

func (m *mockCursors) List(ctx context.Context) ([]*cursor.Cursor, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]*cursor.Cursor)
	return cs, args.Error(1)
}
