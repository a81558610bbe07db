// Package scheduler drives incremental ingestion runs per source and the background loop
// that triggers them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/fetch"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/record"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/upstream"
)

// ErrInvalidLookback is returned for a negative lookback.
var ErrInvalidLookback = errors.New("lookback must not be negative")

const maxErrorMessageLen = 2000

// Ingester stores one window worth of records.
type Ingester interface {
	Ingest(ctx context.Context, sourceID string, batch []record.Normalized) (int, error)
}

// RunOutcome summarizes one incremental run.
type RunOutcome struct {
	Source         string        `json:"source"`
	RunID          string        `json:"runId"`
	FromWindow     int64         `json:"fromWindow"`
	ToWindow       int64         `json:"toWindow"`
	WindowsScraped int           `json:"windowsScraped"`
	WindowsFailed  int           `json:"windowsFailed"`
	RecordsAdded   int           `json:"recordsAdded"`
	ItemErrors     int           `json:"itemErrors"`
	Status         cursor.Status `json:"status"`
	Regressed      bool          `json:"regressed,omitempty"`
	Watermark      int64         `json:"watermark"`
	Errors         []string      `json:"errors,omitempty"`
	StartedAt      time.Time     `json:"startedAt"`
	FinishedAt     time.Time     `json:"finishedAt"`
}

// Scheduler runs one source at a time through fetch, extract and ingest.
type Scheduler struct {
	cursors    cursor.Store
	upstream   upstream.Source
	ingester   Ingester
	sources    map[string]config.SourceConfig
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a new scheduler
func New(
	cursors cursor.Store,
	source upstream.Source,
	ingester Ingester,
	sources []config.SourceConfig,
	staleAfter time.Duration,
	logger *zap.Logger,
) *Scheduler {
	bySource := make(map[string]config.SourceConfig, len(sources))
	for _, src := range sources {
		bySource[src.ID] = src
	}
	return &Scheduler{
		cursors:    cursors,
		upstream:   source,
		ingester:   ingester,
		sources:    bySource,
		staleAfter: staleAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RunIncremental ingests windows [max(0, watermark-lookback), upstream max] for one source.
//
// A failed window does not abort the run; the cursor watermark then only advances through
// the windows that succeeded without a gap. Errors are returned for preconditions only
// (unknown source, run already in progress, cursor store failures); upstream failures are
// reported in the outcome.
func (s *Scheduler) RunIncremental(ctx context.Context, sourceID string, lookback int) (*RunOutcome, error) {
	src, ok := s.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", upstream.ErrUnknownSource, sourceID)
	}
	if lookback < 0 {
		return nil, ErrInvalidLookback
	}

	if _, err := s.cursors.Ensure(ctx, sourceID, int64(src.InitialWindow)); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	cur, err := s.cursors.Claim(ctx, sourceID, runID, s.staleAfter)
	if err != nil {
		return nil, err
	}

	out := &RunOutcome{
		Source:     sourceID,
		RunID:      runID,
		FromWindow: max(0, cur.LastWatermark-int64(lookback)),
		Watermark:  cur.LastWatermark,
		StartedAt:  s.now(),
	}
	log := s.logger.With(zap.String("source", sourceID), zap.String("run_id", runID))
	log.Info("Incremental run started",
		zap.Int64("watermark", cur.LastWatermark),
		zap.Int64("from_window", out.FromWindow),
		zap.Int("lookback", lookback))

	res := s.execute(ctx, out, log)

	// the cursor write must land even when the run was cancelled
	done, err := s.cursors.Complete(context.WithoutCancel(ctx), sourceID, res)
	if err != nil {
		log.Error("Failed to record run outcome", zap.Error(err))
		return out, fmt.Errorf("complete cursor: %w", err)
	}
	out.Watermark = done.LastWatermark

	metrics.RunsTotal.WithLabelValues(sourceID, string(out.Status)).Inc()
	metrics.RunDuration.WithLabelValues(sourceID).Observe(out.FinishedAt.Sub(out.StartedAt).Seconds())
	metrics.LastWatermark.WithLabelValues(sourceID).Set(float64(done.LastWatermark))

	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.Int64("from_window", out.FromWindow),
		zap.Int64("to_window", out.ToWindow),
		zap.Int("windows_scraped", out.WindowsScraped),
		zap.Int("records_added", out.RecordsAdded),
		zap.Int64("watermark", done.LastWatermark),
		zap.Duration("duration", out.FinishedAt.Sub(out.StartedAt)),
	}
	if out.Status == cursor.StatusFailed {
		log.Error("Incremental run failed", append(fields, zap.Strings("errors", out.Errors))...)
	} else {
		log.Info("Incremental run completed", fields...)
	}
	return out, nil
}

// execute fills out and returns the cursor result to persist.
func (s *Scheduler) execute(ctx context.Context, out *RunOutcome, log *zap.Logger) cursor.Result {
	res := cursor.Result{RunID: out.RunID}
	finish := func(status cursor.Status) cursor.Result {
		out.Status = status
		out.FinishedAt = s.now()
		res.Status = status
		res.RecordsAdded = out.RecordsAdded
		res.FinishedAt = out.FinishedAt
		res.ErrorMessage = errorMessage(out.Errors)
		return res
	}

	toWindow, err := s.upstream.MaxWindow(ctx, out.Source)
	if err != nil {
		out.ToWindow = out.FromWindow
		out.Errors = append(out.Errors, fmt.Sprintf("max window: %v", err))
		return finish(cursor.StatusFailed)
	}
	out.ToWindow = toWindow

	if toWindow < out.FromWindow {
		out.Regressed = true
		log.Warn("Upstream max window regressed below fetch range; cursor left unchanged",
			zap.Int64("from_window", out.FromWindow),
			zap.Int64("upstream_max", toWindow))
		return finish(cursor.StatusSuccess)
	}

	contiguous := true
	for w := out.FromWindow; w <= toWindow; w++ {
		if err := ctx.Err(); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("run interrupted before window %d: %v", w, err))
			break
		}

		added, itemErrors, err := s.ingestWindow(ctx, out.Source, w)
		if err != nil {
			contiguous = false
			out.WindowsFailed++
			out.Errors = append(out.Errors, fmt.Sprintf("window %d: %v", w, err))
			metrics.WindowsScraped.WithLabelValues(out.Source, "failed").Inc()
			log.Warn("Window failed", zap.Int64("window", w), zap.Error(err))
			if errors.Is(err, fetch.ErrCircuitOpen) {
				out.Errors = append(out.Errors, "circuit open; remaining windows skipped")
				break
			}
			continue
		}

		out.WindowsScraped++
		out.RecordsAdded += added
		out.ItemErrors += itemErrors
		metrics.WindowsScraped.WithLabelValues(out.Source, "ok").Inc()
		if contiguous {
			res.Watermark = w
			res.AdvanceWatermark = true
		}
	}

	if len(out.Errors) > 0 {
		return finish(cursor.StatusFailed)
	}
	return finish(cursor.StatusSuccess)
}

func (s *Scheduler) ingestWindow(ctx context.Context, sourceID string, window int64) (int, int, error) {
	wr, err := s.upstream.FetchWindow(ctx, sourceID, window)
	if err != nil {
		return 0, 0, err
	}
	for _, ie := range wr.Errors {
		s.logger.Debug("Skipped malformed item",
			zap.String("source", sourceID),
			zap.Int64("window", window),
			zap.String("reason", ie.Error()))
	}
	added, err := s.ingester.Ingest(ctx, sourceID, wr.Records)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest: %w", err)
	}
	return added, len(wr.Errors), nil
}

func errorMessage(errs []string) string {
	msg := strings.Join(errs, "; ")
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}
	return msg
}
