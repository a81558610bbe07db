package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/config"
)

// ErrAlreadyRunning is returned by RunOnce when a pass is still in flight.
var ErrAlreadyRunning = errors.New("runner pass already in progress")

// Incremental is the part of Scheduler the runner depends on.
type Incremental interface {
	RunIncremental(ctx context.Context, sourceID string, lookback int) (*RunOutcome, error)
}

// SourceResult is the result of one source within a runner pass.
type SourceResult struct {
	Source  string
	Outcome *RunOutcome
	Err     error
}

// Runner wakes on a fixed interval, or daily at a fixed UTC hour, and runs every active
// source. One source failing or panicking never stops the others.
type Runner struct {
	scheduler Incremental
	sources   []config.SourceConfig
	cfg       config.SchedulerConfig
	logger    *zap.Logger
	now       func() time.Time

	running atomic.Bool
}

// NewRunner creates a runner over the active sources.
func NewRunner(scheduler Incremental, sources []config.SourceConfig, cfg config.SchedulerConfig, logger *zap.Logger) *Runner {
	active := make([]config.SourceConfig, 0, len(sources))
	for _, src := range sources {
		if src.IsActive() {
			active = append(active, src)
		}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		scheduler: scheduler,
		sources:   active,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until ctx is cancelled. The next wake is computed after a pass finishes, so
// passes never overlap.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info("Background runner started",
		zap.Int("sources", len(r.sources)),
		zap.Int("concurrency", r.cfg.Concurrency))

	if r.cfg.RunOnStart {
		r.pass(ctx)
	}

	for {
		delay := r.nextDelay(r.now())
		r.logger.Info("Next runner wake scheduled", zap.Duration("in", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("Background runner stopped")
			return nil
		case <-timer.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Warn("Skipping runner wake", zap.Error(err))
	}
}

// RunOnce runs every active source once with bounded concurrency. It returns
// ErrAlreadyRunning instead of starting a second concurrent pass.
func (r *Runner) RunOnce(ctx context.Context) ([]SourceResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	var (
		mu      sync.Mutex
		results = make([]SourceResult, 0, len(r.sources))
		g       errgroup.Group
	)
	g.SetLimit(r.cfg.Concurrency)

	for _, src := range r.sources {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.runSource(ctx, src.ID)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Running reports whether a pass is in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) runSource(ctx context.Context, sourceID string) (res SourceResult) {
	res.Source = sourceID
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
			metrics.ErrorsTotal.WithLabelValues("runner", "panic").Inc()
			r.logger.Error("Source run panicked", zap.String("source", sourceID), zap.Any("panic", p), zap.Stack("stack"))
		}
	}()

	if r.cfg.SourceDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SourceDeadline)
		defer cancel()
	}

	res.Outcome, res.Err = r.scheduler.RunIncremental(ctx, sourceID, r.cfg.Lookback)
	if res.Err != nil {
		metrics.ErrorsTotal.WithLabelValues("runner", "run").Inc()
		r.logger.Error("Source run failed to start or finish", zap.String("source", sourceID), zap.Error(res.Err))
	}
	return res
}

// nextDelay returns the time until the next wake.
func (r *Runner) nextDelay(now time.Time) time.Duration {
	if r.cfg.RunAtHour == nil {
		if r.cfg.Interval <= 0 {
			return 24 * time.Hour
		}
		return r.cfg.Interval
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), *r.cfg.RunAtHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
