package fetch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 2 * time.Second
)

// Retry re-issues transient failures with exponential backoff (base, 2*base, 4*base...).
// The context is checked before every attempt and interrupts the backoff sleep.
type Retry struct {
	next       Fetcher
	maxRetries int
	base       time.Duration
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetry wraps next. maxRetries counts additional attempts after the first one.
func NewRetry(next Fetcher, maxRetries int, base time.Duration, logger *zap.Logger) *Retry {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if base <= 0 {
		base = defaultBackoffBase
	}
	return &Retry{
		next:       next,
		maxRetries: maxRetries,
		base:       base,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Fetch calls the wrapped fetcher until it succeeds, fails permanently, or the budget runs out.
func (r *Retry) Fetch(ctx context.Context, url string) (*RawBatch, error) {
	delay := r.base
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.FetchRetries.Inc()
			r.logger.Debug("Retrying upstream fetch",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := r.next.Fetch(ctx, url)
		if err == nil {
			return batch, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.maxRetries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
