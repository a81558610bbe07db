// Package ratelimit enforces per-credential hourly and daily request quotas.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/internal/metrics"
)

// WindowState describes one quota window after a decision.
type WindowState struct {
	// Limit is Unlimited (-1) for uncapped windows.
	Limit int `json:"limit"`
	// Remaining is Unlimited (-1) for uncapped windows.
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Decision is the result of CheckAndConsume.
type Decision struct {
	Allowed  bool        `json:"allowed"`
	Tier     string      `json:"tier"`
	Hour     WindowState `json:"hour"`
	Day      WindowState `json:"day"`
	Exceeded WindowKind  `json:"exceeded,omitempty"`
}

// ExceededWindow returns the state of the window that rejected the request.
func (d *Decision) ExceededWindow() WindowState {
	if d.Exceeded == WindowDay {
		return d.Day
	}
	return d.Hour
}

// Limiter applies tier quotas on top of a counter Store.
type Limiter struct {
	store  Store
	tiers  *Tiers
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a new limiter
func NewLimiter(store Store, tiers *Tiers, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, tiers: tiers, logger: logger, now: time.Now}
}

// CheckAndConsume charges one request to identity if both of its windows have quota left.
// A rejected request is not counted.
func (l *Limiter) CheckAndConsume(ctx context.Context, identity, tierName string) (*Decision, error) {
	tier := l.tiers.Resolve(tierName)
	now := l.now()
	hour := Window{Kind: WindowHour, Start: HourStart(now), Limit: tier.HourlyLimit}
	day := Window{Kind: WindowDay, Start: DayStart(now), Limit: tier.DailyLimit}

	usage, err := l.store.Consume(ctx, identity, hour, day)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("ratelimit", "store").Inc()
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}

	d := &Decision{
		Allowed:  usage.Allowed,
		Tier:     tier.Name,
		Hour:     windowState(hour, usage.HourCount, time.Hour),
		Day:      windowState(day, usage.DayCount, 24*time.Hour),
		Exceeded: usage.Exceeded,
	}

	if d.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(tier.Name, "allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues(tier.Name, "rejected").Inc()
		metrics.RateLimitRejected.WithLabelValues(tier.Name, string(d.Exceeded)).Inc()
	}
	return d, nil
}

// RunSweeper periodically drops expired counters until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.Sweep(ctx, l.now())
			if err != nil {
				l.logger.Warn("Failed to sweep rate limit counters", zap.Error(err))
				continue
			}
			if n > 0 {
				l.logger.Debug("Swept rate limit counters", zap.Int("removed", n))
			}
		}
	}
}

func windowState(w Window, count int, length time.Duration) WindowState {
	st := WindowState{Limit: w.Limit, Remaining: Unlimited, ResetAt: w.Start.Add(length)}
	if w.Limit != Unlimited {
		st.Remaining = max(w.Limit-count, 0)
	}
	return st
}
