package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/james-langridge/mars-vista-api-sub000/pkg/cursor"
	"github.com/james-langridge/mars-vista-api-sub000/pkg/scheduler"
)

const serviceName = "ScraperService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the scraper Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

// RunIncremental wraps the service method with logging
func (ls *logService) RunIncremental(
	ctx context.Context,
	sourceID string,
	lookback *int,
) (out *scheduler.RunOutcome, err error) {
	start := time.Now()

	fields := []zap.Field{
		zap.String("service", serviceName),
		zap.String("method", "RunIncremental"),
		zap.String("source", sourceID),
	}
	if lookback != nil {
		fields = append(fields, zap.Int("lookback", *lookback))
	}
	ls.logger.Info("RunIncremental started", fields...)

	defer func() {
		fields = append(fields, zap.Duration("duration", time.Since(start)))
		if err != nil {
			ls.logger.Error("RunIncremental failed", append(fields, zap.Error(err))...)
			return
		}
		ls.logger.Info("RunIncremental completed", append(fields,
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.Status)),
			zap.Int("windows_scraped", out.WindowsScraped),
			zap.Int("records_added", out.RecordsAdded),
		)...)
	}()

	return ls.svc.RunIncremental(ctx, sourceID, lookback)
}

// RunAll wraps the service method with logging
func (ls *logService) RunAll(ctx context.Context) (results []PassResult, err error) {
	start := time.Now()
	ls.logger.Info("RunAll started",
		zap.String("service", serviceName),
		zap.String("method", "RunAll"),
	)

	defer func() {
		if err != nil {
			ls.logger.Error("RunAll failed",
				zap.String("service", serviceName),
				zap.String("method", "RunAll"),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		failed := 0
		for _, res := range results {
			if res.Error != "" {
				failed++
			}
		}
		ls.logger.Info("RunAll completed",
			zap.String("service", serviceName),
			zap.String("method", "RunAll"),
			zap.Int("sources", len(results)),
			zap.Int("sources_failed", failed),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.RunAll(ctx)
}

// Status wraps the service method with logging
func (ls *logService) Status(ctx context.Context, sourceID string) (c *cursor.Cursor, err error) {
	defer func() {
		if err != nil {
			ls.logger.Debug("Status failed",
				zap.String("service", serviceName),
				zap.String("source", sourceID),
				zap.Error(err),
			)
		}
	}()
	return ls.svc.Status(ctx, sourceID)
}

// StatusAll wraps the service method with logging
func (ls *logService) StatusAll(ctx context.Context) (cs []*cursor.Cursor, err error) {
	defer func() {
		if err != nil {
			ls.logger.Debug("StatusAll failed", zap.String("service", serviceName), zap.Error(err))
		}
	}()
	return ls.svc.StatusAll(ctx)
}

// ResetState wraps the service method with logging. Resets are always logged at warn level.
func (ls *logService) ResetState(ctx context.Context, sourceID string, window int64) (c *cursor.Cursor, err error) {
	defer func() {
		if err != nil {
			ls.logger.Error("ResetState failed",
				zap.String("service", serviceName),
				zap.String("source", sourceID),
				zap.Int64("window", window),
				zap.Error(err),
			)
			return
		}
		ls.logger.Warn("Cursor watermark reset",
			zap.String("service", serviceName),
			zap.String("source", sourceID),
			zap.Int64("window", window),
		)
	}()
	return ls.svc.ResetState(ctx, sourceID, window)
}
