package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/urcash/urcash/internal/jobs"
)

// CacheInvalidator bumps the grouped listing cache version.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// CacheBumpJob invalidates the listing cache after out-of-band writes.
type CacheBumpJob struct {
	Cache   CacheInvalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheBumpJob wires dependencies for the bump handler.
func NewCacheBumpJob(cache CacheInvalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheBumpJob {
	return &CacheBumpJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCacheBump tasks.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskCacheBump)
	err := j.Cache.InvalidateCache(ctx)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("bump installments cache", slog.String("reason", payload.Reason), slog.Any("error", err))
	} else {
		logger.Info("installments cache bumped", slog.String("reason", payload.Reason))
	}
	return tracker.End(err)
}
