package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/urcash/urcash/internal/installments"
	jobmetrics "github.com/urcash/urcash/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const overdueSummaryKey = "installments:overdue:latest"

// OverdueScanner lists overdue installments grouped by customer.
type OverdueScanner interface {
	ScanOverdue(ctx context.Context, now time.Time) ([]installments.CustomerOverdue, error)
}

// OverdueSummary is the dashboard snapshot written after each scan.
type OverdueSummary struct {
	AsOf         string                         `json:"as_of"`
	ScannedAt    time.Time                      `json:"scanned_at"`
	Customers    int                            `json:"customers"`
	Installments int                            `json:"installments"`
	Outstanding  float64                        `json:"outstanding"`
	Items        []installments.CustomerOverdue `json:"items"`
}

// OverdueStore keeps the latest summary in Redis.
type OverdueStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOverdueStore builds an OverdueStore. Summaries expire after ttl.
func NewOverdueStore(client *redis.Client, ttl time.Duration) *OverdueStore {
	return &OverdueStore{client: client, ttl: ttl}
}

// Save stores summary as the latest snapshot.
func (s *OverdueStore) Save(ctx context.Context, summary OverdueSummary) error {
	if s == nil || s.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, overdueSummaryKey, raw, s.ttl).Err()
}

// Latest returns the last stored summary. ok is false when none exists.
func (s *OverdueStore) Latest(ctx context.Context) (OverdueSummary, bool, error) {
	if s == nil || s.client == nil {
		return OverdueSummary{}, false, nil
	}
	raw, err := s.client.Get(ctx, overdueSummaryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return OverdueSummary{}, false, nil
	}
	if err != nil {
		return OverdueSummary{}, false, err
	}
	var summary OverdueSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return OverdueSummary{}, false, err
	}
	return summary, true, nil
}

// OverdueScanJob counts overdue installments. It never mutates them.
type OverdueScanJob struct {
	Scanner OverdueScanner
	Store   *OverdueStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob wires dependencies for the scan handler.
func NewOverdueScanJob(scanner OverdueScanner, store *OverdueStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Scanner: scanner,
		Store:   store,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	now := j.now()
	asOf := now
	if payload.AsOf != "" {
		d, err := installments.ParseDate(payload.AsOf)
		if err != nil {
			return errors.Join(err, asynq.SkipRetry)
		}
		asOf = d.Time
	}

	tracker := j.metrics().Track(TaskOverdueScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("as_of", installments.NewDate(asOf).String()))
	logger.Info("starting overdue scan")

	items, err := j.Scanner.ScanOverdue(ctx, asOf)
	if err != nil {
		resultErr = err
		logger.Error("scan overdue installments", slog.Any("error", err))
		return resultErr
	}

	summary := OverdueSummary{
		AsOf:      installments.NewDate(asOf).String(),
		ScannedAt: now,
		Customers: len(items),
		Items:     items,
	}
	for _, item := range items {
		summary.Installments += item.Count
		summary.Outstanding += item.Outstanding
		logger.Warn("customer has overdue installments",
			slog.Int64("customer_id", item.CustomerID),
			slog.String("customer_name", item.CustomerName),
			slog.Int("count", item.Count),
			slog.Float64("outstanding", item.Outstanding),
			slog.String("oldest_due", item.OldestDue.String()),
		)
	}
	j.metrics().SetOverdue(summary.Customers, summary.Installments, summary.Outstanding, now)

	if err := j.Store.Save(ctx, summary); err != nil {
		resultErr = err
		logger.Error("store overdue summary", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed overdue scan",
		slog.Int("customers", summary.Customers),
		slog.Int("installments", summary.Installments),
		slog.Float64("outstanding", summary.Outstanding),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskOverdueScan))
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
