package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/urcash/urcash/internal/installments"
	jobmetrics "github.com/urcash/urcash/internal/jobs"
)

type stubScanner struct {
	items []installments.CustomerOverdue
	err   error
	asOf  time.Time
}

func (s *stubScanner) ScanOverdue(_ context.Context, now time.Time) ([]installments.CustomerOverdue, error) {
	s.asOf = now
	return s.items, s.err
}

type stubInvalidator struct {
	calls int
	err   error
}

func (s *stubInvalidator) InvalidateCache(context.Context) error {
	s.calls++
	return s.err
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOverdueScanStoresSummary(t *testing.T) {
	oldest, err := installments.ParseDate("2024-02-01")
	require.NoError(t, err)
	scanner := &stubScanner{items: []installments.CustomerOverdue{
		{CustomerID: 1, CustomerName: "Ali", Count: 2, Outstanding: 170, OldestDue: oldest},
		{CustomerID: 2, CustomerName: "Sara", Count: 1, Outstanding: 30, OldestDue: oldest},
	}}
	store := NewOverdueStore(newRedis(t), time.Hour)
	reg := prometheus.NewRegistry()
	job := NewOverdueScanJob(scanner, store, discardLogger, jobmetrics.NewMetrics(reg))
	job.clock = func() time.Time { return time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC) }

	task, err := NewOverdueScanTask(OverdueScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, "2024-03-15", installments.NewDate(scanner.asOf).String())

	summary, ok, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, summary.Customers)
	require.Equal(t, 3, summary.Installments)
	require.Equal(t, 200.0, summary.Outstanding)
	require.Equal(t, "2024-03-15", summary.AsOf)

	expected := `
# HELP urcash_overdue_installments Overdue unpaid installments found by the last scan.
# TYPE urcash_overdue_installments gauge
urcash_overdue_installments 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "urcash_overdue_installments"))
}

func TestOverdueScanHonoursAsOfAndFailures(t *testing.T) {
	scanner := &stubScanner{err: errors.New("db down")}
	job := NewOverdueScanJob(scanner, NewOverdueStore(newRedis(t), time.Hour), discardLogger, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	raw, err := json.Marshal(OverdueScanPayload{AsOf: "2024-01-10"})
	require.NoError(t, err)
	err = job.Handle(context.Background(), asynq.NewTask(TaskOverdueScan, raw))
	require.EqualError(t, err, "db down")
	require.Equal(t, "2024-01-10", installments.NewDate(scanner.asOf).String())

	err = job.Handle(context.Background(), asynq.NewTask(TaskOverdueScan, []byte(`{"as_of":"soon"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskOverdueScan, []byte(`not-json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCacheBumpJob(t *testing.T) {
	inv := &stubInvalidator{}
	job := NewCacheBumpJob(inv, discardLogger, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewCacheBumpTask(CacheBumpPayload{Reason: "cli payment"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, inv.calls)

	inv.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHandler(t *testing.T) {
	store := NewOverdueStore(newRedis(t), time.Hour)
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, store, discardLogger)
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"active":0,"retry":0}`, rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/overdue", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, store.Save(context.Background(), OverdueSummary{AsOf: "2024-03-15", Customers: 1}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/overdue", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"as_of":"2024-03-15"`)

	failing := NewHandler(stubInspector{err: errors.New("no redis")}, store, discardLogger)
	r = chi.NewRouter()
	r.Route("/jobs", failing.MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
