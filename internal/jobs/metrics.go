package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec

	overdueInstallments prometheus.Gauge
	overdueCustomers    prometheus.Gauge
	overdueOutstanding  prometheus.Gauge
	lastScan            prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetOverdue publishes the result of the latest overdue scan.
func (m *Metrics) SetOverdue(customers, installments int, outstanding float64, at time.Time) {
	if m == nil {
		return
	}
	m.overdueCustomers.Set(float64(customers))
	m.overdueInstallments.Set(float64(installments))
	m.overdueOutstanding.Set(outstanding)
	m.lastScan.Set(float64(at.Unix()))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urcash_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	installments := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "urcash_overdue_installments",
		Help: "Overdue unpaid installments found by the last scan.",
	})
	customers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "urcash_overdue_customers",
		Help: "Customers with at least one overdue installment.",
	})
	outstanding := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "urcash_overdue_outstanding_amount",
		Help: "Unpaid balance of overdue installments.",
	})
	lastScan := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "urcash_overdue_last_scan_timestamp_seconds",
		Help: "Unix time of the last completed overdue scan.",
	})
	registerer.MustRegister(runs, failures, duration, installments, customers, outstanding, lastScan)
	return &Metrics{
		runs:                runs,
		failures:            failures,
		duration:            duration,
		overdueInstallments: installments,
		overdueCustomers:    customers,
		overdueOutstanding:  outstanding,
		lastScan:            lastScan,
	}
}
