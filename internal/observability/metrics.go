package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the API server.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	plansCreated      prometheus.Counter
	planInstallments  prometheus.Histogram
	planAmount        prometheus.Counter
	debtConversions   *prometheus.CounterVec
	paymentsTotal     *prometheus.CounterVec
	paymentAmountsSum *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and installment metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urcash_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	plans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "urcash_installment_plans_created_total",
		Help: "Installment plans created from products.",
	})
	planInstallments := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "urcash_installment_plan_months",
		Help:    "Number of installments per created plan.",
		Buckets: []float64{1, 3, 6, 12, 18, 24, 36, 60},
	})
	planAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "urcash_installment_plan_amount_total",
		Help: "Sum of created plan totals.",
	})
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_debt_conversions_total",
		Help: "Debts processed by conversion batches, by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_installment_payments_total",
		Help: "Recorded installment payments by method.",
	}, []string{"method"})
	paymentAmounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "urcash_installment_payment_amount_total",
		Help: "Sum of recorded payment amounts by method.",
	}, []string{"method"})
	registry.MustRegister(requests, duration, plans, planInstallments, planAmount, conversions, payments, paymentAmounts)
	// Both outcome series exist from startup.
	conversions.WithLabelValues("success")
	conversions.WithLabelValues("failure")
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		plansCreated:      plans,
		planInstallments:  planInstallments,
		planAmount:        planAmount,
		debtConversions:   conversions,
		paymentsTotal:     payments,
		paymentAmountsSum: paymentAmounts,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// PlanCreated counts a created plan.
func (m *Metrics) PlanCreated(installments int, total float64) {
	if m == nil {
		return
	}
	m.plansCreated.Inc()
	m.planInstallments.Observe(float64(installments))
	if total > 0 {
		m.planAmount.Add(total)
	}
}

// DebtsConverted counts the outcome of one conversion batch.
func (m *Metrics) DebtsConverted(success, failed int) {
	if m == nil {
		return
	}
	m.debtConversions.WithLabelValues("success").Add(float64(success))
	m.debtConversions.WithLabelValues("failure").Add(float64(failed))
}

// PaymentRecorded counts a payment.
func (m *Metrics) PaymentRecorded(method string, amount float64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(method).Inc()
	if amount > 0 {
		m.paymentAmountsSum.WithLabelValues(method).Add(amount)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
