package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus collectors for the HTTP surface, the intake pipeline, the OCR
// engine, AI calls, and the query router.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	IntakeStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_stage_duration_seconds",
			Help:    "Duration of each intake pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
	IntakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intakes_total",
			Help: "Total intakes by terminal outcome",
		},
		[]string{"outcome"},
	)
	IntakesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "intakes_in_flight",
			Help: "Number of intakes currently processing",
		},
	)

	OCRProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocr_provider_duration_seconds",
			Help:    "OCR provider call duration",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
		},
		[]string{"provider"},
	)
	OCRProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_provider_failures_total",
			Help: "OCR provider failures",
		},
		[]string{"provider"},
	)
	OCRAgreementRate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ocr_agreement_rate",
			Help:    "Distribution of triple-OCR agreement rates",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)
	OCRArbitrationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ocr_arbitrations_total",
			Help: "Number of low-agreement fusions sent to LLM arbitration",
		},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by operation",
		},
		[]string{"operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Token usage by operation and direction",
		},
		[]string{"operation", "direction"},
	)

	TaxonomyMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxonomy_matches_total",
			Help: "Taxonomy cascade outcomes by kind and method",
		},
		[]string{"kind", "method"},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queries_total",
			Help: "NL queries by type and cache outcome",
		},
		[]string{"query_type", "cached"},
	)
	RelaxedMatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relaxed_matches_total",
			Help: "Queries that fell back to the relaxed matcher",
		},
	)
	HRJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hr_jobs_total",
			Help: "HR analysis jobs by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)
)

// InitMetrics registers all collectors with the default registry. Safe to
// call once per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration,
		IntakeStageDuration, IntakesTotal, IntakesInFlight,
		OCRProviderDuration, OCRProviderFailures, OCRAgreementRate, OCRArbitrationsTotal,
		AIRequestsTotal, AIRequestDuration, AITokensTotal,
		TaxonomyMatchesTotal,
		QueriesTotal, RelaxedMatchesTotal, HRJobsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per chi route.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveStage times one pipeline stage.
func ObserveStage(stage string, start time.Time) {
	IntakeStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
