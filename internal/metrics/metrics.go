// Package metrics provides Prometheus metrics for the insights pipeline and
// the trends client.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cpgtrends"

var (
	// AIRequestsTotal counts generative API requests by kind (chunk, merge,
	// summary) and outcome.
	AIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Total number of generative API requests",
		},
		[]string{"kind", "outcome"},
	)

	// RateLimitedTotal counts 429 answers that triggered a cooldown.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_rate_limited_total",
			Help:      "Total number of rate limited generative API requests",
		},
	)

	// RunsTotal counts finished pipeline runs by terminal state.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_runs_total",
			Help:      "Total number of finished insight runs",
		},
		[]string{"state"},
	)

	// RunDuration measures pipeline run duration.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_run_duration_seconds",
			Help:      "Duration of insight runs in seconds",
			Buckets:   []float64{1, 10, 60, 180, 600, 1800, 3600},
		},
	)

	// ChunksPerRun observes how many chunks each CSV produced.
	ChunksPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_chunks_per_run",
			Help:      "Distribution of chunk counts per run",
			Buckets:   []float64{1, 2, 3, 5, 10, 25, 50},
		},
	)

	// TrendsRequestsTotal counts trends backend lookups by endpoint and
	// outcome (hit, miss, error).
	TrendsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trends_requests_total",
			Help:      "Total number of trends backend lookups",
		},
		[]string{"endpoint", "outcome"},
	)

	// HTTPRequestsTotal counts served HTTP requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)
)

func RecordAIRequest(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	AIRequestsTotal.WithLabelValues(kind, outcome).Inc()
}

func RecordRun(state string, seconds float64, chunks int) {
	RunsTotal.WithLabelValues(state).Inc()
	RunDuration.Observe(seconds)
	if chunks > 0 {
		ChunksPerRun.Observe(float64(chunks))
	}
}

func RecordTrendsLookup(endpoint, outcome string) {
	TrendsRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func RecordHTTPRequest(method, route string, status int) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
