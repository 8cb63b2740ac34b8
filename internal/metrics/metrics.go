// Package metrics holds the Prometheus collectors for the service. They are
// registered once on the default registry and served at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchwise_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	ConversationSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchwise_conversation_steps_total",
			Help: "Conversation steps by resulting phase.",
		},
		[]string{"phase"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchwise_recommendation_duration_seconds",
			Help:    "End-to-end recommendation pipeline latency.",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"result"},
	)

	RecommendationRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchwise_recommendation_repairs_total",
			Help: "Follow-up generations issued to replace records that failed validation.",
		},
	)

	RecommendationRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchwise_recommendation_rejected_total",
			Help: "Generated records dropped by the post-generation validator, by reason.",
		},
		[]string{"reason"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchwise_llm_calls_total",
			Help: "Generative and embedding provider calls by provider, kind and result.",
		},
		[]string{"provider", "kind", "result"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watchwise_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"name"},
	)

	EmbeddingJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchwise_embedding_jobs_total",
			Help: "Embedding jobs by result (stored, failed, dropped, enqueued).",
		},
		[]string{"result"},
	)

	EmbeddingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchwise_embedding_queue_depth",
			Help: "Embedding jobs waiting for a worker.",
		},
	)

	EnrichmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchwise_enrichment_failures_total",
			Help: "Optional enrichment reads that failed and were skipped, by stage.",
		},
		[]string{"stage"},
	)
)

// ObserveHTTP records one request.
func ObserveHTTP(method, route string, status int, since time.Time) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(since).Seconds())
}
