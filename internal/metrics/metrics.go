package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdigest_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Summarization metrics
	SummaryRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_summary_runs_total",
			Help: "Summary runs by outcome",
		},
		[]string{"outcome"}, // summarized, nothing_pending, no_text, failed
	)

	SummaryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_summary_failures_total",
			Help: "Failed summary runs by failure kind",
		},
		[]string{"kind"},
	)

	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdigest_summary_duration_seconds",
			Help:    "Wall time of a summary run",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	MessagesSummarized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdigest_messages_summarized_total",
			Help: "Messages covered by committed summaries",
		},
	)

	MessagesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdigest_messages_ingested_total",
			Help: "Messages saved to the store",
		},
	)

	ChunksPerReduction = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdigest_chunks_per_reduction",
			Help:    "Number of chunks an oversized corpus was split into",
			Buckets: []float64{2, 3, 4, 6, 8, 12, 16, 32},
		},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_llm_calls_total",
			Help: "Completion calls by phase and result",
		},
		[]string{"phase", "result"}, // phase: single, map; result: ok or failure kind
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdigest_llm_call_duration_seconds",
			Help:    "Completion call latency",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"phase"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdigest_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdigest_store_latency_seconds",
			Help:    "Message store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)
)
