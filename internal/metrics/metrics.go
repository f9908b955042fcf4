package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "diagramq"

var (
	TaskSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_submitted_total",
			Help:      "Total number of tasks submitted.",
		},
		[]string{"type"},
	)

	TaskCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completed_total",
			Help:      "Total number of tasks reaching a terminal status.",
		},
		[]string{"type", "status"},
	)

	TaskProcessingLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_processing_latency_seconds",
			Help:      "End-to-end latency from task submission to terminal status (seconds).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"type", "status"},
	)

	StageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of individual pipeline stages (seconds).",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of stage executions that failed the task.",
		},
		[]string{"stage"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of requests rejected by a rate limiter.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		TaskSubmittedTotal,
		TaskCompletedTotal,
		TaskProcessingLatencySeconds,
		StageDurationSeconds,
		StageFailuresTotal,
		RateLimitHitsTotal,
	)
}
