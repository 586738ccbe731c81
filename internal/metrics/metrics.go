package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stage duration (seconds)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutes_stage_duration_seconds",
			Help:    "Workflow stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"stage", "outcome"},
	)

	// LLM call latency (milliseconds)
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minutes_llm_call_latency_ms",
			Help:    "LLM inference call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"operation", "status"},
	)

	ActionResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_action_results_total",
			Help: "Total number of executed meeting actions",
		},
		[]string{"action_type", "status"},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minutes_broadcast_dropped_total",
			Help: "Events evicted from full subscriber queues",
		},
	)

	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minutes_broadcast_subscribers",
			Help: "Currently attached event stream subscribers",
		},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minutes_runs_total",
			Help: "Total number of workflow runs by terminal outcome",
		},
		[]string{"outcome"}, // outcome: complete, error, cancelled
	)
)

func RecordStageDuration(stage, outcome string, d time.Duration) {
	StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func RecordLLMCallLatency(operation, status string, d time.Duration) {
	LLMCallLatency.WithLabelValues(operation, status).Observe(float64(d.Milliseconds()))
}

func IncrementActionResult(actionType, status string) {
	ActionResults.WithLabelValues(actionType, status).Inc()
}

func RecordBroadcastDropped(n int) {
	BroadcastDropped.Add(float64(n))
}

func SetSubscribers(n int) {
	Subscribers.Set(float64(n))
}

func IncrementRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}
