package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	agentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_runs_total",
			Help: "Total number of question runs by terminal outcome.",
		},
		[]string{"outcome"},
	)
	agentRunAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_run_regenerations",
			Help:    "Number of query regenerations a run needed before terminating.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
	agentNodeExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_node_executions_total",
			Help: "Total number of state machine node executions.",
		},
		[]string{"node"},
	)
	sqlExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_sql_executions_total",
			Help: "Total number of generated SQL statements executed, by kind and status.",
		},
		[]string{"kind", "status"},
	)
	sqlExecutionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_sql_execution_latency_ms",
			Help:    "Generated SQL execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_model_calls_total",
			Help: "Total number of language model calls by provider and status.",
		},
		[]string{"provider", "status"},
	)
	modelCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlagent_model_call_latency_ms",
			Help:    "Language model call latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)
	archiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_archive_writes_total",
			Help: "Total number of session archive writes by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		agentRunsTotal,
		agentRunAttempts,
		agentNodeExecutionsTotal,
		sqlExecutionsTotal,
		sqlExecutionLatencyMs,
		modelCallsTotal,
		modelCallLatencyMs,
		archiveWritesTotal,
	)
}

func ObserveRun(outcome string, attempts int) {
	agentRunsTotal.WithLabelValues(outcome).Inc()
	if attempts < 0 {
		attempts = 0
	}
	agentRunAttempts.Observe(float64(attempts))
}

func IncrementNodeExecution(node string) {
	agentNodeExecutionsTotal.WithLabelValues(node).Inc()
}

func ObserveSQLExecution(kind string, failed bool, elapsed time.Duration) {
	sqlExecutionsTotal.WithLabelValues(kind, statusLabel(failed)).Inc()
	sqlExecutionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveModelCall(provider string, failed bool, elapsed time.Duration) {
	modelCallsTotal.WithLabelValues(provider, statusLabel(failed)).Inc()
	modelCallLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func ObserveArchiveWrite(failed bool) {
	archiveWritesTotal.WithLabelValues(statusLabel(failed)).Inc()
}

func statusLabel(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}
