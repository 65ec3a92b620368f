package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	remoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunefetch_remote_requests_total",
			Help: "Total number of remote API requests by operation and status code.",
		},
		[]string{"operation", "status"},
	)
	remoteRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dunefetch_remote_request_duration_seconds",
			Help:    "Remote API request latency by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	pollAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dunefetch_poll_attempts_total",
			Help: "Total number of execution status checks issued while waiting.",
		},
	)
	executionWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dunefetch_execution_wait_seconds",
			Help:    "Time spent waiting for a remote execution to reach a terminal state.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunefetch_executions_total",
			Help: "Total number of fetch runs by outcome.",
		},
		[]string{"outcome"},
	)
	resultRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dunefetch_result_rows",
			Help: "Number of rows in the most recently fetched result set.",
		},
	)
	exportWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dunefetch_export_writes_total",
			Help: "Total number of sink writes by sink and status.",
		},
		[]string{"sink", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		remoteRequestsTotal,
		remoteRequestDurationSeconds,
		pollAttemptsTotal,
		executionWaitSeconds,
		executionsTotal,
		resultRows,
		exportWritesTotal,
	)
}

// ObserveRemoteRequest records one remote call. A zero status means no
// response was received.
func ObserveRemoteRequest(operation string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	remoteRequestsTotal.WithLabelValues(operation, label).Inc()
	remoteRequestDurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func IncrementPollAttempts() {
	pollAttemptsTotal.Inc()
}

func ObserveExecutionWait(elapsed time.Duration) {
	executionWaitSeconds.Observe(elapsed.Seconds())
}

func ObserveExecutionOutcome(outcome string) {
	executionsTotal.WithLabelValues(outcome).Inc()
}

func SetResultRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	resultRows.Set(float64(rows))
}

func ObserveExportWrite(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	exportWritesTotal.WithLabelValues(sink, status).Inc()
}
