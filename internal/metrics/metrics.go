package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "calsync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	entriesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_entries_submitted_total",
			Help:      "Time entries sent to the ledger by outcome.",
		},
		[]string{"outcome"},
	)

	ledgerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_retries_total",
			Help:      "Ledger calls retried after a rate-limit response.",
		},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_runs_total",
			Help:      "Submission runs by flow and result.",
		},
		[]string{"flow", "result"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_run_duration_seconds",
			Help:      "Wall time of submission runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"flow"},
	)
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, entriesSubmitted, ledgerRetries, runs, runDuration)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncEntry(outcome string) {
	entriesSubmitted.WithLabelValues(outcome).Inc()
}

func IncLedgerRetry() {
	ledgerRetries.Inc()
}

// ObserveRun records a finished run. result is "ok", "partial" or "aborted".
func ObserveRun(flow, result string, seconds float64) {
	runs.WithLabelValues(flow, result).Inc()
	runDuration.WithLabelValues(flow).Observe(seconds)
}
