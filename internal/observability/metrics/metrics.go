package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botfleet_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	botOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_bot_operations_total",
		Help: "Count of bot lifecycle operations by action and result",
	}, []string{"action", "result"})

	runningBots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botfleet_running_bots",
		Help: "Number of bots with a tracked live process",
	})

	rosterOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_roster_operations_total",
		Help: "Count of roster reconcile operations by action and result",
	}, []string{"action", "result"})

	linkerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botfleet_linker_call_duration_seconds",
		Help:    "Duration of account-linking collaborator calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	sweepOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botfleet_sweep_operations_total",
		Help: "Count of background sweep actions by sweep and result",
	}, []string{"sweep", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveBotOperation counts a lifecycle action (start/stop/restart/create/delete)
func ObserveBotOperation(action, result string) {
	botOperations.WithLabelValues(action, result).Inc()
}

// ObserveRosterOperation counts a roster reconcile action (add/remove)
func ObserveRosterOperation(action, result string) {
	rosterOperations.WithLabelValues(action, result).Inc()
}

// ObserveLinkerCall records the duration of one collaborator call
func ObserveLinkerCall(operation string, duration time.Duration) {
	linkerCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSweep counts one background sweep action
func ObserveSweep(sweep, result string) {
	sweepOperations.WithLabelValues(sweep, result).Inc()
}

// SetRunningBots sets the running-bot gauge
func SetRunningBots(count int) {
	if count < 0 {
		count = 0
	}
	runningBots.Set(float64(count))
}

// IncrementRunning increments the running-bot gauge
func IncrementRunning() {
	runningBots.Inc()
}

// DecrementRunning decrements the running-bot gauge
func DecrementRunning() {
	runningBots.Dec()
}
