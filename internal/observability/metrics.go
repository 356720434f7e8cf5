// Package observability owns the Prometheus collectors for the service.
//
// Collectors are package-level and registered once in init(), so any package
// can record into them without threading a registry through constructors.
// The /metrics route (server.go) exposes them through promhttp.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runquest"

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Completed sync runs by kind and outcome.",
	}, []string{"kind", "status"})

	unlocksCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "unlocks_created_total",
		Help:      "Unlock records created by achievement syncs.",
	})

	lastSyncGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync per kind.",
	}, []string{"kind"})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Refresh-token grants by outcome.",
	}, []string{"outcome"})

	upstreamCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests to the activity provider by operation and HTTP status.",
	}, []string{"op", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Inbound HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(
		syncRunsCounter,
		unlocksCreatedCounter,
		lastSyncGauge,
		tokenRefreshCounter,
		upstreamCounter,
		httpDuration,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSync counts one finished sync run.
func RecordSync(kind, status string, finishedAt time.Time) {
	syncRunsCounter.WithLabelValues(kind, status).Inc()
	if status == "succeeded" && !finishedAt.IsZero() {
		lastSyncGauge.WithLabelValues(kind).Set(float64(finishedAt.Unix()))
	}
}

// RecordUnlocks adds n newly created unlock records.
func RecordUnlocks(n int) {
	if n <= 0 {
		return
	}
	unlocksCreatedCounter.Add(float64(n))
}

// RecordTokenRefresh counts a refresh attempt; outcome is "success" or "failure".
func RecordTokenRefresh(outcome string) {
	tokenRefreshCounter.WithLabelValues(outcome).Inc()
}

// RecordUpstream counts one provider request. status 0 means the request
// never got a response (network error, cancelled context).
func RecordUpstream(op string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamCounter.WithLabelValues(op, label).Inc()
}

// ObserveHTTP records the latency of one inbound request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
