// Package monitor exposes the gateway's Prometheus metrics: relay request
// outcomes, upstream call counters, pool health gauges and cache size. It
// deliberately imports nothing from the rest of the module so every layer
// (retry engine, upstream clients, cache, controllers) can record into it.
package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grokapi_relay_requests_total",
			Help: "Client requests by relay mode, model and response status",
		},
		[]string{"mode", "model", "code"},
	)

	relayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grokapi_relay_request_duration_seconds",
			Help:    "End to end latency of relayed requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"mode"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grokapi_upstream_requests_total",
			Help: "Upstream calls by endpoint and HTTP status (0 = transport failure)",
		},
		[]string{"endpoint", "status"},
	)

	upstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grokapi_upstream_retries_total",
			Help: "Retried upstream calls by the status that triggered the retry",
		},
		[]string{"status"},
	)

	batchTasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grokapi_batch_tasks_running",
			Help: "Batch maintenance tasks currently executing",
		},
	)

	cacheBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grokapi_cache_bytes",
			Help: "On-disk asset cache size per media type",
		},
		[]string{"media"},
	)
)

// RecordRelayRequest counts one finished client request and observes its
// latency. Client-visible status 0 (stream aborted before headers) is
// reported as-is.
func RecordRelayRequest(start time.Time, mode, model string, statusCode int) {
	relayRequestsTotal.WithLabelValues(mode, model, strconv.Itoa(statusCode)).Inc()
	relayRequestDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// RecordUpstreamRequest counts one upstream HTTP exchange. Pass status 0
// when the transport failed before a response arrived.
func RecordUpstreamRequest(endpoint string, status int) {
	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordUpstreamRetry counts one retry decision of the backoff engine.
func RecordUpstreamRetry(status int) {
	upstreamRetriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// BatchTaskStarted marks one batch task as running until the matching
// BatchTaskDone.
func BatchTaskStarted() { batchTasksRunning.Inc() }

// BatchTaskDone marks one batch task as finished.
func BatchTaskDone() { batchTasksRunning.Dec() }

// SetCacheBytes publishes the current cache directory size for one media
// type.
func SetCacheBytes(media string, size int64) {
	cacheBytes.WithLabelValues(media).Set(float64(size))
}
