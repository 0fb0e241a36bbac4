// Package metrics defines the Prometheus collectors for the Azure DevOps request pipeline.
//
// Collectors are owned by a Pipeline value registered against a caller-supplied
// registerer, so each dispatcher (and each test) gets its own set.
//
// Request Metrics:
//   - azdo_requests_total{method, status} (Counter): Attempts by HTTP method and status
//   - azdo_request_duration_seconds{method} (Histogram): Attempt duration
//   - azdo_errors_total{class} (Counter): Failed attempts by class (client, server, rate_limit, network, auth)
//
// Retry Metrics:
//   - azdo_retries_total{error_class} (Counter): Retries scheduled
//   - azdo_retry_backoff_seconds{error_class} (Histogram): Backoff before a retry
//   - azdo_retry_exhausted_total{error_class} (Counter): Calls that ran out of retries
//   - azdo_auth_refreshes_total{result} (Counter): Credential refreshes (success, failure)
//
// Queue Metrics:
//   - azdo_queue_depth (Gauge): Calls waiting in the FIFO queue
//   - azdo_deferred_calls (Gauge): Calls sleeping out a backoff
//   - azdo_inflight_calls (Gauge): Calls currently executing
//   - azdo_rate_limit_waits_total (Counter): Times the drain loop waited for a window slot
//   - azdo_rate_limit_wait_seconds (Histogram): Length of those waits
//
// Service Metrics:
//   - azdo_service_rate_remaining (Gauge): Last X-RateLimit-Remaining seen
//   - azdo_service_throttle_delay_seconds (Histogram): X-RateLimit-Delay values seen
//
// Example Prometheus Queries:
//
//	# Retry rate by class
//	sum by (error_class) (rate(azdo_retries_total[5m]))
//
//	# Backlog
//	azdo_queue_depth + azdo_deferred_calls
//
//	# P95 attempt latency
//	histogram_quantile(0.95, rate(azdo_request_duration_seconds_bucket[5m]))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the collectors updated by the dispatcher.
type Pipeline struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ErrorsTotal         *prometheus.CounterVec
	RetriesTotal        *prometheus.CounterVec
	RetryBackoffSeconds *prometheus.HistogramVec
	RetryExhaustedTotal *prometheus.CounterVec
	AuthRefreshesTotal  *prometheus.CounterVec

	QueueDepth           prometheus.Gauge
	DeferredCalls        prometheus.Gauge
	InFlightCalls        prometheus.Gauge
	RateLimitWaitsTotal  prometheus.Counter
	RateLimitWaitSeconds prometheus.Histogram

	ServiceRateRemaining  prometheus.Gauge
	ServiceThrottleDelays prometheus.Histogram
}

// New creates and registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)

	return &Pipeline{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "azdo_requests_total",
			Help: "Total Azure DevOps request attempts by method and status",
		}, []string{"method", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "azdo_request_duration_seconds",
			Help:    "Azure DevOps request attempt duration in seconds by method",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "azdo_errors_total",
			Help: "Total failed Azure DevOps attempts by error class",
		}, []string{"class"}),

		RetriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "azdo_retries_total",
			Help: "Total number of retries scheduled by error class",
		}, []string{"error_class"}),

		RetryBackoffSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "azdo_retry_backoff_seconds",
			Help:    "Backoff duration before a retry by error class",
			Buckets: []float64{0.5, 1, 2, 4, 8, 30, 60},
		}, []string{"error_class"}),

		RetryExhaustedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "azdo_retry_exhausted_total",
			Help: "Total number of calls that exhausted their retries by error class",
		}, []string{"error_class"}),

		AuthRefreshesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "azdo_auth_refreshes_total",
			Help: "Total credential refresh attempts by result",
		}, []string{"result"}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "azdo_queue_depth",
			Help: "Number of calls waiting in the dispatch queue",
		}),

		DeferredCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "azdo_deferred_calls",
			Help: "Number of calls waiting out a retry backoff",
		}),

		InFlightCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "azdo_inflight_calls",
			Help: "Number of calls currently executing",
		}),

		RateLimitWaitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "azdo_rate_limit_waits_total",
			Help: "Total number of times dispatch waited for a rate window slot",
		}),

		RateLimitWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "azdo_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate window slot",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60},
		}),

		ServiceRateRemaining: f.NewGauge(prometheus.GaugeOpts{
			Name: "azdo_service_rate_remaining",
			Help: "Last X-RateLimit-Remaining value reported by Azure DevOps",
		}),

		ServiceThrottleDelays: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "azdo_service_throttle_delay_seconds",
			Help:    "X-RateLimit-Delay values reported by Azure DevOps",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		}),
	}
}

// NewUnregistered creates collectors on a throwaway registry. Used when the
// caller does not expose metrics, and in tests.
func NewUnregistered() *Pipeline {
	return New(prometheus.NewRegistry())
}
