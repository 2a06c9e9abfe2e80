// Package metrics provides Prometheus metrics for the rollcall service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the rollcall service.
type Manager struct {
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Reconciliation
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	submissionsTotal  *prometheus.CounterVec
	membersTotal      prometheus.Gauge
	pointsTotal       prometheus.Gauge
	lastSuccessUnix   prometheus.Gauge
	lockContention    prometheus.Counter
	publishErrors     prometheus.Counter
	sheetReadLatency  *prometheus.HistogramVec
	sheetWriteLatency prometheus.Histogram

	// Trigger queue
	triggersTotal *prometheus.CounterVec
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected *prometheus.CounterVec
	queueDequeued prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Metric name prefixes.
const (
	namespace = "rollcall"
	subsystem = "attendance"
)

// RunBuckets cover reconciliation runs from sub-second to the run timeout.
var RunBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120} //nolint:gochecknoglobals // shared bucket layout

// latencyMSBuckets cover sheet and HTTP latencies in milliseconds.
var latencyMSBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // shared bucket layout

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry), WithHistogramBuckets(RunBuckets))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation runs by result (success, failed, locked)",
	}, []string{"result"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "reconcile_duration_seconds",
		Help:      "Wall time of one reconciliation run including sheet I/O",
		Buckets:   m.histogramBuckets,
	})

	m.submissionsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "submissions_total",
		Help:      "Form submissions seen by reconciliation, by outcome",
	}, []string{"outcome"})

	m.membersTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "members",
		Help:      "Members in the last written record table",
	})

	m.pointsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "points",
		Help:      "Sum of points across all members in the last run",
	})

	m.lastSuccessUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "last_success_unixtime",
		Help:      "Unix time of the last successful reconciliation",
	})

	m.lockContention = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "lock_contention_total",
		Help:      "Runs skipped because another run held the lock",
	})

	m.publishErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "publish_errors_total",
		Help:      "Failures publishing reconciliation notifications",
	})

	m.sheetReadLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sheet_read_milliseconds",
		Help:      "Latency of reading one backing sheet",
		Buckets:   latencyMSBuckets,
	}, []string{"sheet"})

	m.sheetWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "sheet_write_milliseconds",
		Help:      "Latency of replacing the record table",
		Buckets:   latencyMSBuckets,
	})

	m.triggersTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "triggers_total",
		Help:      "Reconciliation triggers accepted, by source",
	}, []string{"source"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trigger_queue_size",
		Help:      "Pending reconciliation triggers",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trigger_queue_capacity",
		Help:      "Capacity of the trigger queue",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trigger_queue_rejected_total",
		Help:      "Triggers rejected by the queue, by reason",
	}, []string{"reason"})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "trigger_queue_dequeued_total",
		Help:      "Triggers handed to the worker",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   latencyMSBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordRun counts a finished run and, unless it was locked out, its duration.
func RecordRun(result string, seconds float64) {
	globalManager.runsTotal.WithLabelValues(result).Inc()
	if result != "locked" {
		globalManager.runDuration.Observe(seconds)
	}
}

// RecordSubmissions adds n submissions with the given outcome.
func RecordSubmissions(outcome string, n int) {
	if n <= 0 {
		return
	}
	globalManager.submissionsTotal.WithLabelValues(outcome).Add(float64(n))
}

// UpdateStandings sets the member and point gauges after a successful write.
func UpdateStandings(members int, points float64, unixTime int64) {
	globalManager.membersTotal.Set(float64(members))
	globalManager.pointsTotal.Set(points)
	globalManager.lastSuccessUnix.Set(float64(unixTime))
}

// RecordLockContention increments the lock contention counter.
func RecordLockContention() {
	globalManager.lockContention.Inc()
}

// RecordPublishError increments the publish error counter.
func RecordPublishError() {
	globalManager.publishErrors.Inc()
}

// RecordSheetRead records the latency of reading one sheet.
func RecordSheetRead(sheet string, latencyMs float64) {
	globalManager.sheetReadLatency.WithLabelValues(sheet).Observe(latencyMs)
}

// RecordSheetWrite records the latency of replacing the record table.
func RecordSheetWrite(latencyMs float64) {
	globalManager.sheetWriteLatency.Observe(latencyMs)
}

// RecordTrigger counts an accepted trigger.
func RecordTrigger(source string) {
	globalManager.triggersTotal.WithLabelValues(source).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a trigger the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
