// Package metrics provides Prometheus metrics for the talentsync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Reconciliation
	syncRuns          *prometheus.CounterVec
	syncItems         *prometheus.CounterVec
	syncRunDuration   prometheus.Histogram
	syncLastProcessed prometheus.Gauge
	syncLastSuccess   prometheus.Gauge

	// Authorization and locking
	authzDecisions *prometheus.CounterVec
	lockContention prometheus.Counter

	// Directory cache
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheSize   prometheus.Gauge

	// Change feed
	changeEvents       *prometheus.CounterVec
	changeQueueSize    prometheus.Gauge
	changeQueueDropped prometheus.Counter

	// Storage and archive
	storeLatency   *prometheus.HistogramVec
	archiveUploads *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "talentsync",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	m.syncRuns = auto.NewCounterVec(m.counterOpts("sync_runs_total",
		"Reconciliation invocations by outcome"), []string{"outcome"})
	m.syncItems = auto.NewCounterVec(m.counterOpts("sync_items_total",
		"Reconciled submissions by per-item status"), []string{"status"})
	m.syncRunDuration = auto.NewHistogram(m.histogramOpts("sync_run_duration_milliseconds",
		"Wall time of a reconciliation run in milliseconds", latencyBuckets))
	m.syncLastProcessed = auto.NewGauge(m.gaugeOpts("sync_last_processed",
		"Pending submissions seen by the most recent run"))
	m.syncLastSuccess = auto.NewGauge(m.gaugeOpts("sync_last_success_unixtime",
		"Unix time of the most recent completed run"))

	m.authzDecisions = auto.NewCounterVec(m.counterOpts("authz_decisions_total",
		"Authorization decisions by action and effect"), []string{"action", "decision"})
	m.lockContention = auto.NewCounter(m.counterOpts("sync_lock_contention_total",
		"Runs rejected because another run held the lock"))

	m.cacheHits = auto.NewCounter(m.counterOpts("directory_cache_hits_total",
		"Directory cache hits"))
	m.cacheMisses = auto.NewCounter(m.counterOpts("directory_cache_misses_total",
		"Directory cache misses"))
	m.cacheSize = auto.NewGauge(m.gaugeOpts("directory_cache_entries",
		"Entries currently held by the directory cache"))

	m.changeEvents = auto.NewCounterVec(m.counterOpts("change_events_total",
		"Change-feed events consumed by table and operation"), []string{"table", "op"})
	m.changeQueueSize = auto.NewGauge(m.gaugeOpts("change_queue_size",
		"Change events waiting to be consumed"))
	m.changeQueueDropped = auto.NewCounter(m.counterOpts("change_queue_dropped_total",
		"Change events dropped because the queue was full or closed"))

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_operation_latency_milliseconds",
		"Store operation latency in milliseconds", latencyBuckets), []string{"backend", "op"})
	m.archiveUploads = auto.NewCounterVec(m.counterOpts("archive_uploads_total",
		"Summary archive uploads by result"), []string{"result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_seconds",
		"HTTP request duration in seconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
}

// RecordSyncRun counts one reconciliation invocation by outcome
// (success, unauthorized, forbidden, check_failed, locked, error).
func RecordSyncRun(outcome string) {
	globalManager.syncRuns.WithLabelValues(outcome).Inc()
}

// RecordSyncItem counts one per-item result.
func RecordSyncItem(status string) {
	globalManager.syncItems.WithLabelValues(status).Inc()
}

// RecordSyncRunDuration observes run wall time in milliseconds.
func RecordSyncRunDuration(ms float64) {
	globalManager.syncRunDuration.Observe(ms)
}

// UpdateSyncLastProcessed sets the processed count of the latest run.
func UpdateSyncLastProcessed(n int) {
	globalManager.syncLastProcessed.Set(float64(n))
}

// MarkSyncSuccess stamps the time of the latest completed run.
func MarkSyncSuccess(unixSeconds int64) {
	globalManager.syncLastSuccess.Set(float64(unixSeconds))
}

// RecordAuthzDecision counts a policy decision.
func RecordAuthzDecision(action, decision string) {
	globalManager.authzDecisions.WithLabelValues(action, decision).Inc()
}

// RecordLockContention counts a run rejected by the run lock.
func RecordLockContention() {
	globalManager.lockContention.Inc()
}

// RecordCacheHit increments the directory cache hit counter.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss increments the directory cache miss counter.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheSize sets the number of cached directory entries.
func UpdateCacheSize(n int) {
	globalManager.cacheSize.Set(float64(n))
}

// RecordChangeEvent counts a consumed change-feed event.
func RecordChangeEvent(table, op string) {
	globalManager.changeEvents.WithLabelValues(table, op).Inc()
}

// UpdateChangeQueueSize sets the change queue depth.
func UpdateChangeQueueSize(n int) {
	globalManager.changeQueueSize.Set(float64(n))
}

// RecordChangeQueueDrop counts a change event that could not be enqueued.
func RecordChangeQueueDrop() {
	globalManager.changeQueueDropped.Inc()
}

// RecordStoreLatency observes a store operation latency in milliseconds.
func RecordStoreLatency(backend, op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(ms)
}

// RecordArchiveUpload counts a summary upload attempt by result.
func RecordArchiveUpload(result string) {
	globalManager.archiveUploads.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
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
