// Package metrics provides Prometheus metrics for the guild stats collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Collection run metrics
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	lastRunUnix       prometheus.Gauge
	guildsProcessed   prometheus.Gauge
	guildsSkipped     prometheus.Gauge
	duplicateGuilds   prometheus.Counter
	baselinesCreated  prometheus.Counter
	codexSpent        prometheus.Gauge
	codexPrice        prometheus.Gauge
	playerFetches     prometheus.Counter
	playerFetchErrors prometheus.Counter
	payloadIssues     prometheus.Counter

	// Game API client metrics
	apiRequests       *prometheus.CounterVec
	apiRetries        prometheus.Counter
	apiRequestLatency *prometheus.HistogramVec

	// Queue and worker metrics
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	workerActiveCount prometheus.Gauge
	workerLatency     prometheus.Histogram

	// Store metrics
	storeLatency *prometheus.HistogramVec

	// Read cache metrics
	cacheLookups *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "guildstats",
		subsystem:        "collector",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.runsTotal = m.counterVec("runs_total", "Total number of collection runs by result", "result")
	m.runDuration = m.histogram("run_duration_milliseconds", "Collection run duration in milliseconds")
	m.lastRunUnix = m.gauge("last_run_unix", "Unix timestamp of the last committed collection run")
	m.guildsProcessed = m.gauge("guilds_processed", "Guilds with level data in the last run")
	m.guildsSkipped = m.gauge("guilds_skipped", "Guilds without level data in the last run")
	m.duplicateGuilds = m.counter("duplicate_guilds_total", "Duplicate guild results dropped (first seen wins)")
	m.baselinesCreated = m.counter("baselines_created_total", "Daily baselines created")
	m.codexSpent = m.gauge("codex_spent", "Total codex spent since today's baseline")
	m.codexPrice = m.gauge("codex_price", "Average codex price over the market window")
	m.playerFetches = m.counter("player_fetches_total", "Owner profiles fetched successfully")
	m.playerFetchErrors = m.counter("player_fetch_errors_total", "Owner profile fetches that returned no data")
	m.payloadIssues = m.counter("payload_issues_total", "Malformed fragments skipped while decoding owner profiles")

	m.apiRequests = m.counterVec("api_requests_total", "Game API requests by endpoint and status", "endpoint", "status")
	m.apiRetries = m.counter("api_retries_total", "Game API request retries")
	m.apiRequestLatency = m.histogramVec("api_request_latency_milliseconds", "Game API request latency in milliseconds", "endpoint")

	m.queueSize = m.gauge("queue_size", "Current number of pending fetch jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum fetch queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of fetch jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of fetch jobs dequeued")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of fetch workers currently running")
	m.workerLatency = m.histogram("worker_processing_latency_milliseconds", "Fetch job processing latency in milliseconds")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "op")

	m.cacheLookups = m.counterVec("cache_lookups_total", "Read cache lookups by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordRun records the outcome and duration of a collection run.
func RecordRun(result string, durationMs float64) {
	globalManager.runsTotal.WithLabelValues(result).Inc()
	globalManager.runDuration.Observe(durationMs)
}

// UpdateLastRun sets the timestamp of the last committed run.
func UpdateLastRun(unix int64) {
	globalManager.lastRunUnix.Set(float64(unix))
}

// UpdateGuildCounts sets processed and skipped guild counts for the last run.
func UpdateGuildCounts(processed, skipped int) {
	globalManager.guildsProcessed.Set(float64(processed))
	globalManager.guildsSkipped.Set(float64(skipped))
}

// RecordDuplicateGuild increments the dropped duplicate counter.
func RecordDuplicateGuild() {
	globalManager.duplicateGuilds.Inc()
}

// RecordBaselineCreated increments the baseline counter.
func RecordBaselineCreated() {
	globalManager.baselinesCreated.Inc()
}

// UpdateCodex sets the codex spent total and the price used for the dust estimate.
func UpdateCodex(spent, price float64) {
	globalManager.codexSpent.Set(spent)
	globalManager.codexPrice.Set(price)
}

// RecordPlayerFetch records a single owner profile fetch.
func RecordPlayerFetch(ok bool) {
	if ok {
		globalManager.playerFetches.Inc()
		return
	}
	globalManager.playerFetchErrors.Inc()
}

// RecordPayloadIssues adds skipped payload fragments.
func RecordPayloadIssues(n int) {
	if n > 0 {
		globalManager.payloadIssues.Add(float64(n))
	}
}

// RecordAPIRequest records a game API request.
func RecordAPIRequest(endpoint, status string, latencyMs float64) {
	globalManager.apiRequests.WithLabelValues(endpoint, status).Inc()
	globalManager.apiRequestLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordAPIRetry increments the game API retry counter.
func RecordAPIRetry() {
	globalManager.apiRetries.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records fetch job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordCacheLookup records a read cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.cacheLookups.WithLabelValues(result).Inc()
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
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
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
