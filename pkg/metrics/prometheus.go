// Package metrics provides Prometheus metrics for the cohort review service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the cohort service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Review and ranking metrics
	reviewsUpserted *prometheus.CounterVec
	rankingLatency  *prometheus.HistogramVec
	rankingSize     *prometheus.GaugeVec

	// Lifecycle metrics
	phaseActions     *prometheus.CounterVec
	cutoffsApplied   *prometheus.CounterVec
	cutoffDecisions  *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec

	// Notification metrics
	notifications       *prometheus.CounterVec
	notificationLatency prometheus.Histogram
	dedupeHits          prometheus.Counter

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store metrics
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Histogram
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
		namespace:        "cohort",
		subsystem:        "recruitment",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
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
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.reviewsUpserted = m.counterVec("reviews_upserted_total", "Total number of reviews created or updated", "phase")
	m.rankingLatency = m.histogramVec("ranking_latency_milliseconds", "Time to compute a phase ranking in milliseconds", "phase")
	m.rankingSize = m.gaugeVec("ranking_size", "Number of applicants in the last computed ranking", "phase")

	m.phaseActions = m.counterVec("phase_actions_total", "Phase lifecycle actions by outcome", "action", "result")
	m.cutoffsApplied = m.counterVec("cutoffs_applied_total", "Cutoffs applied by phase and criteria type", "phase", "type")
	m.cutoffDecisions = m.counterVec("cutoff_decisions_total", "Per-applicant cutoff decisions", "phase", "decision")
	m.stageTransitions = m.counterVec("stage_transitions_total", "Application stage moves by cause", "cause")

	m.notifications = m.counterVec("notifications_total", "Notification sends by template and status", "template", "status")
	m.notificationLatency = m.histogram("notification_latency_milliseconds", "Notification send latency in milliseconds")
	m.dedupeHits = m.counter("notification_duplicates_total", "Notification jobs suppressed because an identical job was in flight")

	m.queueSize = m.gauge("queue_size", "Current number of queued notification jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum notification queue capacity")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueTotal = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of jobs rejected by a full or closed queue")

	m.workerCount = m.gauge("worker_count", "Current number of notification workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently processing a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of failed worker jobs")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "driver", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "driver", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")

	m.systemMemory = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutines = m.gauge("system_goroutine_count", "Number of running goroutines")
	m.systemGCPause = m.histogram("system_gc_pause_milliseconds", "Average GC pause time in milliseconds")
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RecordReviewUpsert counts a review write for phase.
func RecordReviewUpsert(phase string) {
	globalManager.reviewsUpserted.WithLabelValues(phase).Inc()
}

// RecordRanking records how long a ranking took and how many rows it had.
func RecordRanking(phase string, size int, took time.Duration) {
	globalManager.rankingLatency.WithLabelValues(phase).Observe(ms(took))
	globalManager.rankingSize.WithLabelValues(phase).Set(float64(size))
}

// RecordPhaseAction counts a lifecycle action and whether it succeeded.
func RecordPhaseAction(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	globalManager.phaseActions.WithLabelValues(action, result).Inc()
}

// RecordCutoffApplied counts an applied cutoff.
func RecordCutoffApplied(phase, criteriaType string) {
	globalManager.cutoffsApplied.WithLabelValues(phase, criteriaType).Inc()
}

// RecordCutoffDecisions adds n decisions of one kind.
func RecordCutoffDecisions(phase, decision string, n int) {
	globalManager.cutoffDecisions.WithLabelValues(phase, decision).Add(float64(n))
}

// RecordStageTransitions adds n stage moves for cause.
func RecordStageTransitions(cause string, n int) {
	globalManager.stageTransitions.WithLabelValues(cause).Add(float64(n))
}

// RecordNotification counts one send and its latency.
func RecordNotification(template, status string, took time.Duration) {
	globalManager.notifications.WithLabelValues(template, status).Inc()
	globalManager.notificationLatency.Observe(ms(took))
}

// RecordNotificationDuplicate counts a suppressed duplicate job.
func RecordNotificationDuplicate() {
	globalManager.dedupeHits.Inc()
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
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long one job took.
func RecordWorkerProcessingLatency(took time.Duration) {
	globalManager.workerProcessingLatency.Observe(ms(took))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordStoreOperation records latency and failure of one store call.
func RecordStoreOperation(driver, operation string, took time.Duration, err error) {
	globalManager.storeLatency.WithLabelValues(driver, operation).Observe(ms(took))
	if err != nil {
		globalManager.storeErrors.WithLabelValues(driver, operation).Inc()
	}
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method string, statusCode int, took time.Duration) {
	code := strconv.Itoa(statusCode)
	globalManager.httpRequests.WithLabelValues(endpoint, method, code).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, code).Observe(ms(took))
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemory.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutines.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPause.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
