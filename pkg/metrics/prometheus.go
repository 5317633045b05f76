// Package metrics provides Prometheus metrics for the classvoice service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Expression sampling
	samples          *prometheus.CounterVec
	emotions         *prometheus.CounterVec
	detectionLatency prometheus.Histogram

	// Session recording
	eventsEnqueued   prometheus.Counter
	eventsPersisted  prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	messagesLogged   *prometheus.CounterVec
	activeInterfaces prometheus.Gauge
	sessionErrors    *prometheus.CounterVec
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge

	// Audio capture
	recordings           *prometheus.CounterVec
	transcriptionErrors  *prometheus.CounterVec
	transcriptionLatency prometheus.Histogram

	// Speech output
	utterances          prometheus.Counter
	utterancesCancelled prometheus.Counter

	// Collaborators
	textAIRequests *prometheus.CounterVec
	alertsSent     prometheus.Counter
	realtimeErrors prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "classvoice",
		subsystem:        "core",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.samples = m.counterVec("expression_samples_total", "Sampling ticks by outcome (classified, no_face, error)", "outcome")
	m.emotions = m.counterVec("emotions_classified_total", "Classified emotions by label", "label")
	m.detectionLatency = m.histogram("detection_latency_milliseconds", "Single-frame expression inference latency")

	m.eventsEnqueued = m.counter("emotion_events_enqueued_total", "Emotion events accepted by a session recorder")
	m.eventsPersisted = m.counter("emotion_events_persisted_total", "Emotion events written by the persistence collaborator")
	m.eventsDropped = m.counterVec("emotion_events_dropped_total", "Emotion events dropped by reason", "reason")
	m.messagesLogged = m.counterVec("messages_logged_total", "Communication messages persisted by type", "type")
	m.activeInterfaces = m.gauge("active_interfaces", "Mounted student interfaces")
	m.sessionErrors = m.counterVec("session_errors_total", "Session lifecycle failures by stage", "stage")
	m.queueSize = m.gauge("queue_size", "Pending persistence jobs across recorders")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of a recorder persistence queue")

	m.recordings = m.counterVec("recordings_total", "Audio recordings by outcome", "outcome")
	m.transcriptionErrors = m.counterVec("transcription_errors_total", "Transcription failures by kind", "kind")
	m.transcriptionLatency = m.histogram("transcription_latency_milliseconds", "Finalize and transcribe round trip")

	m.utterances = m.counter("utterances_total", "Utterances handed to a speech engine")
	m.utterancesCancelled = m.counter("utterances_cancelled_total", "Utterances cancelled before completion")

	m.textAIRequests = m.counterVec("text_ai_requests_total", "Text-AI requests by action and outcome", "action", "outcome")
	m.alertsSent = m.counter("alerts_sent_total", "Concerning-emotion alerts delivered")
	m.realtimeErrors = m.counter("realtime_publish_errors_total", "Failed realtime publications")

	m.httpRequests = promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_requests_total", Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration", Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Live goroutines")
}

// RecordSample counts one sampling tick outcome.
func RecordSample(outcome string) { globalManager.samples.WithLabelValues(outcome).Inc() }

// RecordEmotion counts one classified label.
func RecordEmotion(label string) { globalManager.emotions.WithLabelValues(label).Inc() }

// RecordDetectionLatency observes inference latency in milliseconds.
func RecordDetectionLatency(ms float64) { globalManager.detectionLatency.Observe(ms) }

// RecordEventEnqueued counts an accepted emotion event.
func RecordEventEnqueued() { globalManager.eventsEnqueued.Inc() }

// RecordEventPersisted counts a stored emotion event.
func RecordEventPersisted() { globalManager.eventsPersisted.Inc() }

// RecordEventDropped counts a dropped emotion event.
func RecordEventDropped(reason string) { globalManager.eventsDropped.WithLabelValues(reason).Inc() }

// RecordMessageLogged counts a stored communication message.
func RecordMessageLogged(messageType string) {
	globalManager.messagesLogged.WithLabelValues(messageType).Inc()
}

// InterfaceMounted increments the active interface gauge.
func InterfaceMounted() { globalManager.activeInterfaces.Inc() }

// InterfaceUnmounted decrements the active interface gauge.
func InterfaceUnmounted() { globalManager.activeInterfaces.Dec() }

// RecordSessionError counts a session lifecycle failure.
func RecordSessionError(stage string) { globalManager.sessionErrors.WithLabelValues(stage).Inc() }

// AddQueueSize adjusts the pending job gauge by delta.
func AddQueueSize(delta int) { globalManager.queueSize.Add(float64(delta)) }

// UpdateQueueCapacity sets the per-recorder queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordRecording counts a recording outcome.
func RecordRecording(outcome string) { globalManager.recordings.WithLabelValues(outcome).Inc() }

// RecordTranscriptionError counts a transcription failure by kind.
func RecordTranscriptionError(kind string) {
	globalManager.transcriptionErrors.WithLabelValues(kind).Inc()
}

// RecordTranscriptionLatency observes the finalize round trip in milliseconds.
func RecordTranscriptionLatency(ms float64) { globalManager.transcriptionLatency.Observe(ms) }

// RecordUtterance counts an utterance handed to an engine.
func RecordUtterance() { globalManager.utterances.Inc() }

// RecordUtteranceCancelled counts a cancelled utterance.
func RecordUtteranceCancelled() { globalManager.utterancesCancelled.Inc() }

// RecordTextAIRequest counts a text-AI call.
func RecordTextAIRequest(action, outcome string) {
	globalManager.textAIRequests.WithLabelValues(action, outcome).Inc()
}

// RecordAlertSent counts a delivered alert.
func RecordAlertSent() { globalManager.alertsSent.Inc() }

// RecordRealtimeError counts a failed realtime publication.
func RecordRealtimeError() { globalManager.realtimeErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
