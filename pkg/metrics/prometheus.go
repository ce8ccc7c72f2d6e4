// Package metrics provides Prometheus metrics for the telemetry relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the relay.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Relay path
	messagesReceived prometheus.Counter
	messagesSent     prometheus.Counter
	broadcastsTotal  prometheus.Counter
	protocolErrors   prometheus.Counter
	transportErrors  prometheus.Counter

	// Connections
	producersConnected prometheus.Gauge
	consumersConnected prometheus.Gauge
	connectionsTotal   *prometheus.CounterVec

	// Reconciliation
	recordsImproved    prometheus.Counter
	reconcileThrottled prometheus.Counter
	reconcileRejected  prometheus.Counter

	// Event store
	storeWrites     prometheus.Counter
	storeWriteErrs  prometheus.Counter
	storeLoads      prometheus.Counter
	storeLoadErrs   prometheus.Counter
	externalReloads prometheus.Counter
	pendingWrites   prometheus.Gauge
	residentEvents  prometheus.Gauge

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "acws",
		subsystem:        "relay",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.messagesReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_received_total",
		Help:      "Total number of messages received from producers",
	})

	m.messagesSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "messages_sent_total",
		Help:      "Total number of messages delivered to consumers",
	})

	m.broadcastsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Total number of broadcast fan-out calls (one per accepted sample)",
	})

	m.protocolErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "protocol_errors_total",
		Help:      "Total number of malformed or invalid producer messages",
	})

	m.transportErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transport_errors_total",
		Help:      "Total number of per-recipient send failures during broadcast",
	})

	m.producersConnected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "producers_connected",
		Help:      "Number of currently connected producer connections",
	})

	m.consumersConnected = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "consumers_connected",
		Help:      "Number of currently connected consumer connections",
	})

	m.connectionsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "connections_total",
		Help:      "Total number of connections accepted, by role",
	}, []string{"role"})

	m.recordsImproved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_improved_total",
		Help:      "Total number of accepted best-record improvements",
	})

	m.reconcileThrottled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_throttled_total",
		Help:      "Total number of reconciliations suppressed by the throttle ledger",
	})

	m.reconcileRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_rejected_total",
		Help:      "Total number of candidates rejected as non-improving",
	})

	m.storeWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_writes_total",
		Help:      "Total number of successful event file writes",
	})

	m.storeWriteErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_write_errors_total",
		Help:      "Total number of event file writes abandoned after retries",
	})

	m.storeLoads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_loads_total",
		Help:      "Total number of event files loaded from disk",
	})

	m.storeLoadErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_load_errors_total",
		Help:      "Total number of event file loads that failed or parsed badly",
	})

	m.externalReloads = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_external_reloads_total",
		Help:      "Total number of cache replacements triggered by external file edits",
	})

	m.pendingWrites = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_pending_writes",
		Help:      "Number of event files with a debounced write scheduled",
	})

	m.residentEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_resident_events",
		Help:      "Number of event tables currently resident in the cache",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordMessageReceived increments the received messages counter.
func RecordMessageReceived() { globalManager.messagesReceived.Inc() }

// RecordMessageSent increments the sent messages counter.
func RecordMessageSent() { globalManager.messagesSent.Inc() }

// RecordBroadcast increments the broadcast counter (once per fan-out call).
func RecordBroadcast() { globalManager.broadcastsTotal.Inc() }

// RecordProtocolError increments the protocol error counter.
func RecordProtocolError() { globalManager.protocolErrors.Inc() }

// RecordTransportError increments the per-recipient send failure counter.
func RecordTransportError() { globalManager.transportErrors.Inc() }

// UpdateProducersConnected sets the producer connection gauge.
func UpdateProducersConnected(n int) { globalManager.producersConnected.Set(float64(n)) }

// UpdateConsumersConnected sets the consumer connection gauge.
func UpdateConsumersConnected(n int) { globalManager.consumersConnected.Set(float64(n)) }

// RecordConnection increments the accepted-connection counter for a role.
func RecordConnection(role string) { globalManager.connectionsTotal.WithLabelValues(role).Inc() }

// RecordRecordImproved increments the accepted-improvement counter.
func RecordRecordImproved() { globalManager.recordsImproved.Inc() }

// RecordReconcileThrottled increments the throttle-suppression counter.
func RecordReconcileThrottled() { globalManager.reconcileThrottled.Inc() }

// RecordReconcileRejected increments the non-improving candidate counter.
func RecordReconcileRejected() { globalManager.reconcileRejected.Inc() }

// RecordStoreWrite increments the successful write counter.
func RecordStoreWrite() { globalManager.storeWrites.Inc() }

// RecordStoreWriteError increments the abandoned write counter.
func RecordStoreWriteError() { globalManager.storeWriteErrs.Inc() }

// RecordStoreLoad increments the disk load counter.
func RecordStoreLoad() { globalManager.storeLoads.Inc() }

// RecordStoreLoadError increments the failed load counter.
func RecordStoreLoadError() { globalManager.storeLoadErrs.Inc() }

// RecordExternalReload increments the external-edit reload counter.
func RecordExternalReload() { globalManager.externalReloads.Inc() }

// UpdatePendingWrites sets the pending debounced write gauge.
func UpdatePendingWrites(n int) { globalManager.pendingWrites.Set(float64(n)) }

// UpdateResidentEvents sets the resident event table gauge.
func UpdateResidentEvents(n int) { globalManager.residentEvents.Set(float64(n)) }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
