// Package monitoring exposes Prometheus metrics for the hub on a
// dedicated registry.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus-compatible metrics collection
type Metrics struct {
	// Registry metrics
	nodesByStatus   *prometheus.GaugeVec
	registrations   prometheus.Counter
	heartbeats      prometheus.Counter
	deregistrations prometheus.Counter
	demotions       prometheus.Counter

	// Hub metrics
	eventsPublished *prometheus.CounterVec

	// Request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Storage metrics
	storageOperations *prometheus.CounterVec
	storageLatency    *prometheus.HistogramVec

	namespace string
	registry  *prometheus.Registry
}

// NewMetrics creates a metrics instance on its own registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nishub"
	}

	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	m.initRegistryMetrics(namespace)
	m.initHubMetrics(namespace)
	m.initRequestMetrics(namespace)
	m.initStorageMetrics(namespace)
	m.registerMetrics()

	return m
}

func (m *Metrics) initRegistryMetrics(namespace string) {
	m.nodesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Number of registered nodes by status",
		},
		[]string{"status"},
	)

	m.registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Total number of node registrations accepted",
		},
	)

	m.heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeats accepted",
		},
	)

	m.deregistrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deregistrations_total",
			Help:      "Total number of node deregistrations",
		},
	)

	m.demotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "demotions_total",
			Help:      "Total number of nodes demoted to offline by the monitor",
		},
	)
}

func (m *Metrics) initHubMetrics(namespace string) {
	m.eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published through the hub",
		},
		[]string{"kind"},
	)
}

// HubStats is the counter snapshot the hub collector reads
type HubStats struct {
	Subscribers    int
	DroppedEvents  uint64
	LagDisconnects uint64
}

// RegisterHubStats registers collectors that read live hub counters on
// every scrape. Call once after the hub exists.
func (m *Metrics) RegisterHubStats(stats func() HubStats) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "subscribers",
			Help:      "Number of active hub subscribers",
		},
		func() float64 { return float64(stats().Subscribers) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped from lagging subscriber queues",
		},
		func() float64 { return float64(stats().DroppedEvents) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "lag_disconnects_total",
			Help:      "Total number of subscribers force-disconnected for lagging",
		},
		func() float64 { return float64(stats().LagDisconnects) },
	))
}

func (m *Metrics) initRequestMetrics(namespace string) {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"method", "endpoint"},
	)
}

func (m *Metrics) initStorageMetrics(namespace string) {
	m.storageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	m.storageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"operation"},
	)
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.nodesByStatus)
	m.registry.MustRegister(m.registrations)
	m.registry.MustRegister(m.heartbeats)
	m.registry.MustRegister(m.deregistrations)
	m.registry.MustRegister(m.demotions)

	m.registry.MustRegister(m.eventsPublished)

	m.registry.MustRegister(m.requestsTotal)
	m.registry.MustRegister(m.requestDuration)

	m.registry.MustRegister(m.storageOperations)
	m.registry.MustRegister(m.storageLatency)
}

// SetNodeCount sets the gauge for one membership status
func (m *Metrics) SetNodeCount(status string, count int) {
	m.nodesByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordRegistration counts an accepted registration
func (m *Metrics) RecordRegistration() {
	m.registrations.Inc()
}

// RecordHeartbeat counts an accepted heartbeat
func (m *Metrics) RecordHeartbeat() {
	m.heartbeats.Inc()
}

// RecordDeregistration counts a deregistration
func (m *Metrics) RecordDeregistration() {
	m.deregistrations.Inc()
}

// RecordDemotions counts nodes demoted by a monitor sweep
func (m *Metrics) RecordDemotions(count int) {
	m.demotions.Add(float64(count))
}

// RecordEventPublished counts a published event by kind
func (m *Metrics) RecordEventPublished(kind string) {
	m.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	m.storageOperations.WithLabelValues(operation, status).Inc()
	m.storageLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
