package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tickvault/tickvault/internal/config"
)

// Manager defines the interface for metrics management
type Manager interface {
	// Capture metrics
	RecordFrame()
	RecordDecodedRecord(kind string)
	RecordDecodeError()
	RecordDroppedRecord()

	// Store metrics
	RecordUpsert(kind string, success bool, duration time.Duration)
	RecordStreamAppend()
	UpdateOpenStreams(count int)
	UpdateBufferedRecords(count int)

	// System metrics
	UpdateSystemMetrics(cpuPercent float64, memoryUsed, diskUsed, diskFree uint64)

	// Export and health
	GetMetricsHandler() http.Handler
	IsHealthy() bool

	// Lifecycle
	Start(ctx context.Context) error
	Stop() error
}

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	// Configuration
	config  MetricsConfig
	tracker *SystemTracker

	// Prometheus registry and metrics
	registry *prometheus.Registry

	// Capture Metrics
	framesTotal       prometheus.Counter
	recordsTotal      *prometheus.CounterVec
	decodeErrorsTotal prometheus.Counter
	droppedTotal      prometheus.Counter

	// Store Metrics
	upsertsTotal       *prometheus.CounterVec
	upsertDuration     *prometheus.HistogramVec
	streamAppendsTotal prometheus.Counter
	openStreams        prometheus.Gauge
	bufferedRecords    prometheus.Gauge

	// System Metrics
	systemCPUUsage   prometheus.Gauge
	systemMemoryUsed prometheus.Gauge
	dataDirDiskUsed  prometheus.Gauge
	dataDirDiskFree  prometheus.Gauge

	// Lifecycle
	started bool
	stopCh  chan struct{}
	mu      sync.RWMutex
}

// MetricsConfig holds configuration for the metrics system
type MetricsConfig struct {
	Enabled   bool          `json:"enabled"`
	Path      string        `json:"path"`
	Namespace string        `json:"namespace"`
	Interval  time.Duration `json:"interval"`
}

// NewManager creates a new metrics manager
func NewManager(cfg config.MetricsConfig, tracker *SystemTracker) Manager {
	metricsConfig := MetricsConfig{
		Enabled:   cfg.Enable,
		Path:      cfg.Path,
		Namespace: "tickvault",
		Interval:  time.Duration(cfg.Interval) * time.Second,
	}

	if !metricsConfig.Enabled {
		return &noopManager{}
	}

	if metricsConfig.Path == "" {
		metricsConfig.Path = "/metrics"
	}
	if metricsConfig.Interval == 0 {
		metricsConfig.Interval = 15 * time.Second
	}

	registry := prometheus.NewRegistry()

	manager := &metricsManager{
		config:   metricsConfig,
		tracker:  tracker,
		registry: registry,
	}

	manager.initializeMetrics()
	return manager
}

// initializeMetrics sets up all Prometheus metrics
func (m *metricsManager) initializeMetrics() {
	namespace := m.config.Namespace

	// Capture Metrics
	m.framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "frames_total",
			Help:      "Total number of websocket frames received",
		},
	)

	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "records_total",
			Help:      "Total number of records decoded",
		},
		[]string{"kind"},
	)

	m.decodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "decode_errors_total",
			Help:      "Total number of payloads that failed to decode",
		},
	)

	m.droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "dropped_records_total",
			Help:      "Total number of records dropped due to backpressure",
		},
	)

	// Store Metrics
	m.upsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upserts_total",
			Help:      "Total number of upsert operations",
		},
		[]string{"kind", "status"},
	)

	m.upsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "upsert_duration_seconds",
			Help:      "Upsert operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	m.streamAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stream_appends_total",
			Help:      "Total number of lines appended to stream writers",
		},
	)

	m.openStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "open_streams",
			Help:      "Number of open stream writer handles",
		},
	)

	m.bufferedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "buffered_records",
			Help:      "Number of records buffered awaiting flush",
		},
	)

	// System Metrics
	m.systemCPUUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "cpu_usage_percent",
			Help:      "System CPU usage percentage",
		},
	)

	m.systemMemoryUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_used_bytes",
			Help:      "System memory used in bytes",
		},
	)

	m.dataDirDiskUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "data_dir_disk_used_bytes",
			Help:      "Disk bytes used on the data directory filesystem",
		},
	)

	m.dataDirDiskFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "data_dir_disk_free_bytes",
			Help:      "Disk bytes free on the data directory filesystem",
		},
	)

	// Register all metrics
	m.registerMetrics()
}

// registerMetrics registers all metrics with the Prometheus registry
func (m *metricsManager) registerMetrics() {
	metrics := []prometheus.Collector{
		// Capture
		m.framesTotal,
		m.recordsTotal,
		m.decodeErrorsTotal,
		m.droppedTotal,

		// Store
		m.upsertsTotal,
		m.upsertDuration,
		m.streamAppendsTotal,
		m.openStreams,
		m.bufferedRecords,

		// System
		m.systemCPUUsage,
		m.systemMemoryUsed,
		m.dataDirDiskUsed,
		m.dataDirDiskFree,
	}

	for _, metric := range metrics {
		m.registry.MustRegister(metric)
	}
}

// Capture Metrics Implementation

func (m *metricsManager) RecordFrame() {
	m.framesTotal.Inc()
}

func (m *metricsManager) RecordDecodedRecord(kind string) {
	m.recordsTotal.WithLabelValues(kind).Inc()
}

func (m *metricsManager) RecordDecodeError() {
	m.decodeErrorsTotal.Inc()
}

func (m *metricsManager) RecordDroppedRecord() {
	m.droppedTotal.Inc()
}

// Store Metrics Implementation

func (m *metricsManager) RecordUpsert(kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.upsertsTotal.WithLabelValues(kind, status).Inc()
	m.upsertDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *metricsManager) RecordStreamAppend() {
	m.streamAppendsTotal.Inc()
}

func (m *metricsManager) UpdateOpenStreams(count int) {
	m.openStreams.Set(float64(count))
}

func (m *metricsManager) UpdateBufferedRecords(count int) {
	m.bufferedRecords.Set(float64(count))
}

// System Metrics Implementation

func (m *metricsManager) UpdateSystemMetrics(cpuPercent float64, memoryUsed, diskUsed, diskFree uint64) {
	m.systemCPUUsage.Set(cpuPercent)
	m.systemMemoryUsed.Set(float64(memoryUsed))
	m.dataDirDiskUsed.Set(float64(diskUsed))
	m.dataDirDiskFree.Set(float64(diskFree))
}

// Export and Health Implementation

func (m *metricsManager) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsManager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Lifecycle Implementation

func (m *metricsManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("metrics manager already started")
	}

	m.started = true
	m.stopCh = make(chan struct{})

	if m.tracker != nil {
		go m.collectLoop(ctx, m.stopCh)
	}
	return nil
}

func (m *metricsManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("metrics manager not started")
	}

	m.started = false
	close(m.stopCh)
	return nil
}

// collectLoop periodically samples system metrics via the tracker
func (m *metricsManager) collectLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.collectSystem()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.collectSystem()
		}
	}
}

// collectSystem samples cpu, memory, and data-dir disk usage.
// Collection errors are ignored; gauges keep their last value.
func (m *metricsManager) collectSystem() {
	if v, err := m.tracker.GetCPUUsage(); err == nil {
		m.systemCPUUsage.Set(v)
	}
	if mem, err := m.tracker.GetMemoryUsage(); err == nil {
		m.systemMemoryUsed.Set(float64(mem.UsedBytes))
	}
	if d, err := m.tracker.GetDiskUsage(); err == nil {
		m.dataDirDiskUsed.Set(float64(d.UsedBytes))
		m.dataDirDiskFree.Set(float64(d.FreeBytes))
	}
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

func (n *noopManager) RecordFrame() {}
func (n *noopManager) RecordDecodedRecord(kind string) {}
func (n *noopManager) RecordDecodeError() {}
func (n *noopManager) RecordDroppedRecord() {}
func (n *noopManager) RecordUpsert(kind string, success bool, duration time.Duration) {}
func (n *noopManager) RecordStreamAppend() {}
func (n *noopManager) UpdateOpenStreams(count int) {}
func (n *noopManager) UpdateBufferedRecords(count int) {}
func (n *noopManager) UpdateSystemMetrics(cpuPercent float64, memoryUsed, diskUsed, diskFree uint64) {}
func (n *noopManager) GetMetricsHandler() http.Handler { return http.NotFoundHandler() }
func (n *noopManager) IsHealthy() bool { return true }
func (n *noopManager) Start(ctx context.Context) error { return nil }
func (n *noopManager) Stop() error { return nil }
