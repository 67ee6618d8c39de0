package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Round metrics
	RoundsTotal    *prometheus.CounterVec
	RoundsActive   prometheus.Gauge
	RoundDuration  *prometheus.HistogramVec
	LocalFallbacks prometheus.Counter

	// Chunk metrics
	ChunksDispatchedTotal prometheus.Counter
	ChunksCompletedTotal  prometheus.Counter
	ChunksTimedOutTotal   *prometheus.CounterVec
	ChunkRoundTrip        prometheus.Histogram

	// Discovery metrics
	DiscoverySweepsTotal   prometheus.Counter
	DiscoveryWorkersFound  prometheus.Histogram
	DiscoverySweepDuration prometheus.Histogram

	// Worker pool / scheduling metrics
	WorkersBlacklistedTotal prometheus.Counter
	WorkerQueueDepth        prometheus.Gauge

	// Audit ledger metrics
	AuditWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		RoundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parallelogram_rounds_total",
				Help: "Total dispatch rounds initiated, by operation",
			},
			[]string{"operation"},
		),

		RoundsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "parallelogram_rounds_active",
				Help: "Currently in-flight dispatch rounds",
			},
		),

		RoundDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parallelogram_round_duration_seconds",
				Help:    "Dispatch round completion time distribution",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),

		LocalFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parallelogram_local_fallbacks_total",
				Help: "Rounds that ran entirely locally for lack of discovered workers",
			},
		),

		ChunksDispatchedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parallelogram_chunks_dispatched_total",
				Help: "Total chunk requests sent to workers",
			},
		),

		ChunksCompletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parallelogram_chunks_completed_total",
				Help: "Total chunk responses received successfully",
			},
		),

		ChunksTimedOutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parallelogram_chunks_timed_out_total",
				Help: "Chunk requests that exceeded their deadline, by reassignment reason",
			},
			[]string{"reason"},
		),

		ChunkRoundTrip: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parallelogram_chunk_round_trip_seconds",
				Help:    "Per-chunk latency from a worker queuing a request to writing its response",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
			},
		),

		DiscoverySweepsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parallelogram_discovery_sweeps_total",
				Help: "Multicast discovery sweeps performed",
			},
		),

		DiscoveryWorkersFound: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parallelogram_discovery_workers_found",
				Help:    "Distribution of worker counts found per discovery sweep",
				Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
			},
		),

		DiscoverySweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parallelogram_discovery_sweep_duration_seconds",
				Help:    "Discovery sweep wall-clock latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		),

		WorkersBlacklistedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "parallelogram_workers_blacklisted_total",
				Help: "Workers excluded from assignment after repeated timeouts",
			},
		),

		WorkerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "parallelogram_worker_queue_depth",
				Help: "Pending chunk requests in this process's worker queue",
			},
		),

		AuditWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parallelogram_audit_writes_total",
				Help: "Audit ledger record writes, by result",
			},
			[]string{"result"},
		),
	}

	return m
}

// RecordRoundStart increments active-round gauges for the given operation.
func (m *Metrics) RecordRoundStart(operation string) {
	m.RoundsTotal.WithLabelValues(operation).Inc()
	m.RoundsActive.Inc()
}

// RecordRoundComplete records round completion metrics.
func (m *Metrics) RecordRoundComplete(operation string, durationSeconds float64, localFallback bool) {
	m.RoundsActive.Dec()
	m.RoundDuration.WithLabelValues(operation).Observe(durationSeconds)
	if localFallback {
		m.LocalFallbacks.Inc()
	}
}

// RecordChunkDispatched increments the dispatched-chunk counter.
func (m *Metrics) RecordChunkDispatched() {
	m.ChunksDispatchedTotal.Inc()
}

// RecordChunkCompleted records a chunk's successful round trip.
func (m *Metrics) RecordChunkCompleted(durationSeconds float64) {
	m.ChunksCompletedTotal.Inc()
	m.ChunkRoundTrip.Observe(durationSeconds)
}

// RecordChunkTimeout increments the timed-out-chunk counter for reason.
func (m *Metrics) RecordChunkTimeout(reason string) {
	m.ChunksTimedOutTotal.WithLabelValues(reason).Inc()
}

// RecordDiscoverySweep records one discovery sweep's outcome.
func (m *Metrics) RecordDiscoverySweep(workersFound int, durationSeconds float64) {
	m.DiscoverySweepsTotal.Inc()
	m.DiscoveryWorkersFound.Observe(float64(workersFound))
	m.DiscoverySweepDuration.Observe(durationSeconds)
}

// RecordWorkerBlacklisted increments the blacklisted-worker counter.
func (m *Metrics) RecordWorkerBlacklisted() {
	m.WorkersBlacklistedTotal.Inc()
}

// SetWorkerQueueDepth sets the current worker queue depth gauge.
func (m *Metrics) SetWorkerQueueDepth(depth int) {
	m.WorkerQueueDepth.Set(float64(depth))
}

// RecordAuditWrite increments the audit-write counter for result ("ok" or "error").
func (m *Metrics) RecordAuditWrite(success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.AuditWritesTotal.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
