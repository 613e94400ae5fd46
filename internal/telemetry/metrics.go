// Package telemetry holds the Prometheus metrics and the OpenTelemetry tracer
// shared by the web server, the CLI and the orchestrator.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "manga_sensei"

// Metrics groups the collectors for one process.
type Metrics struct {
	uploadsTotal     *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	intakeRejections *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	blobsRegistered  prometheus.Gauge
	dedupeHits       prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by outcome (opened, transport_error, download_error).",
		}, []string{"outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the process and download stages.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),

		intakeRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "intake_rejections_total",
			Help:      "Files rejected by intake, by reason.",
		}, []string{"reason"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_sessions",
			Help:      "Number of browser sessions currently tracked.",
		}),

		blobsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "blobs_registered",
			Help:      "Number of downloaded blobs waiting to be opened.",
		}),

		dedupeHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dedupe_hits_total",
			Help:      "Uploads served from an earlier translation of the same file.",
		}),
	}
}

// RecordUpload counts a finished attempt.
func (m *Metrics) RecordUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRejection counts an intake rejection.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.intakeRejections.WithLabelValues(reason).Inc()
}

// SetActiveSessions reports the tracked session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// SetBlobs reports the number of registered blobs.
func (m *Metrics) SetBlobs(n int) {
	if m == nil {
		return
	}
	m.blobsRegistered.Set(float64(n))
}

// RecordDedupeHit counts an upload that reused an earlier storage key.
func (m *Metrics) RecordDedupeHit() {
	if m == nil {
		return
	}
	m.dedupeHits.Inc()
}
