// Package metrics implements ports.Recorder with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ersonp/libris/internal/domain/entities"
)

// Metrics holds the libris collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	LogRecords      *prometheus.CounterVec
	Reversions      *prometheus.CounterVec
	Snapshots       *prometheus.CounterVec
	RestoreDuration prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		LogRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libris_log_records_total",
			Help: "Log records written, by operation",
		}, []string{"operation"}),

		Reversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libris_reversions_total",
			Help: "Revert attempts by original operation and outcome",
		}, []string{"operation", "outcome"}),

		Snapshots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "libris_snapshots_total",
			Help: "Snapshots taken, by reason",
		}, []string{"reason"}),

		RestoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "libris_restore_duration_seconds",
			Help:    "Duration of snapshot restores",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LogRecorded counts a written log record.
func (m *Metrics) LogRecorded(op entities.Operation) {
	if m != nil {
		m.LogRecords.WithLabelValues(string(op)).Inc()
	}
}

// RevertFinished counts a revert attempt. op is empty when the record was not found.
func (m *Metrics) RevertFinished(op entities.Operation, outcome string) {
	if m != nil {
		m.Reversions.WithLabelValues(string(op), outcome).Inc()
	}
}

// SnapshotTaken counts a snapshot.
func (m *Metrics) SnapshotTaken(reason string) {
	if m != nil {
		m.Snapshots.WithLabelValues(reason).Inc()
	}
}

// RestoreFinished records how long a restore took.
func (m *Metrics) RestoreFinished(d time.Duration) {
	if m != nil {
		m.RestoreDuration.Observe(d.Seconds())
	}
}

// WriteTextfile writes all metrics to path in the Prometheus text format,
// for pickup by a node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
