// Package telemetry exports the metrics of a finished run in the Prometheus
// text format, for pickup by a node_exporter textfile collector.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pevans/feedsnap/snapshot"
)

// Metrics holds the gauges describing the most recent run.
//
// Metrics:
//   - feedsnap_items - Items in the candidate snapshot
//   - feedsnap_avg_confidence - Mean item confidence
//   - feedsnap_min_confidence - Lowest item confidence
//   - feedsnap_sources{state} - Sources by outcome ("succeeded" or "failed")
//   - feedsnap_run_duration_seconds - Wall time of the run
//   - feedsnap_exit_code - Process exit code
//   - feedsnap_snapshot_written - 1 if the snapshot file was replaced
type Metrics struct {
	registry *prometheus.Registry

	Items           prometheus.Gauge
	AvgConfidence   prometheus.Gauge
	MinConfidence   prometheus.Gauge
	Sources         *prometheus.GaugeVec
	RunDuration     prometheus.Gauge
	ExitCode        prometheus.Gauge
	SnapshotWritten prometheus.Gauge
}

// New creates the gauges on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Items: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_items",
			Help: "Number of items in the candidate snapshot",
		}),
		AvgConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_avg_confidence",
			Help: "Mean confidence of admitted items",
		}),
		MinConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_min_confidence",
			Help: "Lowest confidence of admitted items",
		}),
		Sources: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedsnap_sources",
				Help: "Number of sources by outcome",
			},
			[]string{"state"}, // "succeeded" or "failed"
		),
		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_run_duration_seconds",
			Help: "Wall time of the run in seconds",
		}),
		ExitCode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_exit_code",
			Help: "Exit code of the run",
		}),
		SnapshotWritten: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedsnap_snapshot_written",
			Help: "1 if the run replaced the snapshot file, else 0",
		}),
	}
}

// Observe records the outcome of a run.
func (m *Metrics) Observe(metrics snapshot.Metrics, exitCode int, written bool) {
	m.Items.Set(float64(metrics.ItemCount))
	m.AvgConfidence.Set(metrics.AvgConfidence)
	m.MinConfidence.Set(metrics.MinConfidence)
	m.Sources.WithLabelValues("succeeded").Set(float64(metrics.SourcesSucceeded))
	m.Sources.WithLabelValues("failed").Set(float64(metrics.SourcesFailed))
	m.RunDuration.Set(float64(metrics.RunDurationMs) / 1000)
	m.ExitCode.Set(float64(exitCode))
	if written {
		m.SnapshotWritten.Set(1)
	} else {
		m.SnapshotWritten.Set(0)
	}
}

// WriteTextfile atomically writes every gauge to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
