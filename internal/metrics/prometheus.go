// Package metrics exports scene service activity as Prometheus metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scenegraph"

// Recorder satisfies the service's MetricsRecorder and SceneGauge
// interfaces.
type Recorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	nodes      prometheus.Gauge
	undoDepth  prometheus.Gauge
	redoDepth  prometheus.Gauge
}

// NewRecorder registers the scene metrics on reg. A nil reg uses the
// default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Scene service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of scene service operations.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
		}, []string{"operation"}),
		nodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scene_nodes",
			Help:      "Nodes currently in the scene.",
		}),
		undoDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "undo_depth",
			Help:      "Checkpoints on the undo stack.",
		}),
		redoDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redo_depth",
			Help:      "Checkpoints on the redo stack.",
		}),
	}
}

// Observe counts one operation and records its latency.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSceneSize updates the scene gauges.
func (r *Recorder) SetSceneSize(nodes, undoDepth, redoDepth int) {
	r.nodes.Set(float64(nodes))
	r.undoDepth.Set(float64(undoDepth))
	r.redoDepth.Set(float64(redoDepth))
}
