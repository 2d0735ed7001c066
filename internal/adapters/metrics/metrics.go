// Package metrics implements ports.Metrics with Prometheus counters.
package metrics

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/zerr"
)

const namespace = "incr"

// Recorder counts validation verdicts and task outcomes of one process.
// Each Recorder owns its registry, so several can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	nodesResolved *prometheus.CounterVec
	nodesNew      *prometheus.CounterVec
	fingerprints  *prometheus.CounterVec
	tasksFinished *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		nodesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_resolved_total",
			Help:      "Previous-run nodes resolved to a verdict, by kind and state.",
		}, []string{"kind", "state"}),
		nodesNew: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_new_total",
			Help:      "Nodes absent from the previous run, by kind.",
		}, []string{"kind"}),
		fingerprints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fingerprints_computed_total",
			Help:      "Current-run fingerprints computed during validation, by kind.",
		}, []string{"kind"}),
		tasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status, by status.",
		}, []string{"status"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// NodeResolved implements ports.Metrics.
func (r *Recorder) NodeResolved(kind domain.DepKind, state domain.NodeState) {
	r.nodesResolved.WithLabelValues(kind.String(), state.String()).Inc()
}

// NodeNew implements ports.Metrics.
func (r *Recorder) NodeNew(kind domain.DepKind) {
	r.nodesNew.WithLabelValues(kind.String()).Inc()
}

// FingerprintComputed implements ports.Metrics.
func (r *Recorder) FingerprintComputed(kind domain.DepKind) {
	r.fingerprints.WithLabelValues(kind.String()).Inc()
}

// TaskFinished implements ports.Metrics.
func (r *Recorder) TaskFinished(status domain.TaskStatus) {
	r.tasksFinished.WithLabelValues(string(status)).Inc()
}

// Flush writes the registry in the text exposition format, for the node exporter's
// textfile collector.
func (r *Recorder) Flush(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create metrics directory"), "path", path)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write metrics file"), "path", path)
	}
	return nil
}
