// Package metrics counts provisioning operations. Collectors live on a
// private registry so the CLI can dump them to a node_exporter textfile
// after a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

const namespace = "instance_provision"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
)

// Metrics holds the provisioning collectors.
type Metrics struct {
	Registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Provisioning operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_seconds",
			Help:      "Wall time of provisioning operations.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 30, 120, 600},
		}, []string{"operation"}),
	}
	m.Registry.MustRegister(m.operations, m.duration)
	return m
}

// Observe records one finished operation. A nil *Metrics ignores it.
func (m *Metrics) Observe(operation string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFail
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Operations exposes the operation counter.
func (m *Metrics) Operations() *prometheus.CounterVec { return m.operations }

// WriteTextfile writes every collector to path in the Prometheus text
// format, replacing the file atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return oops.In("metrics").With("path", path).Wrapf(err, "write metrics textfile")
	}
	return nil
}
