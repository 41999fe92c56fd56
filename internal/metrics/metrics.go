// Package metrics holds the Prometheus collectors for database operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var buckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics records the duration and failures of ORM operations, labelled by
// operation (insert, get_all, ...) and table.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves
// them unregistered. Collectors already registered on reg (by another
// handle in the same process) are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlitez_operation_duration_seconds",
			Help:    "Duration of sqlitez database operations",
			Buckets: buckets,
		}, []string{"operation", "table"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlitez_operation_errors_total",
			Help: "Failed sqlitez database operations",
		}, []string{"operation", "table"}),
	}
	if reg == nil {
		return m, nil
	}

	if err := reg.Register(m.duration); err != nil {
		existing, ok := alreadyRegistered(err)
		if !ok {
			return nil, err
		}
		m.duration = existing.(*prometheus.HistogramVec)
	}
	if err := reg.Register(m.errors); err != nil {
		existing, ok := alreadyRegistered(err)
		if !ok {
			return nil, err
		}
		m.errors = existing.(*prometheus.CounterVec)
	}
	return m, nil
}

func alreadyRegistered(err error) (prometheus.Collector, bool) {
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, true
	}
	return nil, false
}

// Observe records one finished operation. A nil Metrics records nothing.
func (m *Metrics) Observe(operation, table string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(operation, table).Inc()
	}
}

// Collectors returns the underlying collectors, for tests and custom
// registries.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.duration, m.errors}
}
