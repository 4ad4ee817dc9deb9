package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds idempotency-related Prometheus metrics
type Metrics struct {
	Hits                *prometheus.CounterVec
	Misses              *prometheus.CounterVec
	ParameterMismatches *prometheus.CounterVec
	ConcurrentRequests  *prometheus.CounterVec
	Released            *prometheus.CounterVec
	StorageErrors       *prometheus.CounterVec
}

// NewMetrics creates idempotency metrics registered on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	labels := []string{"service", "endpoint", "method"}

	return &Metrics{
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Requests answered from a cached response",
		}, labels),
		Misses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_misses_total",
			Help: "Requests processed for a new idempotency key",
		}, labels),
		ParameterMismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_parameter_mismatches_total",
			Help: "Requests reusing a key with a different body",
		}, labels),
		ConcurrentRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_concurrent_collisions_total",
			Help: "Requests rejected because the key is being processed",
		}, labels),
		Released: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_released_total",
			Help: "Keys released after a retryable failure",
		}, labels),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_storage_errors_total",
			Help: "Idempotency storage failures",
		}, []string{"service", "operation"}),
	}
}

type counter func(*Metrics) *prometheus.CounterVec

func hits(m *Metrics) *prometheus.CounterVec                { return m.Hits }
func misses(m *Metrics) *prometheus.CounterVec              { return m.Misses }
func parameterMismatches(m *Metrics) *prometheus.CounterVec { return m.ParameterMismatches }
func concurrentRequests(m *Metrics) *prometheus.CounterVec  { return m.ConcurrentRequests }
func released(m *Metrics) *prometheus.CounterVec            { return m.Released }
func storageErrors(m *Metrics) *prometheus.CounterVec       { return m.StorageErrors }

// inc is safe on a nil receiver so the middleware can run without metrics
func (m *Metrics) inc(c counter, values ...string) {
	if m == nil {
		return
	}
	c(m).WithLabelValues(values...).Inc()
}
