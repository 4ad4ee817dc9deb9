package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all ledger service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	TransactionConflicts   *prometheus.CounterVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec

	// Ledger metrics
	MovementsRecorded *prometheus.CounterVec
	UnitsMoved        *prometheus.CounterVec
	CostRecomputes    *prometheus.CounterVec
	LotsPerSale       prometheus.Histogram

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "ledger",
	}
}

// New creates a new Metrics instance with its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}
	ns := config.Namespace

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	m.HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests currently being processed",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "kafka_events_published_total",
			Help:      "Total number of Kafka events published",
		},
		[]string{"service", "topic", "event_type", "status"},
	)

	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"service", "driver", "collection", "operation", "status"},
	)

	m.StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "driver", "collection", "operation"},
	)

	m.TransactionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "transaction_conflicts_total",
			Help:      "Ledger transactions aborted because of a concurrent write",
		},
		[]string{"service", "driver"},
	)

	m.OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "outbox_pending_events",
			Help:        "Number of outbox events waiting to be published",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "outbox_events_processed_total",
			Help:      "Outbox events processed by the publisher",
		},
		[]string{"service", "status"},
	)

	m.MovementsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "movements_recorded_total",
			Help:      "Ledger movements by type and result",
		},
		[]string{"service", "type", "result"},
	)

	m.UnitsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "units_moved_total",
			Help:      "Units moved by committed ledger movements",
		},
		[]string{"service", "type"},
	)

	m.CostRecomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cost_recomputes_total",
			Help:      "Weighted average cost recomputations by movement type",
		},
		[]string{"service", "type"},
	)

	m.LotsPerSale = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "lots_per_sale",
			Help:        "Number of lots consumed by a single FIFO sale",
			Buckets:     []float64{1, 2, 3, 5, 10, 25},
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service", "name"},
	)

	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaPublishDuration,
		m.StoreOperations,
		m.StoreOperationDuration,
		m.TransactionConflicts,
		m.OutboxPending,
		m.OutboxPublished,
		m.MovementsRecorded,
		m.UnitsMoved,
		m.CostRecomputes,
		m.LotsPerSale,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// NewNop returns metrics bound to a private registry, for tests
func NewNop() *Metrics {
	return New(DefaultConfig("test"))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordStoreOperation records a store operation for the given driver
func (m *Metrics) RecordStoreOperation(driver, collection, operation string, success bool, duration time.Duration) {
	m.StoreOperations.WithLabelValues(m.serviceName, driver, collection, operation, statusLabel(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, driver, collection, operation).Observe(duration.Seconds())
}

// RecordTransactionConflict counts an aborted ledger transaction
func (m *Metrics) RecordTransactionConflict(driver string) {
	m.TransactionConflicts.WithLabelValues(m.serviceName, driver).Inc()
}

// RecordMovement records the outcome of a ledger movement. result is
// "success" or the error code of the failure.
func (m *Metrics) RecordMovement(movementType, result string, quantity int64) {
	m.MovementsRecorded.WithLabelValues(m.serviceName, movementType, result).Inc()
	if result == "success" {
		m.UnitsMoved.WithLabelValues(m.serviceName, movementType).Add(float64(quantity))
	}
}

// RecordCostRecompute counts a weighted average recomputation
func (m *Metrics) RecordCostRecompute(movementType string) {
	m.CostRecomputes.WithLabelValues(m.serviceName, movementType).Inc()
}

// ObserveLotsPerSale records how many lots a sale consumed
func (m *Metrics) ObserveLotsPerSale(lots int) {
	m.LotsPerSale.Observe(float64(lots))
}

// SetOutboxPending sets the number of unpublished outbox events
func (m *Metrics) SetOutboxPending(count int64) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxEvent records an outbox publish attempt
func (m *Metrics) RecordOutboxEvent(success bool) {
	m.OutboxPublished.WithLabelValues(m.serviceName, statusLabel(success)).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}
