package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bankist"

// Outcome labels recorded for ledger operations.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Collector owns a private registry so several collectors (one per test
// server, for instance) never collide on registration.
type Collector struct {
	registry            *prometheus.Registry
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	ledgerOperations    *prometheus.CounterVec
	ledgerDuration      *prometheus.HistogramVec
	movementsWritten    prometheus.Counter
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		ledgerOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by kind and outcome",
		}, []string{"operation", "outcome", "reason"}),
		ledgerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_operation_duration_seconds",
			Help:      "Time spent in a ledger unit of work",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		movementsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "movements_written_total",
			Help:      "Movements committed to the ledger",
		}),
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	c.httpRequestDuration.WithLabelValues(method, route, code).Observe(duration.Seconds())
	c.httpRequestsTotal.WithLabelValues(method, route, code).Inc()
}

// ObserveLedger records one ledger operation. reason is the error code for
// rejected and failed operations and empty on success.
func (c *Collector) ObserveLedger(operation, outcome, reason string, duration time.Duration) {
	c.ledgerOperations.WithLabelValues(operation, outcome, reason).Inc()
	c.ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) MovementsWritten(n int) {
	c.movementsWritten.Add(float64(n))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
