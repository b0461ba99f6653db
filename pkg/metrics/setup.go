// Package metrics exposes the fuzzer's Prometheus instruments on an
// isolated registry, so tests and embedders never collide with the global
// default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Server   *http.Server
	Registry *prometheus.Registry

	// TestsTotal counts dispatched test cases by operation.
	TestsTotal *prometheus.CounterVec
	// InconsistenciesTotal counts comparator findings by kind and severity.
	InconsistenciesTotal *prometheus.CounterVec
	// ServiceRequestsTotal counts per-service outcomes, status is
	// "success" or the error kind.
	ServiceRequestsTotal *prometheus.CounterVec
	// RequestDuration tracks per-service operation latency.
	RequestDuration *prometheus.HistogramVec
	// ServiceHealthy is 1 while a service passes health probes.
	ServiceHealthy *prometheus.GaugeVec

	serviceName string
}

func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	wrappedRegistry := prometheus.WrapRegistererWith(prometheus.Labels{"service": cfg.ServiceName}, registry)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	ns := cfg.Namespace
	m := &Metrics{
		Registry:    registry,
		serviceName: cfg.ServiceName,

		TestsTotal: createCounterVec(prefixed(ns, "tests_total"),
			"Test cases dispatched, by operation.",
			[]string{"operation"}),
		InconsistenciesTotal: createCounterVec(prefixed(ns, "inconsistencies_total"),
			"Comparator findings, by kind and severity.",
			[]string{"kind", "severity"}),
		ServiceRequestsTotal: createCounterVec(prefixed(ns, "database_requests_total"),
			"Per-database request outcomes.",
			[]string{"database", "status"}),
		RequestDuration: createHistogramVec(prefixed(ns, "database_request_duration_seconds"),
			"Per-database operation latency.",
			[]string{"database"},
			[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}),
		ServiceHealthy: createGaugeVec(prefixed(ns, "database_healthy"),
			"1 while the database passes health probes.",
			[]string{"database"}),
	}

	wrappedRegistry.MustRegister(
		m.TestsTotal,
		m.InconsistenciesTotal,
		m.ServiceRequestsTotal,
		m.RequestDuration,
		m.ServiceHealthy,
	)

	if cfg.Address != "" {
		handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		m.Server = &http.Server{
			Addr:    cfg.Address,
			Handler: handler,
		}
	}

	return m
}

// ObserveRequest records one database call outcome.
func (m *Metrics) ObserveRequest(database, status string, elapsed time.Duration) {
	m.ServiceRequestsTotal.WithLabelValues(database, status).Inc()
	m.RequestDuration.WithLabelValues(database).Observe(elapsed.Seconds())
}

func prefixed(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "_" + name
}
