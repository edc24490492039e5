// Package metrics holds the Prometheus collectors the server exports on
// /metrics. Collectors are registered on an explicit registry so tests can
// build as many servers as they like without duplicate registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "showdex"

type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CodesIssued     *prometheus.CounterVec
	EmailFailures   prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		CodesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "One-time codes written to accounts, by purpose.",
		}, []string{"purpose"}),
		EmailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_send_failures_total",
			Help:      "Account emails the sender failed to deliver.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.RequestDuration,
		m.CodesIssued,
		m.EmailFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CodeIssued counts one code for purpose. A nil *Metrics is a no-op.
func (m *Metrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.CodesIssued.WithLabelValues(purpose).Inc()
}

// EmailFailed counts one failed send. A nil *Metrics is a no-op.
func (m *Metrics) EmailFailed() {
	if m == nil {
		return
	}
	m.EmailFailures.Inc()
}
