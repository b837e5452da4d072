// Package metrics exposes Prometheus instrumentation for the intentions server.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intentions"

// Model invocation outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the server's collectors on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	Requests      *prometheus.CounterVec
	ModelCalls    *prometheus.CounterVec
	ModelDuration prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Intentions requests by HTTP status.",
		}, []string{"status"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_invocations_total",
			Help:      "Model invocations by outcome.",
		}, []string{"outcome"}),
		ModelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_duration_seconds",
			Help:      "Wall time of model invocations.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.ModelCalls,
		m.ModelDuration,
	)
	return m
}

// ObserveRequest counts a finished intentions request.
func (m *Metrics) ObserveRequest(status int) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveModel records one model invocation.
func (m *Metrics) ObserveModel(seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.ModelCalls.WithLabelValues(outcome).Inc()
	m.ModelDuration.Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
