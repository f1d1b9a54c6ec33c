package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm_auth"

// Auth groups the counters shared by the backend and the client provider.
type Auth struct {
	Logins      *prometheus.CounterVec
	Logouts     *prometheus.CounterVec
	Validations *prometheus.CounterVec
	Requests    *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	registry    *prometheus.Registry
}

// New registers the auth metrics on a dedicated registry.
func New() *Auth {
	reg := prometheus.NewRegistry()
	m := &Auth{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Credential exchanges by outcome.",
		}, []string{"outcome"}),
		Logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Transitions to unauthenticated by cause.",
		}, []string{"cause"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Session validations by result.",
		}, []string{"result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registry: reg,
	}

	reg.MustRegister(m.Logins, m.Logouts, m.Validations, m.Requests, m.Latency)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Auth) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Auth) Registry() *prometheus.Registry {
	return m.registry
}
