// Package metrics defines the Prometheus collectors for integration executions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowhook"

// Execution outcomes used as label values.
const (
	OutcomeSuccess   = "success"
	OutcomeRemote    = "remote_error"
	OutcomeTransport = "transport_error"
	OutcomeConfig    = "configuration_error"
)

// Collectors groups the metrics. A nil *Collectors is valid and records nothing.
type Collectors struct {
	Registry *prometheus.Registry

	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	extractionMisses  prometheus.Counter
	sessionUpdates    prometheus.Counter
	outbound          *prometheus.CounterVec
	outboundDuration  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collectors{
		Registry: reg,
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Integration block executions by outcome.",
		}, []string{"outcome"}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time spent executing the outbound integration request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		extractionMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_misses_total",
			Help:      "Response mappings whose path did not resolve.",
		}),
		sessionUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_updates_total",
			Help:      "Executions that produced a new session snapshot.",
		}),
		outbound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_requests_total",
			Help:      "Outbound HTTP requests by status code and method.",
		}, []string{"code", "method"}),
		outboundDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_duration_seconds",
			Help:      "Outbound HTTP round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}
}

// ObserveExecution records one execution outcome and its duration.
func (c *Collectors) ObserveExecution(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome).Inc()
	c.executionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// CountExecution records an outcome without a duration, e.g. configuration errors.
func (c *Collectors) CountExecution(outcome string) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome).Inc()
}

// ExtractionMiss counts one unresolved response mapping.
func (c *Collectors) ExtractionMiss() {
	if c == nil {
		return
	}
	c.extractionMisses.Inc()
}

// SessionUpdated counts one produced snapshot.
func (c *Collectors) SessionUpdated() {
	if c == nil {
		return
	}
	c.sessionUpdates.Inc()
}

// InstrumentRoundTripper wraps next with outbound request counters and latency.
func (c *Collectors) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if c == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(c.outbound,
		promhttp.InstrumentRoundTripperDuration(c.outboundDuration, next))
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
