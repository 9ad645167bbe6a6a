// Package metrics exposes prometheus collectors describing elevation
// session activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultTimeout = "timeout"

	OpLink   = "link"
	OpUnlink = "unlink"

	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Metrics holds the session collectors
type Metrics struct {
	registry *prometheus.Registry

	sessionStarts *prometheus.CounterVec
	dispatched    *prometheus.CounterVec
	completed     *prometheus.CounterVec
	abandoned     prometheus.Counter
	pending       prometheus.Gauge
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "elevlink",
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Elevated worker start attempts by result.",
		}, []string{"result"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "elevlink",
			Subsystem: "operations",
			Name:      "dispatched_total",
			Help:      "Link operations sent to the worker.",
		}, []string{"op"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "elevlink",
			Subsystem: "operations",
			Name:      "completed_total",
			Help:      "Completion events received from the worker.",
		}, []string{"outcome"}),
		abandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elevlink",
			Subsystem: "operations",
			Name:      "abandoned_total",
			Help:      "Operations dropped because the worker disconnected.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "elevlink",
			Subsystem: "operations",
			Name:      "pending",
			Help:      "Operations awaiting worker confirmation.",
		}),
	}
	m.registry.MustRegister(m.sessionStarts, m.dispatched, m.completed, m.abandoned, m.pending)
	return m
}

// Registry returns the registry holding all collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionStarted(result string) {
	if m == nil {
		return
	}
	m.sessionStarts.WithLabelValues(result).Inc()
}

func (m *Metrics) Dispatched(op string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(op).Inc()
}

func (m *Metrics) Completed(outcome string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Abandoned(n int) {
	if m == nil {
		return
	}
	m.abandoned.Add(float64(n))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// WriteTextfile writes all collectors in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
