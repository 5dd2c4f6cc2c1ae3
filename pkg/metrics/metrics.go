// Package metrics exposes Prometheus instrumentation for the incident
// pipeline. Pipeline packages stay metrics-free: the collector subscribes to
// the event bus and derives counters from the same stream the dashboard sees.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Metrics owns the process registry and the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	stageEvents    *prometheus.CounterVec
	incidents      *prometheus.CounterVec
	gateDecisions  *prometheus.CounterVec
	droppedEvents  prometheus.Counter
	busSubscribers prometheus.GaugeFunc
}

// New creates the registry and registers the pipeline collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		stageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_stage_events_total",
			Help: "Pipeline stage events by stage and level.",
		}, []string{"stage", "level"}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_incidents_total",
			Help: "Incidents finished by terminal status.",
		}, []string{"status"}),
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_gate_decisions_total",
			Help: "Command gate decisions by reason.",
		}, []string{"reason"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "responder_bus_dropped_events_total",
			Help: "Events dropped because a subscriber lagged.",
		}),
	}
	registry.MustRegister(m.stageEvents, m.incidents, m.gateDecisions, m.droppedEvents)
	return m
}

// ObserveBus attaches to the event bus and feeds the collectors until the
// subscription closes. Call in a goroutine; returns when the bus shuts down.
func (m *Metrics) ObserveBus(b *bus.Bus) {
	m.busSubscribers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "responder_bus_subscribers",
		Help: "Currently attached event bus subscribers.",
	}, func() float64 { return float64(b.Stats().Subscribers) })
	m.registry.MustRegister(m.busSubscribers)

	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	for evt := range sub.Events() {
		m.observe(evt)
	}
}

func (m *Metrics) observe(evt bus.Event) {
	if evt.Message == bus.MessageSubscriberLag {
		m.droppedEvents.Inc()
		return
	}

	m.stageEvents.WithLabelValues(string(evt.Stage), string(evt.Level)).Inc()

	switch evt.Stage {
	case models.StageComplete, models.StageFailed:
		if status, ok := evt.Attributes["status"].(string); ok {
			m.incidents.WithLabelValues(status).Inc()
		}
	case models.StageGating:
		if reason, ok := evt.Attributes["reason"].(string); ok {
			m.gateDecisions.WithLabelValues(reason).Inc()
		}
	}
}

// RegisterBreaker exports the circuit breaker state as a gauge
// (0 closed, 1 half-open, 2 open).
func (m *Metrics) RegisterBreaker(b *breaker.Breaker) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "responder_circuit_breaker_state",
		Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
	}, func() float64 {
		switch b.Snapshot().State {
		case breaker.StateOpen:
			return 2
		case breaker.StateHalfOpen:
			return 1
		default:
			return 0
		}
	}))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
