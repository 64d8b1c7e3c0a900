// Package metrics holds the prometheus collectors of the realtime layer.
//
// Every method is safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	// ActiveConnections tracks registered websocket connections.
	ActiveConnections prometheus.Gauge

	// OnlineUsers tracks users with at least one connection.
	OnlineUsers prometheus.Gauge

	// CommandCounter counts inbound commands.
	// Labels: command, status (ok|error|rejected)
	CommandCounter *prometheus.CounterVec

	// CommandDuration measures command handling time in seconds.
	// Labels: command
	CommandDuration *prometheus.HistogramVec

	// EventsDropped counts events skipped for slow consumers.
	// Labels: event
	EventsDropped *prometheus.CounterVec

	// MessagesPersisted counts stored chat messages.
	MessagesPersisted prometheus.Counter

	// DeliveryMarks counts deliveredTo entries written at send time.
	DeliveryMarks prometheus.Counter

	// CollaboratorErrors counts failed storage or presence calls after retries.
	// Labels: component (storage|presence), operation
	CollaboratorErrors *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowchat_connections_active",
			Help: "Number of registered websocket connections",
		}),

		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowchat_users_online",
			Help: "Number of users with at least one live connection",
		}),

		CommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_commands_total",
				Help: "Total number of inbound commands by name and status",
			},
			[]string{"command", "status"},
		),

		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowchat_command_duration_seconds",
				Help:    "Duration of inbound command handling in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"command"},
		),

		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_events_dropped_total",
				Help: "Outbound events dropped because the recipient queue was full",
			},
			[]string{"event"},
		),

		MessagesPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowchat_messages_persisted_total",
			Help: "Total number of chat messages stored",
		}),

		DeliveryMarks: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowchat_delivery_marks_total",
			Help: "Total number of delivery marks written for online recipients",
		}),

		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowchat_collaborator_errors_total",
				Help: "Storage and presence calls that failed after retries",
			},
			[]string{"component", "operation"},
		),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) UserOnline() {
	if m == nil {
		return
	}
	m.OnlineUsers.Inc()
}

func (m *Metrics) UserOffline() {
	if m == nil {
		return
	}
	m.OnlineUsers.Dec()
}

// CommandHandled records one inbound command.
func (m *Metrics) CommandHandled(command, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandCounter.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) EventDropped(event string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) MessagePersisted() {
	if m == nil {
		return
	}
	m.MessagesPersisted.Inc()
}

func (m *Metrics) DeliveryMarked() {
	if m == nil {
		return
	}
	m.DeliveryMarks.Inc()
}

// CollaboratorFailed records a storage or presence call that exhausted its retries.
func (m *Metrics) CollaboratorFailed(component, operation string) {
	if m == nil {
		return
	}
	m.CollaboratorErrors.WithLabelValues(component, operation).Inc()
}
