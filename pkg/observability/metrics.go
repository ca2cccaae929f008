// Package observability exposes Prometheus metrics for the sync pipeline.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowsketch-backend/domain/events"
)

// Metrics holds all pipeline counters and gauges
type Metrics struct {
	registry *prometheus.Registry

	ChangesSubmitted  *prometheus.CounterVec
	ChangeOutcomes    *prometheus.CounterVec
	ConflictsDetected *prometheus.CounterVec
	DomainEvents      *prometheus.CounterVec
	CommitDuration    prometheus.Histogram
	ConnectedClients  prometheus.Gauge
	ProjectRooms      prometheus.Gauge
	BroadcastLag      prometheus.Histogram
}

// NewMetrics registers all collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ChangesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsketch_changes_submitted_total",
			Help: "Changes submitted, by origin.",
		}, []string{"origin"}),
		ChangeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsketch_change_outcomes_total",
			Help: "Change outcomes, by status.",
		}, []string{"status"}),
		ConflictsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsketch_conflicts_detected_total",
			Help: "Conflicts detected, by type.",
		}, []string{"type"}),
		DomainEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowsketch_domain_events_total",
			Help: "Domain events emitted by committed batches, by event type.",
		}, []string{"event_type"}),
		CommitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsketch_commit_duration_seconds",
			Help:    "Time from change receipt to committed version.",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowsketch_connected_clients",
			Help: "Currently connected websocket clients.",
		}),
		ProjectRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flowsketch_project_rooms",
			Help: "Project rooms with at least one subscriber.",
		}),
		BroadcastLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowsketch_broadcast_lag_seconds",
			Help:    "Delay between commit and room broadcast.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

// Handler serves the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish implements ports.EventPublisher by counting domain events
func (m *Metrics) Publish(_ context.Context, evts []events.DomainEvent) {
	for _, evt := range evts {
		m.DomainEvents.WithLabelValues(evt.GetEventType()).Inc()
	}
}
