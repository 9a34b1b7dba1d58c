// Package metrics exposes Prometheus instrumentation for the agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles the agent's metrics on a private registry so tests can
// create isolated instances.
type Set struct {
	registry *prometheus.Registry

	HomeActions         *prometheus.CounterVec
	LockTransitions     *prometheus.CounterVec
	GeofenceTransitions *prometheus.CounterVec
	PublishFailures     prometheus.Counter
	DroppedPolicyEvents prometheus.Counter
	RejectedCalls       prometheus.Counter
	ScreenTimeUsed      prometheus.Gauge
}

// New creates a metric set on a fresh registry.
func New() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		HomeActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_home_actions_total",
			Help: "Return-to-home actions issued, by reason.",
		}, []string{"reason"}),
		LockTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_lock_transitions_total",
			Help: "Lock-state transitions, by cause.",
		}, []string{"cause"}),
		GeofenceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentd_geofence_transitions_total",
			Help: "Geofence enter/exit transitions, by direction.",
		}, []string{"direction"}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentd_publish_failures_total",
			Help: "Failed best-effort writes to the remote store.",
		}),
		DroppedPolicyEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentd_dropped_policy_events_total",
			Help: "Malformed remote policy updates discarded.",
		}),
		RejectedCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentd_rejected_communications_total",
			Help: "Incoming calls and SMS rejected by the gate.",
		}),
		ScreenTimeUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentd_screen_time_used_minutes",
			Help: "Total foreground minutes observed since local midnight.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
