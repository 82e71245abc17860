// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the dispatch host, adapted from the teacher's
// coreengine/observability package (same promauto grouping idiom, new
// label/metric names for the dispatch-cycle domain instead of the
// LLM-pipeline domain).
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchcore_dispatch_total",
		Help: "Total number of messages dispatched, by transport and variant.",
	}, []string{"transport", "variant"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatchcore_dispatch_duration_seconds",
		Help:    "Time from Message creation to response sink completion.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"transport", "variant", "outcome"})

	handlerInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchcore_handler_invocations_total",
		Help: "Total handler invocations, by outcome (ok, no_handler, error).",
	}, []string{"outcome"})

	wsActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchcore_ws_active_sessions",
		Help: "Current number of open WebSocket sessions.",
	})

	wsGroupBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchcore_ws_group_broadcasts_total",
		Help: "Total successful deliveries from group and broadcast fan-outs, by group.",
	}, []string{"group"})

	diResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchcore_di_resolutions_total",
		Help: "DI container resolutions, by lifetime.",
	}, []string{"lifetime"})
)

// RecordDispatch records one completed dispatch cycle.
func RecordDispatch(transport, variant, outcome string, d time.Duration) {
	dispatchTotal.WithLabelValues(transport, variant).Inc()
	dispatchDuration.WithLabelValues(transport, variant, outcome).Observe(d.Seconds())
}

// RecordHandlerInvocation records the outcome of one handler call.
func RecordHandlerInvocation(outcome string) {
	handlerInvocations.WithLabelValues(outcome).Inc()
}

// SetActiveSessions sets the current WebSocket session gauge.
func SetActiveSessions(n int) {
	wsActiveSessions.Set(float64(n))
}

// RecordGroupBroadcast records a group fan-out with its delivered count.
func RecordGroupBroadcast(group string, delivered int) {
	wsGroupBroadcasts.WithLabelValues(group).Add(float64(delivered))
}

// RecordDIResolution records one DI container resolution by lifetime.
func RecordDIResolution(lifetime string) {
	diResolutions.WithLabelValues(lifetime).Inc()
}
