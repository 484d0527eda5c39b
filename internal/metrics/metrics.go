// Package metrics registers the Prometheus metrics for the playback
// coordinator.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the coordinator
type Metrics struct {
	// Playback metrics
	PlaysTotal       prometheus.CounterVec
	PausesTotal      prometheus.CounterVec
	PolicyBlocked    prometheus.Counter
	MediaErrorsTotal prometheus.CounterVec
	ViewsTotal       prometheus.Counter

	// Engine metrics
	EvaluationDuration prometheus.Histogram
	EvaluationsTotal   prometheus.Counter

	// Surface gauges
	SurfacesRegistered prometheus.Gauge
	SurfacesPlaying    prometheus.Gauge

	// Scroll metrics
	ScrollSettlesTotal prometheus.Counter

	// Bridge metrics
	BridgeSessionsActive prometheus.Gauge
	BridgeMessagesTotal  prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			PlaysTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "videofeed_plays_total",
					Help: "Total play commands issued, by trigger",
				},
				[]string{"trigger"}, // "auto" or "manual"
			),
			PausesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "videofeed_pauses_total",
					Help: "Total pause commands issued, by reason",
				},
				[]string{"reason"}, // "demoted", "scroll", "manual", "hidden", "unregistered", "closed"
			),
			PolicyBlocked: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "videofeed_policy_blocked_total",
					Help: "Play attempts rejected by platform autoplay policy",
				},
			),
			MediaErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "videofeed_media_errors_total",
					Help: "Genuine media errors by error code",
				},
				[]string{"code"},
			),
			ViewsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "videofeed_views_total",
					Help: "Surfaces that crossed the view tracking threshold",
				},
			),
			EvaluationDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "videofeed_evaluation_duration_seconds",
					Help:    "Decision engine evaluation pass latency",
					Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
				},
			),
			EvaluationsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "videofeed_evaluations_total",
					Help: "Decision engine evaluation passes",
				},
			),
			SurfacesRegistered: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "videofeed_surfaces_registered",
					Help: "Currently mounted video surfaces",
				},
			),
			SurfacesPlaying: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "videofeed_surfaces_playing",
					Help: "Surfaces currently in the Playing state",
				},
			),
			ScrollSettlesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "videofeed_scroll_settles_total",
					Help: "Settle events after the scroll debounce delay",
				},
			),
			BridgeSessionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "videofeed_bridge_sessions_active",
					Help: "Active remote feed sessions",
				},
			),
			BridgeMessagesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "videofeed_bridge_messages_total",
					Help: "Bridge protocol messages by type and direction",
				},
				[]string{"type", "direction"},
			),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
