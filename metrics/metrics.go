// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TrackAdvances = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "syncfm_track_advances_total", Help: "Tracks advanced, by cause"},
		[]string{"cause"},
	)
	IgnoredSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "syncfm_ignored_signals_total", Help: "Stale or duplicate client reports that were dropped"},
		[]string{"signal"},
	)
	ModeTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "syncfm_mode_transitions_total", Help: "Day/night transitions, by result"},
		[]string{"result"},
	)
	SnapshotsSent = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "syncfm_snapshots_broadcast_total", Help: "Sync snapshots pushed to the hub"},
	)
	Listeners = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "syncfm_listeners", Help: "Connected websocket peers"},
	)
	PeersDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "syncfm_peers_dropped_total", Help: "Peers disconnected because their send buffer was full"},
	)
	CatalogTracks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "syncfm_catalog_tracks", Help: "Tracks found by the last catalog build"},
		[]string{"mode"},
	)
	CatalogBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncfm_catalog_build_duration_seconds",
			Help:    "Catalog scan time",
			Buckets: []float64{0.05, 0.25, 1, 5, 30},
		},
		[]string{"mode"},
	)
	TagReadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "syncfm_tag_read_failures_total", Help: "Files whose tags could not be read"},
	)
)

func init() {
	prometheus.MustRegister(
		TrackAdvances,
		IgnoredSignals,
		ModeTransitions,
		SnapshotsSent,
		Listeners,
		PeersDropped,
		CatalogTracks,
		CatalogBuildDuration,
		TagReadFailures,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
