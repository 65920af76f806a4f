// Package metrics provides Prometheus instrumentation for the pairing
// service: gauges for queue depth and active chats, counters for relay and
// moderation activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueueSize tracks the current number of users waiting for a partner.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairline_queue_size",
		Help: "Current number of users in the matching queue",
	})

	// ActiveChats tracks the current number of committed pairings.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairline_active_chats",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts relay attempts by outcome: "delivered",
	// "blocked", "invalid", "undelivered", "no_session".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairline_messages_total",
		Help: "Total number of relay attempts by outcome",
	}, []string{"outcome"})

	// MatchesTotal counts committed pairings.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairline_matches_total",
		Help: "Total number of committed pairings",
	})

	// ReportsTotal counts filed reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairline_reports_total",
		Help: "Total number of abuse reports filed",
	})

	// BansTotal counts applied bans.
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairline_bans_total",
		Help: "Total number of bans applied",
	})

	// SnapshotFailures counts failed state saves.
	SnapshotFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairline_snapshot_failures_total",
		Help: "Total number of failed state snapshot writes",
	})
)

func init() {
	prometheus.MustRegister(
		QueueSize,
		ActiveChats,
		MessagesTotal,
		MatchesTotal,
		ReportsTotal,
		BansTotal,
		SnapshotFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
