package daemon

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	linesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcatview_lines_read_total",
			Help: "Log lines read from logcat, by priority",
		},
		[]string{"priority"},
	)

	linesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logcatview_lines_recorded_total",
			Help: "Log lines written to the active recording",
		},
	)

	backlogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logcatview_backlog_dropped_total",
			Help: "Entries dropped because the pause backlog was full",
		},
	)

	sessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcatview_sessions_started_total",
			Help: "logcat sessions started, by buffer",
		},
		[]string{"buffer"},
	)

	sessionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logcatview_session_failures_total",
			Help: "logcat sessions that failed to launch or ended on their own",
		},
		[]string{"reason"},
	)

	historySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logcatview_history_entries",
			Help: "Entries currently held in the daemon history",
		},
	)
)

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
