package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the connection lifecycle, exported on /metrics.
var (
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsk_state_transitions_total",
		Help: "Connection state transitions by resulting state",
	}, []string{"state"})

	ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsk_reconnect_attempts_total",
		Help: "Reconnection attempts scheduled after unplanned disconnects",
	})

	ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wsk_connected",
		Help: "1 while the bot connection is ready, 0 otherwise",
	})

	BackupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsk_session_backups_total",
		Help: "Session backup attempts by outcome",
	}, []string{"outcome"})

	SnapshotsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsk_status_snapshots_published_total",
		Help: "Status snapshots handed to the publisher",
	})

	SnapshotsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsk_status_snapshots_delivered_total",
		Help: "Status snapshots delivered to the sink; superseded snapshots are never delivered",
	})

	SnapshotPushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsk_status_push_errors_total",
		Help: "Failed pushes to the status sink",
	})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsk_api_requests_total",
		Help: "Dashboard API requests by route and status code",
	}, []string{"route", "code"})
)
