// Package metrics exposes the agent's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PingsSent counts delivery attempts by transport ("websocket" or "http").
	PingsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_pings_sent_total",
			Help: "Total ping delivery attempts by transport",
		},
		[]string{"transport"},
	)

	// PingsThrottled counts sends dropped by the throttle gate.
	PingsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_pings_throttled_total",
			Help: "Total pings dropped by the send throttle",
		},
	)

	// PingFailures counts failed delivery attempts by transport.
	PingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ping_failures_total",
			Help: "Total failed ping deliveries by transport",
		},
		[]string{"transport"},
	)

	// ChannelConnects counts persistent channel connection attempts by
	// outcome ("ok" or "error").
	ChannelConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_channel_connects_total",
			Help: "Total persistent channel connection attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AnomaliesNotified counts anomaly notifications delivered to the
	// caller-supplied callback.
	AnomaliesNotified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_anomalies_notified_total",
			Help: "Total anomaly notifications emitted",
		},
	)

	// PathSamples reports the current size of the in-memory sample sequence.
	PathSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_path_samples",
			Help: "Samples currently held in the path view",
		},
	)

	// JournalPending reports spooled pings not yet marked delivered.
	JournalPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_journal_pending",
			Help: "Journal rows awaiting delivery confirmation",
		},
	)
)
