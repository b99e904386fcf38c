// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionStartTotal counts playback session starts by outcome of the first resolution step.
	SessionStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_session_start_total",
		Help: "Total number of playback session starts by result and path",
	}, []string{"result", "path"})

	// SessionTransitionsTotal counts state machine transitions.
	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_session_transitions_total",
		Help: "Playback session state transitions",
	}, []string{"from", "to"})

	// SessionFaultsTotal counts faults observed from the streaming client.
	SessionFaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_session_faults_total",
		Help: "Faults reported by the streaming client by type and fatality",
	}, []string{"type", "fatal"})

	// SessionRetriesTotal counts network-fault resumes (retry budget consumption).
	SessionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessoncast_session_retries_total",
		Help: "Loading resumes issued after network faults",
	})

	// SessionMediaRecoveriesTotal counts in-place media recoveries.
	SessionMediaRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lessoncast_session_media_recoveries_total",
		Help: "In-place media pipeline recoveries",
	})

	// SessionFailuresTotal counts terminal failures by error kind.
	SessionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_session_failures_total",
		Help: "Terminal playback failures by kind",
	}, []string{"kind"})

	// SessionTimeToReady tracks the time from session start to first ready state.
	SessionTimeToReady = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lessoncast_session_time_to_ready_seconds",
		Help:    "Time from session start to first ready state",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20},
	})

	// ActiveSessions tracks live (non-terminal) sessions across all players.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lessoncast_active_sessions",
		Help: "Playback sessions that are not in a terminal state",
	})
)

// IncSessionStart records a session start outcome.
func IncSessionStart(success bool, path string) {
	result := "failure"
	if success {
		result = "success"
	}
	SessionStartTotal.WithLabelValues(result, path).Inc()
}

// IncTransition records a state transition.
func IncTransition(from, to string) {
	SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// IncFault records a streaming client fault.
func IncFault(faultType string, fatal bool) {
	SessionFaultsTotal.WithLabelValues(faultType, strconv.FormatBool(fatal)).Inc()
}

// IncRetry records a retry budget consumption.
func IncRetry() { SessionRetriesTotal.Inc() }

// IncMediaRecovery records a media pipeline recovery.
func IncMediaRecovery() { SessionMediaRecoveriesTotal.Inc() }

// IncFailure records a terminal failure.
func IncFailure(kind string) {
	SessionFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveTimeToReady records the startup latency of a session.
func ObserveTimeToReady(d time.Duration) {
	SessionTimeToReady.Observe(d.Seconds())
}
