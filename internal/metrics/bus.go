// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusDroppedTotal counts status messages dropped by the in-memory bus.
	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_bus_dropped_total",
		Help: "Bus messages dropped before delivery by topic and reason",
	}, []string{"topic", "reason"})

	// ProgressWritesTotal counts lesson progress writes by backend and result.
	ProgressWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_progress_writes_total",
		Help: "Lesson progress writes by backend and result",
	}, []string{"backend", "result"})
)

// IncBusDropReason records a dropped bus message.
func IncBusDropReason(topic, reason string) {
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// IncProgressWrite records a progress store write.
func IncProgressWrite(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProgressWritesTotal.WithLabelValues(backend, result).Inc()
}
