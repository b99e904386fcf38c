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
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lessoncast_fetch_duration_seconds",
		Help:    "Manifest and segment fetch latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	fetchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_fetch_requests_total",
		Help: "Manifest and segment fetches by kind and status code (0 = transport error)",
	}, []string{"kind", "code"})

	manifestCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lessoncast_manifest_cache_lookups_total",
		Help: "Manifest resolution cache lookups by result",
	}, []string{"result"})
)

// ObserveFetch records a completed fetch. code is 0 on transport errors.
func ObserveFetch(kind string, code int, d time.Duration) {
	fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	fetchResults.WithLabelValues(kind, strconv.Itoa(code)).Inc()
}

// IncManifestCache records a cache hit or miss.
func IncManifestCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	manifestCacheLookups.WithLabelValues(result).Inc()
}
