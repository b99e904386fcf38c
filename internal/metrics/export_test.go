// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import "github.com/prometheus/client_golang/prometheus"

// CircuitGauge exposes the breaker gauge to external tests.
func CircuitGauge(component, state string) prometheus.Gauge {
	return circuitBreakerState.WithLabelValues(component, state)
}
