// Package telemetry registers Prometheus instrumentation for the simulation
// engines. All recorder methods are nil-safe so library callers can skip
// metrics entirely.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes Prometheus observability primitives for the engines.
type Metrics struct {
	simulations       *prometheus.CounterVec
	simulationTime    *prometheus.HistogramVec
	sweepPoints       *prometheus.CounterVec
	priceShockApplied prometheus.Counter
}

// NewMetrics registers and returns Prometheus metrics for the engines.
func NewMetrics() *Metrics {
	simulations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revlift_simulations_total",
		Help: "Simulations run by engine and branch taken.",
	}, []string{"engine", "branch"})

	simulationTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revlift_simulation_duration_seconds",
		Help:    "Simulation latency per engine.",
		Buckets: prometheus.DefBuckets,
	}, []string{"engine"})

	sweepPoints := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revlift_sweep_points_total",
		Help: "Price sweep point evaluations by status.",
	}, []string{"status"})

	priceShockApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "revlift_price_shock_applied_total",
		Help: "Simulations where the price shock correction engaged.",
	})

	prometheus.MustRegister(
		simulations,
		simulationTime,
		sweepPoints,
		priceShockApplied,
	)

	return &Metrics{
		simulations:       simulations,
		simulationTime:    simulationTime,
		sweepPoints:       sweepPoints,
		priceShockApplied: priceShockApplied,
	}
}

// RecordSimulation records one engine invocation and its latency.
func (m *Metrics) RecordSimulation(engine, branch string, duration time.Duration) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(engine, branch).Inc()
	m.simulationTime.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordSweepPoint records one sweep point evaluation.
func (m *Metrics) RecordSweepPoint(status string) {
	if m == nil {
		return
	}
	m.sweepPoints.WithLabelValues(status).Inc()
}

// RecordPriceShock counts a simulation that hit the shock correction.
func (m *Metrics) RecordPriceShock() {
	if m == nil {
		return
	}
	m.priceShockApplied.Inc()
}

// Module wires engine metrics for the application.
var Module = fx.Module("telemetry",
	fx.Provide(NewMetrics),
)
