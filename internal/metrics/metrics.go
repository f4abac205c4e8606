// internal/metrics/metrics.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package metrics exposes Prometheus collectors for the weapon control
// core: tube occupancy, state transitions, launches/aborts, and
// engagement-plan recomputation latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the core's Prometheus metrics and provides an HTTP
// handler to serve them.
type Collector struct {
	gatherer prometheus.Gatherer

	TubesOccupied    prometheus.Gauge
	TubesByState     *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec
	Launches         prometheus.Counter
	Aborts           prometheus.Counter
	PlanCalcDuration prometheus.Histogram
	PlanCalcFailures prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
}

// New registers the core's metrics against reg, defaulting to the global
// Prometheus registry when reg is nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tubesOccupied, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wcs_tubes_occupied",
		Help: "Number of launch tubes currently holding a weapon.",
	}), "wcs_tubes_occupied")
	if err != nil {
		return nil, err
	}

	tubesByState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wcs_tubes_by_state",
		Help: "Number of tubes currently in each control state.",
	}, []string{"state"}), "wcs_tubes_by_state")
	if err != nil {
		return nil, err
	}

	stateTransitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wcs_state_transitions_total",
		Help: "Total committed control-state transitions, labeled by weapon kind, from state, and to state.",
	}, []string{"kind", "from", "to"}), "wcs_state_transitions_total")
	if err != nil {
		return nil, err
	}

	launches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wcs_launches_total",
		Help: "Total completed launch sequences (weapon reached launched=true).",
	}), "wcs_launches_total")
	if err != nil {
		return nil, err
	}

	aborts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wcs_aborts_total",
		Help: "Total ABORT transitions accepted across all tubes.",
	}), "wcs_aborts_total")
	if err != nil {
		return nil, err
	}

	planCalcDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wcs_engagement_plan_duration_seconds",
		Help:    "Wall-clock time spent computing one engagement plan.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}), "wcs_engagement_plan_duration_seconds")
	if err != nil {
		return nil, err
	}

	planCalcFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wcs_engagement_plan_failures_total",
		Help: "Total engagement plan calculations in which the trajectory calculator returned an error.",
	}), "wcs_engagement_plan_failures_total")
	if err != nil {
		return nil, err
	}

	commandsTotal, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wcs_commands_total",
		Help: "Total commands handled, labeled by command name and outcome kind.",
	}, []string{"command", "kind"}), "wcs_commands_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		TubesOccupied:    tubesOccupied,
		TubesByState:     tubesByState,
		StateTransitions: stateTransitions,
		Launches:         launches,
		Aborts:           aborts,
		PlanCalcDuration: planCalcDuration,
		PlanCalcFailures: planCalcFailures,
		CommandsTotal:    commandsTotal,
	}, nil
}

// Handler returns an http.Handler serving this collector's registry in
// the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Gauge), nil
		}
		return nil, err
	}
	return g, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec), nil
		}
		return nil, err
	}
	return g, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter), nil
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Histogram), nil
		}
		return nil, err
	}
	return h, nil
}
