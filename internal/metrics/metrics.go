// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports connection metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/somnium/pkg/aurora"
)

// Collector implements aurora.Metrics on a private registry.
type Collector struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	events          *prometheus.CounterVec
	state           *prometheus.GaugeVec
}

var _ aurora.Metrics = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics together with
// the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "somnium_commands_total",
				Help: "Commands finished, by transport and outcome",
			},
			[]string{"origin", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "somnium_command_duration_seconds",
				Help:    "Time from sending a command to its result",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 12},
			},
			[]string{"origin"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "somnium_events_total",
				Help: "Parser events, by transport and kind",
			},
			[]string{"origin", "kind"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "somnium_connection_state",
				Help: "Connection state: 0 init, 1 disconnected, 2 connecting, 3 idle, 4 busy",
			},
			[]string{"origin"},
		),
	}
	c.registry.MustRegister(
		c.commands,
		c.commandDuration,
		c.events,
		c.state,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveCommand records a finished command.
func (c *Collector) ObserveCommand(origin aurora.Origin, outcome string, d time.Duration) {
	c.commands.WithLabelValues(string(origin), outcome).Inc()
	c.commandDuration.WithLabelValues(string(origin)).Observe(d.Seconds())
}

// ObserveEvent records a parser event.
func (c *Collector) ObserveEvent(origin aurora.Origin, ev aurora.Event) {
	c.events.WithLabelValues(string(origin), aurora.EventKind(ev)).Inc()
}

// ObserveState records a connection state change.
func (c *Collector) ObserveState(origin aurora.Origin, s aurora.State) {
	c.state.WithLabelValues(string(origin)).Set(float64(s))
}
