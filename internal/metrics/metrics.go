// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/agentsim/internal/engine"
)

// Collector is an engine.Renderer that updates its metrics after every tick.
type Collector struct {
	sim      *engine.Simulation
	registry *prometheus.Registry

	ticks    prometheus.Counter
	time     prometheus.Gauge
	agents   prometheus.Gauge
	interval prometheus.Histogram
	series   *prometheus.GaugeVec

	last time.Time
}

// New creates a collector for sim with its own registry. The scenario name
// is attached to every metric as a constant label.
func New(sim *engine.Simulation, scenario string) *Collector {
	labels := prometheus.Labels{"scenario": scenario}
	c := &Collector{
		sim:      sim,
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "agentsim",
			Name:        "ticks_total",
			Help:        "Ticks completed.",
			ConstLabels: labels,
		}),
		time: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "agentsim",
			Name:        "simulation_time",
			Help:        "Current simulation time.",
			ConstLabels: labels,
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "agentsim",
			Name:        "agents",
			Help:        "Population size after the last tick.",
			ConstLabels: labels,
		}),
		interval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "agentsim",
			Name:        "tick_interval_seconds",
			Help:        "Wall time between consecutive ticks.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		series: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "agentsim",
			Name:        "series_value",
			Help:        "Latest value of each tracker series.",
			ConstLabels: labels,
		}, []string{"tracker", "series"}),
	}
	c.registry.MustRegister(c.ticks, c.time, c.agents, c.interval, c.series,
		collectors.NewGoCollector())
	return c
}

// Render implements engine.Renderer.
func (c *Collector) Render(f engine.Frame) error {
	now := time.Now()
	if !c.last.IsZero() {
		c.interval.Observe(now.Sub(c.last).Seconds())
	}
	c.last = now

	c.ticks.Inc()
	c.time.Set(float64(f.Tick + 1))
	c.agents.Set(float64(c.sim.Len()))

	for key, values := range engine.CollectSeries(c.sim) {
		if len(values) == 0 {
			continue
		}
		v := values[len(values)-1]
		if math.IsNaN(v) {
			continue
		}
		tracker, name, _ := strings.Cut(key, "/")
		c.series.WithLabelValues(tracker, name).Set(v)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
