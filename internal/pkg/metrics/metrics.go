// Package metrics exposes completed-step snapshots as Prometheus gauges.
package metrics

import (
	"context"
	"net/http"

	"github.com/ohowland/interconnect/internal/pkg/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gridsim"

// Exporter holds the gauges of one simulation. It implements
// datastreams.Recorder so it can be fed like any other sink.
type Exporter struct {
	registry *prometheus.Registry
	property *prometheus.GaugeVec
	simTime  prometheus.Gauge
	frames   prometheus.Counter
}

// New returns an exporter with its own registry.
func New() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Exporter{
		registry: reg,
		property: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "property",
			Help:      "Value of a reported property at the end of the last step.",
		}, []string{"kind", "name", "property", "unit"}),
		simTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time_seconds",
			Help:      "Simulation time of the last completed step.",
		}),
		frames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Completed steps observed.",
		}),
	}
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Observe sets every gauge from a frame.
func (e *Exporter) Observe(f report.Frame) {
	for _, s := range f.Snapshots {
		for _, p := range s.Properties {
			e.property.WithLabelValues(s.Kind, s.Name, p.Name, p.Unit).Set(p.Value)
		}
	}
	e.simTime.Set(float64(f.Time))
	e.frames.Inc()
}

// Record observes the frame.
func (e *Exporter) Record(_ context.Context, f report.Frame) error {
	e.Observe(f)
	return nil
}

// Close is a no-op; the gauges keep their last values for scraping.
func (e *Exporter) Close() error { return nil }

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
