// Package metric holds the Prometheus collectors for registry loads,
// lookups and the process lifecycle. All recording methods are safe on a nil
// *Metrics so callers never need to check whether metrics are configured.
package metric

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/componentry/internal/errs"
)

const namespace = "componentry"

// Metrics contains the collectors recorded by the registry and system.
type Metrics struct {
	Loads           *prometheus.CounterVec
	LoadDuration    prometheus.Histogram
	Lookups         *prometheus.CounterVec
	Implementations *prometheus.GaugeVec
	SystemState     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh Prometheus registry.
func New() (*Metrics, error) {
	m := &Metrics{
		Loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "loads_total",
				Help:      "Registry loads by result (ok, contract, config, error)",
			},
			[]string{"result"},
		),
		LoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "load_duration_seconds",
				Help:      "Registry load duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "lookups_total",
				Help:      "Registry lookups by operation and result",
			},
			[]string{"operation", "result"},
		),
		Implementations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "implementations",
				Help:      "Implementations known to the current registry by state",
			},
			[]string{"state"},
		),
		SystemState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "system",
				Name:      "state",
				Help:      "System state (0=unconfigured, 1=starting, 2=resetting, 3=configured, 4=error)",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	for _, c := range []prometheus.Collector{
		m.Loads, m.LoadDuration, m.Lookups, m.Implementations, m.SystemState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, errs.Wrap(err, "metric", "New", "register collector")
		}
	}
	return m, nil
}

// Registry returns the Prometheus registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLoad records one registry load.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(Result(err)).Inc()
	m.LoadDuration.Observe(d.Seconds())
}

// ObserveLookup records one registry lookup.
func (m *Metrics) ObserveLookup(operation string, err error) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(operation, Result(err)).Inc()
}

// SetImplementations records the enabled and disabled implementation counts.
func (m *Metrics) SetImplementations(enabled, disabled int) {
	if m == nil {
		return
	}
	m.Implementations.WithLabelValues("enabled").Set(float64(enabled))
	m.Implementations.WithLabelValues("disabled").Set(float64(disabled))
}

// SetSystemState records the numeric system state.
func (m *Metrics) SetSystemState(state int) {
	if m == nil {
		return
	}
	m.SystemState.Set(float64(state))
}

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrImplementationNotFound):
		return "not_found"
	case errors.Is(err, errs.ErrImplementationDisabled):
		return "disabled"
	case errors.Is(err, errs.ErrImplementationAmbiguous):
		return "ambiguous"
	case errors.Is(err, errs.ErrBindingMethod):
		return "binding_method"
	}
	if c, ok := errs.ClassOf(err); ok {
		return c.String()
	}
	return "error"
}
