package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the progress of fuzzing runs. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	seeds      prometheus.Counter
	rounds     prometheus.Counter
	earlyStops prometheus.Counter
	covered    prometheus.Counter
	gain       prometheus.Histogram
	missing    *prometheus.GaugeVec
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		seeds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "seeds_total",
			Help:      "Number of fuzzed seeds.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "rounds_total",
			Help:      "Number of fuzzing rounds.",
		}),
		earlyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "early_stops_total",
			Help:      "Seeds stopped after two rounds without new coverage.",
		}),
		covered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "covered_units_total",
			Help:      "Coverage units newly produced by fuzzing rounds.",
		}),
		gain: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "round_gain",
			Help:      "Coverage units newly produced by a single round.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		missing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tracegram",
			Subsystem: "fuzz",
			Name:      "missing_units",
			Help:      "Coverage units not produced when a seed finished.",
		}, []string{"run"}),
	}
	m.registry.MustRegister(m.seeds, m.rounds, m.earlyStops, m.covered, m.gain, m.missing)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes the metrics to path in the Prometheus text format.
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeRound(gain int) {
	if m == nil {
		return
	}
	m.rounds.Inc()
	m.covered.Add(float64(gain))
	m.gain.Observe(float64(gain))
}

func (m *Metrics) observeSeed(run string, missing int, stopped bool) {
	if m == nil {
		return
	}
	m.seeds.Inc()
	if stopped {
		m.earlyStops.Inc()
	}
	m.missing.WithLabelValues(run).Set(float64(missing))
}
