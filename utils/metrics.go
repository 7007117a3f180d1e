package utils

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// LoopSample is what one control iteration reports to Metrics.
type LoopSample struct {
	State      string // stopped, running or faulted
	Arc        bool
	Duty       int
	FeedRate   float64
	StepDelay  int
	ArcFreq    int
	Voltage    float64
	Current    float64
	WireBurnt  float64
	FeedError  float64
	Swept      bool
	SweepSteps int
	ArcResult  string // established, timed_out or aborted when Swept
	ArcLost    bool
}

// Metrics collects loop telemetry in a private registry. There is no HTTP
// listener; WriteTextfile dumps the registry for the node exporter's
// textfile collector.
type Metrics struct {
	reg *prometheus.Registry

	duty      prometheus.Gauge
	feedRate  prometheus.Gauge
	stepDelay prometheus.Gauge
	arcFreq   prometheus.Gauge
	voltage   prometheus.Gauge
	current   prometheus.Gauge
	wireBurnt prometheus.Gauge
	feedError prometheus.Gauge
	arc       prometheus.Gauge

	iterations *prometheus.CounterVec
	sweeps     *prometheus.CounterVec
	arcLosses  prometheus.Counter
	faults     *prometheus.CounterVec
	sweepSteps prometheus.Histogram
}

func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "weld", Name: name, Help: help})
	}
	m := &Metrics{
		reg:       prometheus.NewRegistry(),
		duty:      gauge("pwm_duty", "Power stage duty, 0-255."),
		feedRate:  gauge("wire_feed_rate_mm_per_second", "Commanded wire feed rate."),
		stepDelay: gauge("step_delay_microseconds", "Stepper step period."),
		arcFreq:   gauge("arc_frequency_hz", "Power stage frequency."),
		voltage:   gauge("voltage_volts", "Sampled arc voltage."),
		current:   gauge("current_amperes", "Sampled arc current."),
		wireBurnt: gauge("wire_burnt_mm", "Estimated wire burnt in the last feed phase."),
		feedError: gauge("wire_feed_error_mm", "Burn estimate minus wire advanced per cycle."),
		arc:       gauge("arc_established", "1 while the arc is established."),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weld", Name: "iterations_total", Help: "Control iterations by run state.",
		}, []string{"state"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weld", Name: "arc_sweeps_total", Help: "Arc ignition sweeps by result.",
		}, []string{"result"}),
		arcLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weld", Name: "arc_losses_total", Help: "Established arcs that went out.",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weld", Name: "faults_total", Help: "Latched controller faults by kind.",
		}, []string{"kind"}),
		sweepSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weld",
			Name:      "arc_sweep_steps",
			Help:      "Frequency steps taken by each ignition sweep.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 9),
		}),
	}
	m.reg.MustRegister(
		m.duty, m.feedRate, m.stepDelay, m.arcFreq, m.voltage, m.current,
		m.wireBurnt, m.feedError, m.arc,
		m.iterations, m.sweeps, m.arcLosses, m.faults, m.sweepSteps,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Observe(s LoopSample) {
	m.iterations.WithLabelValues(s.State).Inc()
	m.duty.Set(float64(s.Duty))
	m.feedRate.Set(s.FeedRate)
	m.stepDelay.Set(float64(s.StepDelay))
	m.arcFreq.Set(float64(s.ArcFreq))
	m.voltage.Set(s.Voltage)
	m.current.Set(s.Current)
	m.wireBurnt.Set(s.WireBurnt)
	m.feedError.Set(s.FeedError)
	if s.Arc {
		m.arc.Set(1)
	} else {
		m.arc.Set(0)
	}
	if s.Swept {
		m.sweeps.WithLabelValues(s.ArcResult).Inc()
		m.sweepSteps.Observe(float64(s.SweepSteps))
	}
	if s.ArcLost {
		m.arcLosses.Inc()
	}
}

// Fault counts a latched fault of the given kind.
func (m *Metrics) Fault(kind string) {
	m.faults.WithLabelValues(kind).Inc()
}

// WriteTextfile atomically replaces path with the current registry contents.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
