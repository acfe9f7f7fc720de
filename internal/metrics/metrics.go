// Package metrics exposes run metrics through a private Prometheus
// registry. Recorder implements harness.Observer.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/opcheck/internal/harness"
)

const namespace = "opcheck"

// Recorder collects case and suite metrics. It is safe for concurrent use.
type Recorder struct {
	reg *prometheus.Registry

	cases     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	suitePass *prometheus.GaugeVec
	runs      prometheus.Counter
}

// New creates a recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		cases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Help:      "Number of evaluated cases by outcome",
				Name:      "cases_total",
				Namespace: namespace,
			},
			[]string{"suite", "status"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Help:      "Case evaluation time by root operator",
				Name:      "case_duration_seconds",
				Namespace: namespace,
				Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 8),
			},
			[]string{"op"},
		),
		suitePass: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Help:      "Whether the last run of a suite passed",
				Name:      "suite_pass",
				Namespace: namespace,
			},
			[]string{"suite"},
		),
		runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Help:      "Number of suite runs",
				Name:      "runs_total",
				Namespace: namespace,
			},
		),
	}
	r.reg.MustRegister(r.cases, r.durations, r.suitePass, r.runs)
	return r
}

// ObserveCase implements harness.Observer.
func (r *Recorder) ObserveCase(suite string, c harness.Case, o harness.Outcome, elapsed time.Duration) {
	r.cases.WithLabelValues(suite, string(o.Status)).Inc()
	r.durations.WithLabelValues(c.Op().String()).Observe(elapsed.Seconds())
}

// ObserveRun implements harness.Observer.
func (r *Recorder) ObserveRun(res *harness.RunResult) {
	r.runs.Inc()
	pass := 0.0
	if res.Pass {
		pass = 1
	}
	r.suitePass.WithLabelValues(res.Suite).Set(pass)
}

// Registry returns the recorder's registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WriteTextfile writes all metrics in the node-exporter textfile format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

var _ harness.Observer = (*Recorder)(nil)
