// Package metric exposes engine metrics with Prometheus collectors. A nil
// *Engine is valid and measures nothing.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audiograph"

// Results of asynchronous acquisitions.
const (
	AcquisitionCreated   = "created"
	AcquisitionFailed    = "failed"
	AcquisitionDiscarded = "discarded"
)

// Engine holds engine collectors.
type Engine struct {
	units        *prometheus.GaugeVec
	pending      prometheus.Gauge
	acquisitions *prometheus.CounterVec
	quanta       prometheus.Counter
	samples      prometheus.Counter
	render       prometheus.Histogram
}

// New creates collectors and registers them.
func New(reg prometheus.Registerer) (*Engine, error) {
	m := Engine{
		units: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "units",
			Help:      "Number of live units by kind.",
		}, []string{"kind"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_units",
			Help:      "Number of units waiting for device acquisition.",
		}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Number of finished device acquisitions by result.",
		}, []string{"result"}),
		quanta: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quanta_total",
			Help:      "Number of rendered quanta.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Number of rendered samples per channel.",
		}),
		render: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a single quantum.",
			Buckets:   prometheus.ExponentialBuckets(5e-6, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{m.units, m.pending, m.acquisitions, m.quanta, m.samples, m.render} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// UnitAdded increments live units of the kind.
func (m *Engine) UnitAdded(kind string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(kind).Inc()
}

// UnitRemoved decrements live units of the kind.
func (m *Engine) UnitRemoved(kind string) {
	if m == nil {
		return
	}
	m.units.WithLabelValues(kind).Dec()
}

// AcquisitionStarted increments pending units.
func (m *Engine) AcquisitionStarted() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

// AcquisitionDone decrements pending units and counts the result.
func (m *Engine) AcquisitionDone(result string) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.acquisitions.WithLabelValues(result).Inc()
}

// MeasureFunc captures metrics when quantum is rendered.
type MeasureFunc func(blockSize int, elapsed time.Duration)

// Meter returns closure to measure rendered quanta.
func (m *Engine) Meter() MeasureFunc {
	if m == nil {
		return func(int, time.Duration) {}
	}
	return func(blockSize int, elapsed time.Duration) {
		m.quanta.Inc()
		m.samples.Add(float64(blockSize))
		m.render.Observe(elapsed.Seconds())
	}
}
