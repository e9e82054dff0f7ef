// Package metrics exports frame loop counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-gaze/pkg/tracking"
)

const namespace = "gaze"

// Metrics holds the collectors on a private registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	frames       *prometheus.CounterVec
	frameSeconds prometheus.Histogram
	clicks       prometheus.Counter
	calibrations *prometheus.CounterVec
	mode         *prometheus.GaugeVec
	samples      prometheus.Gauge
	alpha        prometheus.Gauge
	threshold    prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames processed, by outcome (face, miss, error)",
			},
			[]string{"outcome"},
		),
		frameSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_seconds",
				Help:      "Detection, extraction and tracking time per frame",
				Buckets:   []float64{0.002, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1, 0.25},
			},
		),
		clicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clicks_total",
				Help:      "Blink clicks dispatched",
			},
		),
		calibrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calibrations_total",
				Help:      "Finished calibration sessions, by result (rbf, polynomial, failed)",
			},
			[]string{"result"},
		),
		mode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mode",
				Help:      "1 for the current tracker mode, 0 otherwise",
			},
			[]string{"mode"},
		),
		samples: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calibration_samples",
				Help:      "Samples behind the current mapping",
			},
		),
		alpha: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "smoothing_alpha",
				Help:      "Base smoothing alpha",
			},
		),
		threshold: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "blink_threshold",
				Help:      "Active eye openness threshold",
			},
		),
	}

	m.registry.MustRegister(m.frames, m.frameSeconds, m.clicks, m.calibrations,
		m.mode, m.samples, m.alpha, m.threshold)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Frame records one processed frame.
func (m *Metrics) Frame(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(outcome).Inc()
	m.frameSeconds.Observe(d.Seconds())
}

// Click records a dispatched click.
func (m *Metrics) Click() {
	if m == nil {
		return
	}
	m.clicks.Inc()
}

// CalibrationFailed records a session that ended without a mapping.
func (m *Metrics) CalibrationFailed() {
	if m == nil {
		return
	}
	m.calibrations.WithLabelValues("failed").Inc()
}

// State mirrors a status snapshot. complete is true when the snapshot follows a
// successful fit.
func (m *Metrics) State(st tracking.State, complete bool) {
	if m == nil {
		return
	}
	for _, mode := range []tracking.Mode{tracking.ModeAwaitingCalibration, tracking.ModeCalibrating, tracking.ModeTracking} {
		v := 0.0
		if mode == st.Mode {
			v = 1
		}
		m.mode.WithLabelValues(mode.String()).Set(v)
	}
	if complete {
		m.calibrations.WithLabelValues(st.Mapping).Inc()
	}
	m.samples.Set(float64(st.SampleCount))
	m.alpha.Set(st.Alpha)
	m.threshold.Set(st.BlinkThreshold)
}
