package tracking

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Filter is the adaptive multi-stage cursor smoother.
//
// Each raw point goes through outlier clamping, an exponentially weighted moving
// average whose responsiveness grows with recent movement, an exponential blend with
// the previous smoothed point and finally a deadzone against the previous output.
type Filter struct {
	capacity         int
	weights          []float64
	alpha            float64
	maxAlpha         float64
	movementGain     float64
	varianceWindow   int
	outlierWindow    int
	outlierThreshold float64
	deadZone         float64
	minMovement      float64

	buffer     []ScreenPoint
	lastSmooth *ScreenPoint
	lastOutput *ScreenPoint
}

// NewFilter creates a filter from the smoothing settings of cfg.
func NewFilter(cfg Config) *Filter {
	f := &Filter{
		capacity: cfg.BufferSize,
		buffer:   make([]ScreenPoint, 0, cfg.BufferSize),
	}
	f.configure(cfg)

	// exp(linspace(-1, 0, n)), oldest first
	f.weights = linspace(-1, 0, cfg.BufferSize)
	for i, x := range f.weights {
		f.weights[i] = math.Exp(x)
	}
	floats.Scale(1/floats.Sum(f.weights), f.weights)
	return f
}

// Smooth filters one raw point. The bool is false while fewer than OutlierWindow
// points are buffered; the point is then passed through unsmoothed.
// Non-finite input leaves the filter untouched and returns the last output, if any.
func (f *Filter) Smooth(raw ScreenPoint) (ScreenPoint, bool) {
	if !raw.finite() {
		if f.lastOutput != nil {
			return *f.lastOutput, true
		}
		return raw, false
	}

	current := f.rejectOutlier(raw)
	f.push(current)

	if len(f.buffer) < f.outlierWindow {
		return current, false
	}

	alpha := f.adaptiveAlpha()
	weighted := f.weightedMean()

	smoothed := weighted
	if f.lastSmooth != nil {
		smoothed = ScreenPoint{
			X: alpha*weighted.X + (1-alpha)*f.lastSmooth.X,
			Y: alpha*weighted.Y + (1-alpha)*f.lastSmooth.Y,
		}
	}

	// The MinMovement band only matters when it is wider than the deadzone.
	if f.lastOutput != nil {
		last := *f.lastOutput
		d := smoothed.Dist(last)
		switch {
		case d < f.deadZone:
			smoothed = ScreenPoint{X: last.X*0.7 + smoothed.X*0.3, Y: last.Y*0.7 + smoothed.Y*0.3}
		case d < f.minMovement:
			smoothed = ScreenPoint{X: last.X*0.5 + smoothed.X*0.5, Y: last.Y*0.5 + smoothed.Y*0.5}
		}
	}

	out := smoothed
	f.lastSmooth = &smoothed
	f.lastOutput = &out
	return out, true
}

// configure applies the tunable settings of cfg without touching history.
// BufferSize is fixed at construction.
func (f *Filter) configure(cfg Config) {
	f.alpha = cfg.Alpha
	f.maxAlpha = cfg.MaxAlpha
	f.movementGain = cfg.MovementGain
	f.varianceWindow = cfg.VarianceWindow
	f.outlierWindow = cfg.OutlierWindow
	f.outlierThreshold = cfg.OutlierThreshold
	f.deadZone = cfg.DeadZone
	f.minMovement = cfg.MinMovement
}

// Reset clears all history.
func (f *Filter) Reset() {
	f.buffer = f.buffer[:0]
	f.lastSmooth = nil
	f.lastOutput = nil
}

// Len returns the number of buffered points.
func (f *Filter) Len() int {
	return len(f.buffer)
}

// SetAlpha changes the base smoothing factor, clamped to (0, MaxAlpha].
func (f *Filter) SetAlpha(alpha float64) {
	f.alpha = clamp(alpha, 0.01, f.maxAlpha)
}

// Alpha returns the base smoothing factor.
func (f *Filter) Alpha() float64 {
	return f.alpha
}

func (f *Filter) rejectOutlier(p ScreenPoint) ScreenPoint {
	if len(f.buffer) < f.outlierWindow {
		return p
	}
	xs, ys := screenAxes(f.buffer[len(f.buffer)-f.outlierWindow:])
	med := ScreenPoint{X: median(xs), Y: median(ys)}

	d := p.Dist(med)
	if d <= f.outlierThreshold {
		return p
	}
	scale := f.outlierThreshold / d
	return ScreenPoint{
		X: med.X + (p.X-med.X)*scale,
		Y: med.Y + (p.Y-med.Y)*scale,
	}
}

func (f *Filter) push(p ScreenPoint) {
	if len(f.buffer) == f.capacity {
		copy(f.buffer, f.buffer[1:])
		f.buffer = f.buffer[:len(f.buffer)-1]
	}
	f.buffer = append(f.buffer, p)
}

func (f *Filter) adaptiveAlpha() float64 {
	if len(f.buffer) < f.varianceWindow {
		return f.alpha
	}
	xs, ys := screenAxes(f.buffer[len(f.buffer)-f.varianceWindow:])
	intensity := (popStdDev(xs) + popStdDev(ys)) / 2
	return math.Min(f.maxAlpha, f.alpha*(1+intensity*f.movementGain))
}

// weightedMean uses the first len(buffer) weights, so a partly filled buffer still
// favours its newest points.
func (f *Filter) weightedMean() ScreenPoint {
	xs, ys := screenAxes(f.buffer)
	ws := f.weights[:len(f.buffer)]
	return ScreenPoint{X: stat.Mean(xs, ws), Y: stat.Mean(ys, ws)}
}
