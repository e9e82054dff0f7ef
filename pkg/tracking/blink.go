package tracking

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// BlinkDetector turns eye openness into debounced click events.
type BlinkDetector struct {
	defaultThreshold float64
	threshold        float64
	debounce         time.Duration
	scale            float64
	minThreshold     float64
	maxThreshold     float64

	closed    bool
	lastClick time.Time
	clicked   bool
}

// NewBlinkDetector creates a detector using cfg.BlinkThreshold until calibrated.
func NewBlinkDetector(cfg Config) *BlinkDetector {
	return &BlinkDetector{
		defaultThreshold: cfg.BlinkThreshold,
		threshold:        cfg.BlinkThreshold,
		debounce:         cfg.BlinkDebounce,
		scale:            cfg.EARScale,
		minThreshold:     cfg.EARMin,
		maxThreshold:     cfg.EARMax,
	}
}

// Calibrate sets the threshold from eye openness values seen with open eyes.
// An empty pool keeps the current threshold.
func (b *BlinkDetector) Calibrate(openEAR []float64) float64 {
	if len(openEAR) == 0 {
		return b.threshold
	}
	b.threshold = clamp(stat.Mean(openEAR, nil)*b.scale, b.minThreshold, b.maxThreshold)
	return b.threshold
}

// Threshold returns the active eye openness threshold.
func (b *BlinkDetector) Threshold() float64 {
	return b.threshold
}

// Closed reports whether the last update saw a closed eye.
func (b *BlinkDetector) Closed() bool {
	return b.closed
}

// Update feeds one eye openness value and reports whether a click fires.
// Clicks fire on the open-to-closed edge, at most once per debounce interval.
func (b *BlinkDetector) Update(ear float64, now time.Time) bool {
	closed := ear < b.threshold
	rising := closed && !b.closed
	b.closed = closed

	if !rising {
		return false
	}
	if b.clicked && now.Sub(b.lastClick) < b.debounce {
		return false
	}
	b.lastClick = now
	b.clicked = true
	return true
}

// SetDebounce changes the minimum time between clicks.
func (b *BlinkDetector) SetDebounce(d time.Duration) {
	b.debounce = d
}

// Debounce returns the minimum time between clicks.
func (b *BlinkDetector) Debounce() time.Duration {
	return b.debounce
}

// Reset restores the default threshold and forgets edge and click history.
func (b *BlinkDetector) Reset() {
	b.threshold = b.defaultThreshold
	b.closed = false
	b.clicked = false
	b.lastClick = time.Time{}
}
