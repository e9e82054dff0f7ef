package tracking

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Weights(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())
	require.Len(t, f.weights, 8)

	var sum float64
	for i, w := range f.weights {
		sum += w
		if i > 0 {
			assert.Greater(t, w, f.weights[i-1], "newest points weigh most")
		}
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.InDelta(t, math.E, f.weights[7]/f.weights[0], 1e-12)
}

func TestFilter_InsufficientHistory(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())

	p, ok := f.Smooth(ScreenPoint{X: 10, Y: 20})
	assert.False(t, ok)
	assert.Equal(t, ScreenPoint{X: 10, Y: 20}, p)

	p, ok = f.Smooth(ScreenPoint{X: 30, Y: 40})
	assert.False(t, ok)
	assert.Equal(t, ScreenPoint{X: 30, Y: 40}, p)

	_, ok = f.Smooth(ScreenPoint{X: 30, Y: 40})
	assert.True(t, ok)
}

func TestFilter_ConstantInputIsFixedPoint(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())
	c := ScreenPoint{X: 812, Y: 377}
	for i := 0; i < 50; i++ {
		p, _ := f.Smooth(c)
		assert.InDelta(t, c.X, p.X, 1e-9)
		assert.InDelta(t, c.Y, p.Y, 1e-9)
	}
}

func TestFilter_StepConverges(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())
	for i := 0; i < 20; i++ {
		f.Smooth(ScreenPoint{X: 200, Y: 200})
	}

	target := ScreenPoint{X: 600, Y: 500}
	var p ScreenPoint
	prev := math.Inf(1)
	for i := 0; i < 300; i++ {
		p, _ = f.Smooth(target)
		d := p.Dist(target)
		assert.LessOrEqual(t, d, prev+1e-9, "frame %d moved away from the target", i)
		prev = d
	}
	assert.Less(t, p.Dist(target), 1.0)
}

func TestFilter_OutlierClamped(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	f := NewFilter(cfg)
	for i := 0; i < 5; i++ {
		f.Smooth(ScreenPoint{X: 100, Y: 100})
	}

	f.Smooth(ScreenPoint{X: 1000, Y: 100})
	last := f.buffer[len(f.buffer)-1]
	assert.InDelta(t, 100+cfg.OutlierThreshold, last.X, 1e-9)
	assert.InDelta(t, 100, last.Y, 1e-9)
}

func TestFilter_OutputBoundedPerFrame(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	f := NewFilter(cfg)
	var last ScreenPoint
	for i := 0; i < 10; i++ {
		last, _ = f.Smooth(ScreenPoint{X: 960, Y: 540})
	}

	// A wild jump can move the output by at most the outlier radius.
	p, _ := f.Smooth(ScreenPoint{X: 0, Y: 0})
	assert.LessOrEqual(t, p.Dist(last), cfg.OutlierThreshold)
}

func TestFilter_DeadZone(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())
	base := ScreenPoint{X: 500, Y: 500}
	for i := 0; i < 8; i++ {
		f.Smooth(base)
	}

	// The smoothed move is well under 3 px, so only 30% of it is kept.
	smoothedOnly := NewFilter(DefaultConfig())
	smoothedOnly.deadZone, smoothedOnly.minMovement = 0, 0
	for i := 0; i < 8; i++ {
		smoothedOnly.Smooth(base)
	}

	next := ScreenPoint{X: 504, Y: 500}
	p, _ := f.Smooth(next)
	q, _ := smoothedOnly.Smooth(next)
	require.Less(t, q.X-base.X, 3.0)
	assert.InDelta(t, base.X+0.3*(q.X-base.X), p.X, 1e-9)
}

// With MinMovement <= DeadZone the 50/50 band is unreachable: every move under
// MinMovement is already inside the dead zone.
func TestFilter_MinMovementBandEmptyInsideDeadZone(t *testing.T) {
	t.Parallel()

	withBand := DefaultConfig() // DeadZone 3, MinMovement 1.5
	noBand := DefaultConfig()
	noBand.MinMovement = 0

	a, b := NewFilter(withBand), NewFilter(noBand)
	inputs := []ScreenPoint{{500, 500}, {500, 500}, {500, 500}, {501, 500}, {502, 501}, {501.5, 500.5}, {503, 502}, {502, 502}}
	for _, in := range inputs {
		pa, _ := a.Smooth(in)
		pb, _ := b.Smooth(in)
		assert.Equal(t, pb, pa)
	}

	// Widening MinMovement past the dead zone makes the band reachable.
	wide := DefaultConfig()
	wide.DeadZone = 0
	wide.MinMovement = 10
	c, d := NewFilter(wide), NewFilter(noBand)
	d.deadZone = 0
	var differs bool
	for _, in := range inputs {
		pc, _ := c.Smooth(in)
		pd, _ := d.Smooth(in)
		if pc != pd {
			differs = true
		}
	}
	assert.True(t, differs)
}

func TestFilter_AdaptiveAlpha(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	f := NewFilter(cfg)
	for i := 0; i < 4; i++ {
		f.push(ScreenPoint{X: 100, Y: 100})
	}
	assert.InDelta(t, cfg.Alpha, f.adaptiveAlpha(), 1e-12)

	f.Reset()
	for i := 0; i < 4; i++ {
		f.push(ScreenPoint{X: float64(i) * 20, Y: 100})
	}
	assert.InDelta(t, cfg.MaxAlpha, f.adaptiveAlpha(), 1e-12)
}

func TestFilter_ResetAndNonFinite(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultConfig())
	for i := 0; i < 5; i++ {
		f.Smooth(ScreenPoint{X: 300, Y: 300})
	}

	p, ok := f.Smooth(ScreenPoint{X: math.NaN(), Y: 1})
	assert.True(t, ok)
	assert.InDelta(t, 300, p.X, 1e-9)
	assert.InDelta(t, 300, p.Y, 1e-9)
	assert.Equal(t, 5, f.Len())

	f.Reset()
	assert.Zero(t, f.Len())
	p, ok = f.Smooth(ScreenPoint{X: 10, Y: 10})
	assert.False(t, ok)
	assert.Equal(t, ScreenPoint{X: 10, Y: 10}, p)
}
