package tracking

// LocalRefiner sharpens the mapping inside one screen region (the on-screen keyboard)
// by blending in an inverse-distance-weighted estimate built from the calibration
// samples that lie in that region.
type LocalRefiner struct {
	enabled    bool
	regionTop  float64 // pixels
	width      float64
	height     float64
	minSamples int
	blend      float64
	epsilon    float64
}

// NewLocalRefiner creates a refiner for the region below cfg.RegionTop.
func NewLocalRefiner(cfg Config) *LocalRefiner {
	return &LocalRefiner{
		enabled:    cfg.LocalRefine,
		regionTop:  cfg.ScreenHeight * cfg.RegionTop,
		width:      cfg.ScreenWidth,
		height:     cfg.ScreenHeight,
		minSamples: cfg.LocalMinSamples,
		blend:      cfg.LocalBlend,
		epsilon:    cfg.IDWEpsilon,
	}
}

// InRegion reports whether p falls in the refined region.
func (r *LocalRefiner) InRegion(p ScreenPoint) bool {
	return p.X >= 0 && p.X <= r.width && p.Y >= r.regionTop && p.Y <= r.height
}

// Refine returns the blended estimate for p, or p unchanged when p is outside the
// region, too few samples are local or the weights degenerate.
func (r *LocalRefiner) Refine(p ScreenPoint, g GazeVector, samples []CalibrationSample) ScreenPoint {
	if !r.enabled || !r.InRegion(p) {
		return p
	}

	var local ScreenPoint
	var total float64
	count := 0
	for _, s := range samples {
		if !r.InRegion(s.Screen) {
			continue
		}
		w := 1 / (g.Dist(s.Gaze) + r.epsilon)
		local.X += w * s.Screen.X
		local.Y += w * s.Screen.Y
		total += w
		count++
	}
	if count < r.minSamples || total == 0 {
		return p
	}
	local.X /= total
	local.Y /= total

	out := ScreenPoint{
		X: p.X*(1-r.blend) + local.X*r.blend,
		Y: p.Y*(1-r.blend) + local.Y*r.blend,
	}
	if !out.finite() {
		return p
	}
	return out
}
