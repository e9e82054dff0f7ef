package tracking

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all tunable parameters for calibration, mapping, smoothing and blinks.
type Config struct {
	// Screen
	ScreenWidth  float64 `json:"screen_width"`
	ScreenHeight float64 `json:"screen_height"`

	// Calibration grid
	GridSize   int     `json:"grid_size"`   // N for an N x N grid
	GridMargin float64 `json:"grid_margin"` // Fraction of each dimension left free at the edges

	// Stability gate
	HoldSamples        int     `json:"hold_samples"`        // Samples buffered per target
	StabilityWindow    int     `json:"stability_window"`    // Recent samples checked for stability
	MinStableFrames    int     `json:"min_stable_frames"`   // Stability counter needed to accept
	StableTolerance    float64 `json:"stable_tolerance"`    // Max per-axis std-dev of a stable window
	InstabilityPenalty int     `json:"instability_penalty"` // Counter decrement on an unstable window
	ForceAcceptMin     int     `json:"force_accept_min"`    // Accept needs more samples than this
	TrimFraction       float64 `json:"trim_fraction"`       // Share of samples kept around the median
	CenterDecay        float64 `json:"center_decay"`        // Weight decay away from the temporal center

	// TargetSettle ignores observations for this long after the target changes.
	TargetSettle time.Duration `json:"-"`

	// Mapping
	MinSamples   int     `json:"min_samples"`
	UseRBF       bool    `json:"use_rbf"`
	RBFSmoothing float64 `json:"rbf_smoothing"`
	RidgeLambda  float64 `json:"ridge_lambda"`
	EdgeInset    float64 `json:"edge_inset"` // Pixels kept free at every screen edge

	// Local refinement (on-screen keyboard region)
	LocalRefine     bool    `json:"local_refine"`
	RegionTop       float64 `json:"region_top"` // Region starts at this fraction of the height
	LocalMinSamples int     `json:"local_min_samples"`
	LocalBlend      float64 `json:"local_blend"` // Weight of the local estimate
	IDWEpsilon      float64 `json:"idw_epsilon"`

	// Smoothing
	BufferSize       int     `json:"buffer_size"`
	Alpha            float64 `json:"alpha"`     // Base exponential smoothing factor
	MaxAlpha         float64 `json:"max_alpha"` // Cap while moving
	MovementGain     float64 `json:"movement_gain"`
	VarianceWindow   int     `json:"variance_window"`
	OutlierWindow    int     `json:"outlier_window"`
	OutlierThreshold float64 `json:"outlier_threshold"` // Pixels
	DeadZone         float64 `json:"dead_zone"`         // Pixels
	MinMovement      float64 `json:"min_movement"`      // Pixels

	// Blink
	BlinkThreshold float64 `json:"blink_threshold"` // Until calibrated
	EARScale       float64 `json:"ear_scale"`
	EARMin         float64 `json:"ear_min"`
	EARMax         float64 `json:"ear_max"`

	// BlinkDebounce is the minimum time between two clicks.
	BlinkDebounce time.Duration `json:"-"`
}

// DefaultConfig returns the reference configuration for a 1920x1080 screen.
func DefaultConfig() Config {
	return Config{
		ScreenWidth:  1920,
		ScreenHeight: 1080,

		// 3x3 grid, 8% margin
		GridSize:   3,
		GridMargin: 0.08,

		// Strict fixation gating
		HoldSamples:        100,
		StabilityWindow:    15,
		MinStableFrames:    60,
		StableTolerance:    0.015,
		InstabilityPenalty: 5,
		ForceAcceptMin:     20,
		TrimFraction:       0.6,
		CenterDecay:        0.05,

		MinSamples:   6,
		UseRBF:       true,
		RBFSmoothing: 0.1,
		RidgeLambda:  1e-3,
		EdgeInset:    5,

		// Bottom 40% is treated as keyboard area
		LocalRefine:     true,
		RegionTop:       0.6,
		LocalMinSamples: 3,
		LocalBlend:      0.7,
		IDWEpsilon:      0.01,

		BufferSize:       8,
		Alpha:            0.35,
		MaxAlpha:         0.8,
		MovementGain:     0.5,
		VarianceWindow:   4,
		OutlierWindow:    3,
		OutlierThreshold: 25,
		DeadZone:         3,
		MinMovement:      1.5,

		BlinkThreshold: 0.25,
		BlinkDebounce:  500 * time.Millisecond,
		EARScale:       0.75,
		EARMin:         0.15,
		EARMax:         0.30,
	}
}

// StableConfig trades responsiveness for a calmer cursor.
func StableConfig() Config {
	cfg := DefaultConfig()
	cfg.Alpha = 0.25
	cfg.MaxAlpha = 0.6
	cfg.DeadZone = 5
	cfg.OutlierThreshold = 20
	return cfg
}

// ResponsiveConfig follows gaze faster at the cost of more jitter.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.Alpha = 0.5
	cfg.MaxAlpha = 0.9
	cfg.DeadZone = 2
	cfg.OutlierThreshold = 40
	return cfg
}

// WithScreen returns a copy of the config sized for the given screen.
func (c Config) WithScreen(width, height int) Config {
	c.ScreenWidth = float64(width)
	c.ScreenHeight = float64(height)
	return c
}

// Validate checks that the config can drive a tracker.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.ScreenWidth > 2*c.EdgeInset && c.ScreenHeight > 2*c.EdgeInset,
		"screen %vx%v too small for edge inset %v", c.ScreenWidth, c.ScreenHeight, c.EdgeInset)
	check(c.GridSize >= 2, "grid_size must be at least 2, got %d", c.GridSize)
	check(c.GridMargin >= 0 && c.GridMargin < 0.5, "grid_margin must be in [0, 0.5), got %v", c.GridMargin)
	check(c.StabilityWindow >= 2, "stability_window must be at least 2, got %d", c.StabilityWindow)
	check(c.HoldSamples >= c.StabilityWindow, "hold_samples (%d) must be >= stability_window (%d)", c.HoldSamples, c.StabilityWindow)
	check(c.ForceAcceptMin+1 >= c.StabilityWindow, "force_accept_min (%d) must leave at least stability_window samples", c.ForceAcceptMin)
	check(c.HoldSamples > c.ForceAcceptMin, "hold_samples (%d) must exceed force_accept_min (%d)", c.HoldSamples, c.ForceAcceptMin)
	check(c.MinStableFrames >= 1, "min_stable_frames must be positive")
	check(c.StableTolerance > 0, "stable_tolerance must be positive")
	check(c.InstabilityPenalty >= 1, "instability_penalty must be positive")
	check(c.TrimFraction > 0 && c.TrimFraction <= 1, "trim_fraction must be in (0, 1], got %v", c.TrimFraction)
	check(c.CenterDecay >= 0, "center_decay must not be negative")
	check(c.TargetSettle >= 0, "target settle must not be negative")
	check(c.MinSamples >= 6, "min_samples must be at least 6, got %d", c.MinSamples)
	check(c.RBFSmoothing >= 0, "rbf_smoothing must not be negative")
	check(c.RidgeLambda > 0, "ridge_lambda must be positive")
	check(c.EdgeInset >= 0, "edge_inset must not be negative")
	check(c.RegionTop >= 0 && c.RegionTop <= 1, "region_top must be in [0, 1]")
	check(c.LocalMinSamples >= 1, "local_min_samples must be positive")
	check(c.LocalBlend >= 0 && c.LocalBlend <= 1, "local_blend must be in [0, 1]")
	check(c.IDWEpsilon > 0, "idw_epsilon must be positive")
	check(c.BufferSize >= c.OutlierWindow && c.BufferSize >= c.VarianceWindow, "buffer_size must hold the outlier and variance windows")
	check(c.OutlierWindow >= 1 && c.VarianceWindow >= 2, "outlier_window and variance_window too small")
	check(c.Alpha > 0 && c.Alpha <= c.MaxAlpha && c.MaxAlpha <= 1, "need 0 < alpha <= max_alpha <= 1")
	check(c.OutlierThreshold > 0, "outlier_threshold must be positive")
	check(c.DeadZone >= 0 && c.MinMovement >= 0, "dead_zone and min_movement must not be negative")
	check(c.BlinkThreshold > 0, "blink_threshold must be positive")
	check(c.BlinkDebounce >= 0, "blink debounce must not be negative")
	check(c.EARMin > 0 && c.EARMin <= c.EARMax, "need 0 < ear_min <= ear_max")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
