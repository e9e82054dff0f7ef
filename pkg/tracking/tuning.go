package tracking

import "time"

// Smoothing adjustment limits for AdjustSmoothing.
const (
	MinTunedAlpha = 0.1
	MaxTunedAlpha = 0.7
	AlphaStep     = 0.05
)

// TuningParams holds the real-time adjustable tracking parameters.
// These can be modified through the tuning API without recalibrating.
type TuningParams struct {
	// Smoothing
	Alpha            float64 `json:"alpha"`             // Base EMA alpha (0.2=smooth, 0.5=responsive)
	MaxAlpha         float64 `json:"max_alpha"`         // Cap while the gaze moves
	MovementGain     float64 `json:"movement_gain"`     // Alpha boost per unit of movement
	OutlierThreshold float64 `json:"outlier_threshold"` // Pixels
	DeadZone         float64 `json:"dead_zone"`         // Pixels
	MinMovement      float64 `json:"min_movement"`      // Pixels

	// Keyboard region
	LocalBlend float64 `json:"local_blend"` // Weight of the local estimate (0-1)

	// Blink
	BlinkDebounceMs float64 `json:"blink_debounce_ms"`
}

// GetTuningParams returns the current tuning parameters.
func (t *Tracker) GetTuningParams() TuningParams {
	return TuningParams{
		Alpha:            t.config.Alpha,
		MaxAlpha:         t.config.MaxAlpha,
		MovementGain:     t.config.MovementGain,
		OutlierThreshold: t.config.OutlierThreshold,
		DeadZone:         t.config.DeadZone,
		MinMovement:      t.config.MinMovement,
		LocalBlend:       t.config.LocalBlend,
		BlinkDebounceMs:  float64(t.config.BlinkDebounce) / float64(time.Millisecond),
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only non-zero values are applied. Filter history and calibration are kept.
func (t *Tracker) SetTuningParams(params TuningParams) {
	cfg := t.config

	// Smoothing
	if params.MaxAlpha > 0 {
		cfg.MaxAlpha = clamp(params.MaxAlpha, 0.01, 1.0)
	}
	if params.Alpha > 0 {
		cfg.Alpha = params.Alpha
	}
	cfg.Alpha = clamp(cfg.Alpha, 0.01, cfg.MaxAlpha)
	if params.MovementGain > 0 {
		cfg.MovementGain = params.MovementGain
	}
	if params.OutlierThreshold > 0 {
		cfg.OutlierThreshold = params.OutlierThreshold
	}
	if params.DeadZone > 0 {
		cfg.DeadZone = params.DeadZone
	}
	if params.MinMovement > 0 {
		cfg.MinMovement = params.MinMovement
	}

	// Keyboard region
	if params.LocalBlend > 0 {
		cfg.LocalBlend = clamp(params.LocalBlend, 0.0, 1.0)
	}

	// Blink
	if params.BlinkDebounceMs > 0 {
		cfg.BlinkDebounce = time.Duration(params.BlinkDebounceMs * float64(time.Millisecond))
	}

	t.apply(cfg)
}

// AdjustSmoothing moves the base alpha by delta within [MinTunedAlpha, MaxTunedAlpha]
// and returns the new value. A negative delta smooths more.
func (t *Tracker) AdjustSmoothing(delta float64) float64 {
	cfg := t.config
	cfg.Alpha = clamp(cfg.Alpha+delta, MinTunedAlpha, min(MaxTunedAlpha, cfg.MaxAlpha))
	t.apply(cfg)

	t.logger.Info("smoothing adjusted", "alpha", cfg.Alpha)
	return cfg.Alpha
}

func (t *Tracker) apply(cfg Config) {
	if cfg.MinMovement <= cfg.DeadZone && t.config.MinMovement > t.config.DeadZone {
		t.logger.Warn("min movement is inside the dead zone, the 50/50 blend band is unused",
			"dead_zone", cfg.DeadZone, "min_movement", cfg.MinMovement)
	}

	t.config = cfg
	t.filter.configure(cfg)
	t.refiner = NewLocalRefiner(cfg)
	t.blink.SetDebounce(cfg.BlinkDebounce)
}
