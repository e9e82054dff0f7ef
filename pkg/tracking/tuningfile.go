package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningFile is the on-disk form of Config overrides.
// Every field is optional; fields omitted from the JSON keep the base config's value.
type TuningFile struct {
	ScreenWidth  *float64 `json:"screen_width,omitempty"`
	ScreenHeight *float64 `json:"screen_height,omitempty"`

	// Calibration
	GridSize        *int     `json:"grid_size,omitempty"`
	GridMargin      *float64 `json:"grid_margin,omitempty"`
	HoldSamples     *int     `json:"hold_samples,omitempty"`
	MinStableFrames *int     `json:"min_stable_frames,omitempty"`
	StableTolerance *float64 `json:"stable_tolerance,omitempty"`
	TargetSettle    *string  `json:"target_settle,omitempty"` // duration string like "300ms"

	// Mapping
	UseRBF       *bool    `json:"use_rbf,omitempty"`
	RBFSmoothing *float64 `json:"rbf_smoothing,omitempty"`
	RidgeLambda  *float64 `json:"ridge_lambda,omitempty"`
	LocalRefine  *bool    `json:"local_refine,omitempty"`
	LocalBlend   *float64 `json:"local_blend,omitempty"`

	// Smoothing
	Alpha            *float64 `json:"alpha,omitempty"`
	MaxAlpha         *float64 `json:"max_alpha,omitempty"`
	OutlierThreshold *float64 `json:"outlier_threshold,omitempty"`
	DeadZone         *float64 `json:"dead_zone,omitempty"`
	MinMovement      *float64 `json:"min_movement,omitempty"`

	// Blink
	BlinkThreshold *float64 `json:"blink_threshold,omitempty"`
	BlinkDebounce  *string  `json:"blink_debounce,omitempty"` // duration string like "500ms"
}

const maxTuningFileSize = 1 * 1024 * 1024 // 1MB

// LoadTuningFile reads overrides from a JSON file and applies them to base.
// The result is validated.
func LoadTuningFile(path string, base Config) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return base, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return base, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	if fileInfo.Size() > maxTuningFileSize {
		return base, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxTuningFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return base, fmt.Errorf("failed to read tuning file: %w", err)
	}

	var tf TuningFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return base, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	cfg, err := tf.Apply(base)
	if err != nil {
		return base, err
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("invalid tuning file: %w", err)
	}
	return cfg, nil
}

// Apply returns base with every set field overridden.
func (f *TuningFile) Apply(base Config) (Config, error) {
	cfg := base

	setFloat(&cfg.ScreenWidth, f.ScreenWidth)
	setFloat(&cfg.ScreenHeight, f.ScreenHeight)

	setInt(&cfg.GridSize, f.GridSize)
	setFloat(&cfg.GridMargin, f.GridMargin)
	setInt(&cfg.HoldSamples, f.HoldSamples)
	setInt(&cfg.MinStableFrames, f.MinStableFrames)
	setFloat(&cfg.StableTolerance, f.StableTolerance)
	if err := setDuration(&cfg.TargetSettle, f.TargetSettle, "target_settle"); err != nil {
		return base, err
	}

	setBool(&cfg.UseRBF, f.UseRBF)
	setFloat(&cfg.RBFSmoothing, f.RBFSmoothing)
	setFloat(&cfg.RidgeLambda, f.RidgeLambda)
	setBool(&cfg.LocalRefine, f.LocalRefine)
	setFloat(&cfg.LocalBlend, f.LocalBlend)

	setFloat(&cfg.Alpha, f.Alpha)
	setFloat(&cfg.MaxAlpha, f.MaxAlpha)
	setFloat(&cfg.OutlierThreshold, f.OutlierThreshold)
	setFloat(&cfg.DeadZone, f.DeadZone)
	setFloat(&cfg.MinMovement, f.MinMovement)

	setFloat(&cfg.BlinkThreshold, f.BlinkThreshold)
	if err := setDuration(&cfg.BlinkDebounce, f.BlinkDebounce, "blink_debounce"); err != nil {
		return base, err
	}

	return cfg, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, *v, err)
	}
	*dst = d
	return nil
}
