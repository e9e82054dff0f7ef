package tracking

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoFace is reported for frames without usable landmarks. The frame is skipped.
	ErrNoFace = errors.New("tracking: no face in frame")

	// ErrInsufficientSamples is returned when fewer calibration samples than
	// Config.MinSamples were accepted.
	ErrInsufficientSamples = errors.New("tracking: insufficient calibration samples")

	// ErrNumericalFailure is returned when a mapping cannot be solved.
	ErrNumericalFailure = errors.New("tracking: numerical failure")

	// ErrUnmapped is returned when a query is made before any mapping exists.
	ErrUnmapped = errors.New("tracking: no mapping")

	// ErrInsufficientFixation is returned when a target is accepted with too few samples.
	ErrInsufficientFixation = errors.New("tracking: not enough fixation samples")

	// ErrNotCalibrating is returned by target controls outside a calibration session.
	ErrNotCalibrating = errors.New("tracking: not calibrating")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("tracking: invalid config")
)

// FitError records which mapping strategy failed and why.
type FitError struct {
	Strategy MappingKind
	Err      error
}

// Error implements the error interface.
func (e *FitError) Error() string {
	return fmt.Sprintf("tracking: %s fit: %v", e.Strategy, e.Err)
}

// Unwrap lets errors.Is match ErrNumericalFailure.
func (e *FitError) Unwrap() error {
	return e.Err
}
