// Package tracking turns per-frame gaze estimates into a stable cursor position.
//
// A Tracker owns one calibration session at a time: it gates fixations on a grid of
// screen targets, fits a gaze-to-screen mapping from the accepted samples and then
// smooths every mapped point before it reaches the cursor. Blink detection runs next
// to the mapping and emits debounced click events.
package tracking

import (
	"fmt"
	"math"
	"time"
)

// GazeVector is the eye-relative iris displacement after head-pose compensation.
// Typical range is X in [-0.6, 0.6], Y in [-0.4, 0.4].
type GazeVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScreenPoint is a position in screen pixels.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between two screen points.
func (p ScreenPoint) Dist(q ScreenPoint) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Dist returns the euclidean distance between two gaze vectors.
func (g GazeVector) Dist(h GazeVector) float64 {
	return math.Hypot(g.X-h.X, g.Y-h.Y)
}

func (p ScreenPoint) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

func (g GazeVector) finite() bool {
	return !math.IsNaN(g.X) && !math.IsNaN(g.Y) && !math.IsInf(g.X, 0) && !math.IsInf(g.Y, 0)
}

// CalibrationSample associates the averaged gaze of one fixation with its target.
type CalibrationSample struct {
	Gaze   GazeVector  `json:"gaze"`
	Screen ScreenPoint `json:"screen"`
}

// Observation is one frame's extracted features.
type Observation struct {
	Gaze        GazeVector
	EyeOpenness float64 // eye aspect ratio averaged over both eyes
	Time        time.Time
}

// Mode is the tracker's top-level state.
type Mode int

const (
	ModeAwaitingCalibration Mode = iota
	ModeCalibrating
	ModeTracking
)

func (m Mode) String() string {
	switch m {
	case ModeCalibrating:
		return "calibrating"
	case ModeTracking:
		return "tracking"
	default:
		return "awaiting_calibration"
	}
}

// CalibrationStatus describes the active target during calibration.
type CalibrationStatus struct {
	TargetIndex       int          `json:"target_index"`
	TargetCount       int          `json:"target_count"`
	Target            ScreenPoint  `json:"target"`
	SampleProgress    float64      `json:"sample_progress"`    // 0-1
	StabilityProgress float64      `json:"stability_progress"` // 0-1
	Decision          GateDecision `json:"decision"`
}

// FrameResult is what one call to OnFrame produced.
type FrameResult struct {
	Mode        Mode
	Session     string
	Calibration *CalibrationStatus // set in ModeCalibrating

	// Tracking output. HasCursor is false when the frame produced no position.
	Cursor    ScreenPoint
	HasCursor bool
	Blinked   bool

	// Err reports a per-frame skip (ErrNoFace) or a failed calibration.
	Err error
}

// MarshalText renders the mode by name in JSON.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "awaiting_calibration":
		*m = ModeAwaitingCalibration
	case "calibrating":
		*m = ModeCalibrating
	case "tracking":
		*m = ModeTracking
	default:
		return fmt.Errorf("tracking: unknown mode %q", b)
	}
	return nil
}
