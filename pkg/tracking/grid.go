package tracking

import "math"

// TargetState tracks a calibration target through a session.
type TargetState int

const (
	TargetPending TargetState = iota
	TargetSampling
	TargetAccepted
	TargetSkipped
)

func (s TargetState) String() string {
	switch s {
	case TargetSampling:
		return "sampling"
	case TargetAccepted:
		return "accepted"
	case TargetSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Target is one fixed point of the calibration grid.
type Target struct {
	Index int         `json:"index"`
	Row   int         `json:"row"`
	Col   int         `json:"col"`
	Point ScreenPoint `json:"point"`
	State TargetState `json:"state"`
}

// Grid returns the calibration targets in row-major order.
// Margins are truncated to whole pixels and points to integer pixel positions.
func Grid(cfg Config) []Target {
	n := cfg.GridSize
	marginX := math.Trunc(cfg.ScreenWidth * cfg.GridMargin)
	marginY := math.Trunc(cfg.ScreenHeight * cfg.GridMargin)

	xs := linspace(marginX, cfg.ScreenWidth-marginX, n)
	ys := linspace(marginY, cfg.ScreenHeight-marginY, n)

	targets := make([]Target, 0, n*n)
	for row, y := range ys {
		for col, x := range xs {
			targets = append(targets, Target{
				Index: len(targets),
				Row:   row,
				Col:   col,
				Point: ScreenPoint{X: math.Trunc(x), Y: math.Trunc(y)},
			})
		}
	}
	return targets
}
