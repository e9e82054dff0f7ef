package tracking

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/teslashibe/go-gaze/internal/log"
)

// MappingKind identifies the strategy behind a Mapping.
type MappingKind int

const (
	MappingRBF MappingKind = iota
	MappingPolynomial
)

func (k MappingKind) String() string {
	if k == MappingPolynomial {
		return "polynomial"
	}
	return "rbf"
}

// MarshalText renders the kind by name in JSON.
func (k MappingKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// surface maps a gaze vector to one screen axis.
type surface interface {
	eval(g GazeVector) float64
}

// Mapping is a fitted gaze-to-screen function.
// It is either a thin-plate-spline interpolant or a ridge polynomial, one surface per axis.
type Mapping struct {
	kind   MappingKind
	x, y   surface
	bounds bounds
}

type bounds struct {
	minX, maxX float64
	minY, maxY float64
}

func screenBounds(cfg Config) bounds {
	return bounds{
		minX: cfg.EdgeInset,
		maxX: cfg.ScreenWidth - cfg.EdgeInset,
		minY: cfg.EdgeInset,
		maxY: cfg.ScreenHeight - cfg.EdgeInset,
	}
}

func (b bounds) clamp(p ScreenPoint) ScreenPoint {
	return ScreenPoint{
		X: clamp(p.X, b.minX, b.maxX),
		Y: clamp(p.Y, b.minY, b.maxY),
	}
}

// Kind returns the strategy the mapping was fitted with.
func (m *Mapping) Kind() MappingKind {
	return m.kind
}

// Query evaluates the mapping. The result is clamped inside the screen edge inset.
func (m *Mapping) Query(g GazeVector) (ScreenPoint, error) {
	if m == nil || m.x == nil || m.y == nil {
		return ScreenPoint{}, ErrUnmapped
	}
	p := ScreenPoint{X: m.x.eval(g), Y: m.y.eval(g)}
	if !p.finite() {
		return ScreenPoint{}, fmt.Errorf("%w: %s query at (%.4f, %.4f)", ErrNumericalFailure, m.kind, g.X, g.Y)
	}
	return m.bounds.clamp(p), nil
}

// Fit builds a mapping from calibration samples.
// The thin-plate spline is tried first when cfg.UseRBF is set; any numerical
// failure falls back to the ridge polynomial and is reported on logger, which may be nil.
func Fit(samples []CalibrationSample, cfg Config, logger *slog.Logger) (*Mapping, error) {
	if len(samples) < cfg.MinSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), cfg.MinSamples)
	}

	gaze := make([]GazeVector, len(samples))
	screen := make([]ScreenPoint, len(samples))
	for i, s := range samples {
		gaze[i], screen[i] = s.Gaze, s.Screen
	}
	sx, sy := screenAxes(screen)

	if cfg.UseRBF {
		m, err := fitRBF(gaze, sx, sy, cfg)
		if err == nil {
			return m, nil
		}
		if logger == nil {
			logger = log.L()
		}
		logger.Warn("rbf fit failed, falling back to polynomial", "samples", len(samples), "error", err)
	}

	m, err := fitPolynomial(gaze, sx, sy, cfg)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func fitRBF(gaze []GazeVector, sx, sy []float64, cfg Config) (*Mapping, error) {
	fx, err := newThinPlateSpline(gaze, sx, cfg.RBFSmoothing)
	if err != nil {
		return nil, &FitError{Strategy: MappingRBF, Err: err}
	}
	fy, err := newThinPlateSpline(gaze, sy, cfg.RBFSmoothing)
	if err != nil {
		return nil, &FitError{Strategy: MappingRBF, Err: err}
	}
	return &Mapping{kind: MappingRBF, x: fx, y: fy, bounds: screenBounds(cfg)}, nil
}

func fitPolynomial(gaze []GazeVector, sx, sy []float64, cfg Config) (*Mapping, error) {
	fx, err := newRidgePolynomial(gaze, sx, cfg.RidgeLambda)
	if err != nil {
		return nil, &FitError{Strategy: MappingPolynomial, Err: err}
	}
	fy, err := newRidgePolynomial(gaze, sy, cfg.RidgeLambda)
	if err != nil {
		return nil, &FitError{Strategy: MappingPolynomial, Err: err}
	}
	return &Mapping{kind: MappingPolynomial, x: fx, y: fy, bounds: screenBounds(cfg)}, nil
}

// normalizer maps gaze coordinates onto roughly [-1, 1] per axis.
type normalizer struct {
	shiftX, scaleX float64
	shiftY, scaleY float64
}

func newNormalizer(gaze []GazeVector) normalizer {
	xs, ys := gazeAxes(gaze)
	n := normalizer{}
	n.shiftX, n.scaleX = midRange(xs)
	n.shiftY, n.scaleY = midRange(ys)
	return n
}

func (n normalizer) apply(g GazeVector) (u, v float64) {
	return (g.X - n.shiftX) / n.scaleX, (g.Y - n.shiftY) / n.scaleY
}

// midRange returns the midpoint and half-range of xs; the half-range is 1 for constant input.
func midRange(xs []float64) (mid, half float64) {
	lo, hi := floats.Min(xs), floats.Max(xs)
	mid = (lo + hi) / 2
	half = (hi - lo) / 2
	if half == 0 {
		half = 1
	}
	return mid, half
}

func finiteAll(xs []float64) error {
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite coefficient %d", ErrNumericalFailure, i)
		}
	}
	return nil
}

// IsFitFailure reports whether err came from a failed fit rather than too few samples.
func IsFitFailure(err error) bool {
	var fe *FitError
	return errors.As(err, &fe)
}
