// Package features turns face mesh landmarks into a head-compensated gaze vector
// and an eye openness measure.
package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
)

var (
	// ErrInsufficientLandmarks is returned for meshes without iris refinement.
	ErrInsufficientLandmarks = errors.New("features: mesh has no iris landmarks")

	// ErrDegenerateEye is returned when an eye's geometry yields non-finite values.
	ErrDegenerateEye = errors.New("features: degenerate eye geometry")
)

// Extraction constants.
const (
	MinEyeWidth   = 25.0 // pixels; narrower eyes are widened, not rejected
	MaxIrisX      = 0.6
	MaxIrisY      = 0.4
	EyeDominance  = 0.55 // weight of the left eye
	HeadTiltGainX = 0.3
	HeadTiltGainY = 0.2
)

// irisWeights favour the top and bottom iris points.
var irisWeights = [4]float64{1.2, 1.0, 1.2, 1.0}

// Point is a pixel position in the camera frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyeGeometry holds the intermediate values behind a gaze estimate, for overlays.
type EyeGeometry struct {
	LeftIris    Point `json:"left_iris"`
	RightIris   Point `json:"right_iris"`
	LeftCenter  Point `json:"left_center"`
	RightCenter Point `json:"right_center"`
	HeadTilt    Point `json:"head_tilt"` // normalized by frame size
}

// Features is one frame's extraction result.
type Features struct {
	Gaze tracking.GazeVector `json:"gaze"`
	EAR  float64             `json:"ear"` // eye aspect ratio averaged over both eyes
	Eyes EyeGeometry         `json:"eyes"`
}

// Observation converts the features into a tracker observation.
func (f Features) Observation() tracking.Observation {
	return tracking.Observation{Gaze: f.Gaze, EyeOpenness: f.EAR}
}

// Extract computes gaze and eye openness from a refined face mesh in a w x h frame.
func Extract(lm detection.FaceLandmarks, w, h int) (Features, error) {
	if !lm.Refined() {
		return Features{}, fmt.Errorf("%w: have %d points, need %d",
			ErrInsufficientLandmarks, lm.Len(), detection.NumRefinedLandmarks)
	}

	px := func(i int) Point {
		x, y := lm.Pixel(i, w, h)
		return Point{X: x, Y: y}
	}

	leftCenter, leftWidth := eyeFrame(px(detection.LeftEyeCorners[0]), px(detection.LeftEyeCorners[1]))
	rightCenter, rightWidth := eyeFrame(px(detection.RightEyeCorners[0]), px(detection.RightEyeCorners[1]))

	leftIris := irisCenter(px, detection.LeftIris)
	rightIris := irisCenter(px, detection.RightIris)

	lx, ly := irisOffset(leftIris, leftCenter, leftWidth)
	rx, ry := irisOffset(rightIris, rightCenter, rightWidth)

	gaze := tracking.GazeVector{
		X: lx*EyeDominance + rx*(1-EyeDominance),
		Y: ly*EyeDominance + ry*(1-EyeDominance),
	}

	nose, forehead := px(detection.NoseTip), px(detection.Forehead)
	tilt := Point{
		X: (nose.X - forehead.X) / float64(w),
		Y: (nose.Y - forehead.Y) / float64(h),
	}
	gaze.X -= tilt.X * HeadTiltGainX
	gaze.Y -= tilt.Y * HeadTiltGainY

	ear := (eyeAspectRatio(px, detection.LeftEyeEAR) + eyeAspectRatio(px, detection.RightEyeEAR)) / 2

	if !finite(gaze.X, gaze.Y, ear) {
		return Features{}, ErrDegenerateEye
	}

	return Features{
		Gaze: gaze,
		EAR:  ear,
		Eyes: EyeGeometry{
			LeftIris:    leftIris,
			RightIris:   rightIris,
			LeftCenter:  leftCenter,
			RightCenter: rightCenter,
			HeadTilt:    tilt,
		},
	}, nil
}

// eyeFrame returns the midpoint of the two corners and their distance, floored at MinEyeWidth.
func eyeFrame(a, b Point) (Point, float64) {
	center := Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	width := math.Max(MinEyeWidth, math.Hypot(b.X-a.X, b.Y-a.Y))
	return center, width
}

func irisCenter(px func(int) Point, idx [4]int) Point {
	var c Point
	var total float64
	for i, j := range idx {
		p := px(j)
		c.X += p.X * irisWeights[i]
		c.Y += p.Y * irisWeights[i]
		total += irisWeights[i]
	}
	return Point{X: c.X / total, Y: c.Y / total}
}

// irisOffset is the iris displacement from the eye center in eye widths.
// Both axes are divided by the width.
func irisOffset(iris, center Point, width float64) (x, y float64) {
	x = clamp((iris.X-center.X)/width, -MaxIrisX, MaxIrisX)
	y = clamp((iris.Y-center.Y)/width, -MaxIrisY, MaxIrisY)
	return x, y
}

// eyeAspectRatio is (|p3-p4| + |p5-p6|) / (2|p1-p2|) over the six EAR points.
func eyeAspectRatio(px func(int) Point, idx [6]int) float64 {
	dist := func(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

	horizontal := dist(px(idx[0]), px(idx[1]))
	v1 := dist(px(idx[2]), px(idx[3]))
	v2 := dist(px(idx[4]), px(idx[5]))
	return (v1 + v2) / (2 * horizontal)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
