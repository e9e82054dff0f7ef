package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
)

const frameW, frameH = 1280, 720

// syntheticFace builds a refined mesh with level eyes 76.8 px wide, irises shifted
// by (dx, dy) eye widths and the nose directly below the forehead.
func syntheticFace(dx, dy float64) detection.FaceLandmarks {
	pts := make([]detection.Landmark, detection.NumRefinedLandmarks)
	for i := range pts {
		pts[i] = detection.Landmark{X: 0.5, Y: 0.5}
	}
	set := func(i int, x, y float64) { pts[i] = detection.Landmark{X: x, Y: y} }

	// Left eye spans x 0.40-0.46, right eye 0.54-0.60, both at y 0.45.
	set(33, 0.40, 0.45)
	set(133, 0.46, 0.45)
	set(362, 0.54, 0.45)
	set(263, 0.60, 0.45)

	// Eyelids 14.4 px apart.
	for _, pair := range [][2]int{{159, 145}, {158, 144}} {
		set(pair[0], 0.43, 0.44)
		set(pair[1], 0.43, 0.46)
	}
	for _, pair := range [][2]int{{386, 374}, {387, 373}} {
		set(pair[0], 0.57, 0.44)
		set(pair[1], 0.57, 0.46)
	}

	width := 0.06 // normalized x
	offX := dx * width
	offY := dy * width * frameW / frameH
	for _, i := range detection.LeftIris {
		set(i, 0.43+offX, 0.45+offY)
	}
	for _, i := range detection.RightIris {
		set(i, 0.57+offX, 0.45+offY)
	}

	set(detection.Forehead, 0.5, 0.3)
	set(detection.NoseTip, 0.5, 0.3)

	return detection.FaceLandmarks{Points: pts, Confidence: 0.95}
}

func TestExtract_CenteredGaze(t *testing.T) {
	t.Parallel()

	f, err := Extract(syntheticFace(0, 0), frameW, frameH)
	require.NoError(t, err)
	assert.InDelta(t, 0, f.Gaze.X, 1e-9)
	assert.InDelta(t, 0, f.Gaze.Y, 1e-9)
	assert.InDelta(t, 28.8/(2*76.8), f.EAR, 1e-9)
	assert.InDelta(t, 0.43*frameW, f.Eyes.LeftCenter.X, 1e-9)
	assert.InDelta(t, 0.57*frameW, f.Eyes.RightCenter.X, 1e-9)
}

func TestExtract_IrisOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		dx, dy float64
		wantX  float64
		wantY  float64
	}{
		{"right", 0.1, 0, 0.1, 0},
		{"up", 0, -0.2, 0, -0.2},
		{"clamped x", 0.9, 0, MaxIrisX, 0},
		{"clamped y", 0, 0.7, 0, MaxIrisY},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Extract(syntheticFace(tt.dx, tt.dy), frameW, frameH)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantX, f.Gaze.X, 1e-9)
			assert.InDelta(t, tt.wantY, f.Gaze.Y, 1e-9)
		})
	}
}

func TestExtract_HeadTiltCompensation(t *testing.T) {
	t.Parallel()

	face := syntheticFace(0, 0)
	face.Points[detection.NoseTip] = detection.Landmark{X: 0.52, Y: 0.6}

	f, err := Extract(face, frameW, frameH)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, f.Eyes.HeadTilt.X, 1e-9)
	assert.InDelta(t, 0.3, f.Eyes.HeadTilt.Y, 1e-9)
	assert.InDelta(t, -0.02*HeadTiltGainX, f.Gaze.X, 1e-9)
	assert.InDelta(t, -0.3*HeadTiltGainY, f.Gaze.Y, 1e-9)
}

func TestExtract_EyeDominance(t *testing.T) {
	t.Parallel()

	face := syntheticFace(0, 0)
	// Move only the left iris by 0.1 eye widths.
	for _, i := range detection.LeftIris {
		face.Points[i].X += 0.1 * 0.06
	}

	f, err := Extract(face, frameW, frameH)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*EyeDominance, f.Gaze.X, 1e-9)
}

func TestExtract_NarrowEyeFloor(t *testing.T) {
	t.Parallel()

	// At 320 px wide the eyes are 19.2 px, below the 25 px floor.
	f, err := Extract(syntheticFace(0.1, 0), 320, 180)
	require.NoError(t, err)
	assert.InDelta(t, 0.1*19.2/MinEyeWidth, f.Gaze.X, 1e-9)
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	face := syntheticFace(0, 0)
	face.Points = face.Points[:detection.NumFaceLandmarks]
	_, err := Extract(face, frameW, frameH)
	assert.ErrorIs(t, err, ErrInsufficientLandmarks)

	closed := syntheticFace(0, 0)
	closed.Points[263] = closed.Points[362]
	_, err = Extract(closed, frameW, frameH)
	assert.ErrorIs(t, err, ErrDegenerateEye)

	nan := syntheticFace(0, 0)
	nan.Points[detection.LeftIris[0]].X = math.NaN()
	_, err = Extract(nan, frameW, frameH)
	assert.ErrorIs(t, err, ErrDegenerateEye)
}

func TestFeatures_Observation(t *testing.T) {
	t.Parallel()

	f, err := Extract(syntheticFace(0.1, 0), frameW, frameH)
	require.NoError(t, err)
	obs := f.Observation()
	assert.Equal(t, f.Gaze, obs.Gaze)
	assert.Equal(t, f.EAR, obs.EyeOpenness)
}
