// Package detection provides face landmark detection for gaze tracking.
//
// Landmarks follow the MediaPipe face mesh topology: 468 surface points plus
// 10 iris points when iris refinement is enabled.
package detection

import "math"

// Landmark counts for the face mesh model.
const (
	NumFaceLandmarks    = 468
	NumRefinedLandmarks = 478 // with iris refinement
)

// Face mesh indices used by the feature extractor.
var (
	LeftIris  = [4]int{468, 469, 470, 471}
	RightIris = [4]int{473, 474, 475, 476}

	// Eye corner pairs; order does not matter for center and width.
	LeftEyeCorners  = [2]int{33, 133}
	RightEyeCorners = [2]int{362, 263}

	// Eye aspect ratio points p1..p6: horizontal pair, then two vertical pairs.
	LeftEyeEAR  = [6]int{33, 133, 159, 145, 158, 144}
	RightEyeEAR = [6]int{263, 362, 386, 374, 387, 373}

	NoseTip  = 1
	Forehead = 9
)

// Landmark is one face mesh point. X and Y are normalized to the frame (0-1),
// Z is relative depth.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks is the mesh of one detected face.
type FaceLandmarks struct {
	Points     []Landmark `json:"landmarks"`
	Confidence float64    `json:"score"`
}

// Len returns the number of points.
func (f FaceLandmarks) Len() int {
	return len(f.Points)
}

// Refined reports whether the mesh includes iris points.
func (f FaceLandmarks) Refined() bool {
	return len(f.Points) >= NumRefinedLandmarks
}

// Pixel returns point i in pixel coordinates for a w x h frame.
func (f FaceLandmarks) Pixel(i, w, h int) (x, y float64) {
	p := f.Points[i]
	return p.X * float64(w), p.Y * float64(h)
}

// Bounds returns the normalized bounding box of the mesh.
func (f FaceLandmarks) Bounds() Detection {
	if len(f.Points) == 0 {
		return Detection{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range f.Points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Detection{X: minX, Y: minY, W: maxX - minX, H: maxY - minY, Confidence: f.Confidence}
}

// Detection represents a detected face box
type Detection struct {
	X, Y       float64 // Top-left position (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector is the interface for landmark detection backends
type Detector interface {
	// Detect finds faces in the JPEG frame and returns their meshes
	Detect(jpeg []byte) ([]FaceLandmarks, error)

	// Close releases resources
	Close() error
}

// SelectBest picks the index of the best face from multiple detections.
// Priority: confidence * 0.7 + area * 0.3. Returns -1 for no detections.
func SelectBest(dets []Detection) int {
	if len(dets) == 0 {
		return -1
	}

	if len(dets) == 1 {
		return 0
	}

	// Find max area for normalization
	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	// Score each detection
	bestScore := -1.0
	best := 0
	for i, d := range dets {
		score := d.Confidence * 0.7
		if maxArea > 0 {
			score += (d.Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	return best
}

// PrimaryFace returns the single face that tracking follows.
func PrimaryFace(faces []FaceLandmarks) (FaceLandmarks, bool) {
	boxes := make([]Detection, len(faces))
	for i, f := range faces {
		boxes[i] = f.Bounds()
	}
	i := SelectBest(boxes)
	if i < 0 {
		return FaceLandmarks{}, false
	}
	return faces[i], true
}
