package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/internal/log"
)

// GateConfig holds the face gate configuration
type GateConfig struct {
	ModelPath        string  // Path to the YuNet ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.6)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultGateConfig returns production defaults for YuNet
func DefaultGateConfig() GateConfig {
	return GateConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// FaceGate runs OpenCV's FaceDetectorYN before a landmark detector and only
// forwards frames that contain a face. Mesh round trips are skipped for empty frames.
type FaceGate struct {
	detector gocv.FaceDetectorYN
	next     Detector
	config   GateConfig
	mu       sync.Mutex // Protects inference
}

// NewFaceGate wraps next with a YuNet face check.
func NewFaceGate(cfg GateConfig, next Detector) (*FaceGate, error) {
	// Check if model file exists first
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	// Input size is updated per image
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &FaceGate{
		detector: detector,
		next:     next,
		config:   cfg,
	}, nil
}

// Faces returns the face boxes YuNet finds in the JPEG image
func (g *FaceGate) Faces(jpeg []byte) ([]Detection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	g.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	g.detector.Detect(img, &faces)

	// Rows are x, y, w, h, 5 landmark pairs, score
	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		detections = append(detections, Detection{
			X:          float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:          float64(faces.GetFloatAt(r, 1)) / imgH,
			W:          float64(faces.GetFloatAt(r, 2)) / imgW,
			H:          float64(faces.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return detections, nil
}

// Detect forwards the frame to the wrapped detector when a face is present.
func (g *FaceGate) Detect(jpeg []byte) ([]FaceLandmarks, error) {
	boxes, err := g.Faces(jpeg)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, nil
	}
	if len(boxes) > 1 {
		log.Debug("face gate found several faces", "faces", len(boxes), "best", SelectBest(boxes))
	}
	return g.next.Detect(jpeg)
}

// Close releases the detector and the wrapped detector
func (g *FaceGate) Close() error {
	g.mu.Lock()
	g.detector.Close()
	g.mu.Unlock()
	return g.next.Close()
}
