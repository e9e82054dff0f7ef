package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gaze/internal/log"
)

var (
	// ErrNoCamera is returned when none of the probed devices opens.
	ErrNoCamera = errors.New("camera: no capture device available")

	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("camera: frame read failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("camera: capture closed")
)

// Frame is one encoded camera frame.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
	Time   time.Time
}

// Source produces frames for the tracking loop.
type Source interface {
	Read() (Frame, error)
	Close() error
}

// Capture reads frames from a local webcam through OpenCV.
type Capture struct {
	mu     sync.Mutex
	config Config
	device int
	vc     *gocv.VideoCapture
	img    gocv.Mat
	closed bool
}

// Open probes the configured devices and starts capturing from the first that opens.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}

	vc, device, err := openDevice(cfg)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		config: cfg,
		device: device,
		vc:     vc,
		img:    gocv.NewMat(),
	}
	c.applyProps()

	log.Info("camera opened",
		"device", device,
		"width", int(vc.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(vc.Get(gocv.VideoCaptureFrameHeight)),
		"fps", vc.Get(gocv.VideoCaptureFPS))
	return c, nil
}

func openDevice(cfg Config) (*gocv.VideoCapture, int, error) {
	for _, d := range cfg.Devices() {
		vc, err := gocv.OpenVideoCapture(d)
		if err != nil {
			log.Debug("camera probe failed", "device", d, "error", err)
			continue
		}
		if !vc.IsOpened() {
			vc.Close()
			continue
		}
		return vc, d, nil
	}
	return nil, 0, ErrNoCamera
}

// applyProps pushes resolution and exposure settings to the driver.
// Drivers ignore what they do not support.
func (c *Capture) applyProps() {
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	c.vc.Set(gocv.VideoCaptureFPS, float64(c.config.Framerate))
	if c.config.BufferSize > 0 {
		c.vc.Set(gocv.VideoCaptureBufferSize, float64(c.config.BufferSize))
	}
	if c.config.AutoExposure > 0 {
		c.vc.Set(gocv.VideoCaptureAutoExposure, c.config.AutoExposure)
	}
	if c.config.Brightness > 0 {
		c.vc.Set(gocv.VideoCaptureBrightness, c.config.Brightness)
	}
}

// Device returns the index of the open device.
func (c *Capture) Device() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

// Apply updates a running capture. A different device index reopens it.
// Suitable as Manager.OnConfigChange.
func (c *Capture) Apply(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if cfg.Device != AutoDevice && cfg.Device != c.device {
		vc, device, err := openDevice(cfg)
		if err != nil {
			return err
		}
		c.vc.Close()
		c.vc = vc
		c.device = device
		log.Info("camera switched", "device", device)
	}

	c.config = cfg
	c.applyProps()
	return nil
}

// Read grabs one frame, mirrors it if configured and encodes it as JPEG.
func (c *Capture) Read() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Frame{}, ErrClosed
	}

	if ok := c.vc.Read(&c.img); !ok || c.img.Empty() {
		return Frame{}, ErrReadFailed
	}
	now := time.Now()

	if c.config.Mirror {
		gocv.Flip(c.img, &c.img, 1)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.img, []int{int(gocv.IMWriteJpegQuality), c.config.Quality})
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return Frame{
		JPEG:   append([]byte(nil), buf.GetBytes()...),
		Width:  c.img.Cols(),
		Height: c.img.Rows(),
		Time:   now,
	}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.img.Close()
	return c.vc.Close()
}
