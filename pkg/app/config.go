package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/events"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
)

// Config wires the tracker, its collaborators and the control surface.
type Config struct {
	Tracking tracking.Config
	Camera   camera.Config
	Mesh     detection.MeshConfig

	// FaceGate runs YuNet before the mesh service when UseFaceGate is set.
	FaceGate    detection.GateConfig
	UseFaceGate bool

	// Events mirrors status and dashboard events to MQTT when Broker is set.
	Events events.Config

	WebPort    string
	TuningFile string // optional JSON overrides for Tracking

	MoveCursor       bool
	ClickOnBlink     bool
	CalibrateOnStart bool
	Debug            bool

	// StatusInterval throttles status pushes while the mode is unchanged.
	StatusInterval time.Duration
}

// DefaultConfig returns a configuration that drives the real cursor.
func DefaultConfig() Config {
	return Config{
		Tracking: tracking.DefaultConfig(),
		Camera:   camera.DefaultConfig(),
		Mesh:     detection.DefaultMeshConfig(),
		FaceGate: detection.DefaultGateConfig(),

		WebPort: config.DefaultWebPort,

		MoveCursor:       true,
		ClickOnBlink:     true,
		CalibrateOnStart: true,

		StatusInterval: 100 * time.Millisecond,
	}
}

// LoadEnvConfig applies GAZE_* environment variables and the tuning file on top
// of DefaultConfig.
func LoadEnvConfig() (Config, error) {
	cfg := DefaultConfig()

	device, err := config.Camera(cfg.Camera.Device)
	if err != nil {
		return cfg, err
	}
	cfg.Camera.Device = device
	cfg.Mesh.URL = config.MeshURL()
	cfg.WebPort = config.WebPort()
	cfg.TuningFile = config.TuningFile()
	cfg.Events.Broker = config.MQTTBroker()
	cfg.Events.Topic = config.MQTTTopic()

	cfg.MoveCursor = config.Bool("GAZE_MOVE_CURSOR", cfg.MoveCursor)
	cfg.ClickOnBlink = config.Bool("GAZE_CLICK_ON_BLINK", cfg.ClickOnBlink)
	cfg.CalibrateOnStart = config.Bool("GAZE_CALIBRATE_ON_START", cfg.CalibrateOnStart)
	cfg.UseFaceGate = config.Bool("GAZE_FACE_GATE", cfg.UseFaceGate)
	cfg.Debug = config.LogLevel() == "debug"

	if cfg.TuningFile != "" {
		cfg.Tracking, err = tracking.LoadTuningFile(cfg.TuningFile, cfg.Tracking)
		if err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error

	if err := c.Tracking.Validate(); err != nil {
		errs = append(errs, err)
	}
	if problems := c.Camera.Validate(); len(problems) > 0 {
		errs = append(errs, fmt.Errorf("camera: %v", problems))
	}
	if c.Mesh.URL == "" {
		errs = append(errs, errors.New("mesh: url is required"))
	}
	if c.Mesh.RequestTimeout <= 0 {
		errs = append(errs, errors.New("mesh: request timeout must be positive"))
	}
	if c.WebPort == "" {
		errs = append(errs, errors.New("web port is required"))
	}
	if c.StatusInterval < 0 {
		errs = append(errs, errors.New("status interval must not be negative"))
	}

	return errors.Join(errs...)
}
