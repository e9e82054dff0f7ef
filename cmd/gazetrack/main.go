// gazetrack - Eye-gaze cursor control with a webcam
// Calibrates a gaze-to-screen mapping on a 3x3 grid, then moves the cursor and clicks on blinks
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/app"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/cursor"
	"github.com/teslashibe/go-gaze/pkg/events"
	"github.com/teslashibe/go-gaze/pkg/metrics"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
	"github.com/teslashibe/go-gaze/pkg/web"
)

func main() {
	cfg := parseFlags()

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	fmt.Println("👁️  go-gaze: eye-gaze cursor control")
	fmt.Printf("    Camera: %dx%d@%d (device %s), mirror=%v\n",
		cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate, deviceName(cfg.Camera.Device), cfg.Camera.Mirror)
	fmt.Printf("    Face mesh: %s (face gate: %v)\n", cfg.Mesh.URL, cfg.UseFaceGate)
	fmt.Printf("    Smoothing: alpha=%.2f, deadzone=%.1fpx, outlier=%.0fpx\n",
		cfg.Tracking.Alpha, cfg.Tracking.DeadZone, cfg.Tracking.OutlierThreshold)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fatal("❌ Runtime error: %v", err)
	}
	fmt.Println("👋 Bye")
}

func run(ctx context.Context, cfg app.Config) error {
	cam, err := camera.Open(cfg.Camera)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	cameras := camera.NewManager(cfg.Camera)
	cameras.OnConfigChange = cam.Apply

	mesh, err := detection.DialMesh(ctx, cfg.Mesh)
	if err != nil {
		cam.Close()
		return err
	}

	var det detection.Detector = mesh
	if cfg.UseFaceGate {
		gate, err := detection.NewFaceGate(cfg.FaceGate, mesh)
		if err != nil {
			log.Warn("face gate disabled", "error", err)
		} else {
			det = gate
		}
	}

	met := metrics.New()
	deps := app.Deps{Frames: cam, Detector: det, Metrics: met}
	if cfg.MoveCursor || cfg.ClickOnBlink {
		deps.Cursor = cursor.NewSystem()
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		det.Close()
		cam.Close()
		return err
	}
	defer a.Close()

	server := web.NewServer(cfg.WebPort, a, cameras)
	server.MountMetrics(met.Handler())
	publishers := app.Publishers{server}
	if cfg.Events.Broker != "" {
		mq, err := events.Dial(cfg.Events)
		if err != nil {
			log.Warn("mqtt events disabled", "broker", cfg.Events.Broker, "error", err)
		} else {
			defer mq.Close()
			publishers = append(publishers, mq)
			fmt.Printf("📡 MQTT events: %s/status, %s/events\n", mq.Topic(), mq.Topic())
		}
	}
	a.SetPublisher(publishers)
	go func() {
		if err := server.Start(ctx); err != nil {
			log.Warn("web server stopped", "error", err)
		}
	}()
	fmt.Printf("🌐 Control API: http://localhost:%s/api/status\n", cfg.WebPort)
	fmt.Printf("📊 Metrics: http://localhost:%s/metrics\n", cfg.WebPort)

	if !cfg.CalibrateOnStart {
		fmt.Println("⏸️  Waiting for POST /api/calibration/start")
	}
	return a.Run(ctx)
}

// parseFlags loads .env and GAZE_* environment settings and applies command line overrides.
func parseFlags() app.Config {
	if err := config.LoadDotEnv(); err != nil {
		fatal("❌ .env: %v", err)
	}
	cfg, err := app.LoadEnvConfig()
	if err != nil {
		fatal("❌ Configuration error: %v", err)
	}

	debug := flag.Bool("debug", cfg.Debug, "Enable verbose debug logging")
	device := flag.Int("camera", cfg.Camera.Device, "Camera index, -1 probes 0-3 (overrides GAZE_CAMERA)")
	cameraPreset := flag.String("camera-preset", "", "Camera preset: default, legacy, 1080p, lowlight, external")
	meshURL := flag.String("mesh", cfg.Mesh.URL, "Face mesh service URL (overrides GAZE_MESH_URL)")
	port := flag.String("port", cfg.WebPort, "Control API port (overrides GAZE_WEB_PORT)")
	tuningFile := flag.String("tuning", cfg.TuningFile, "JSON tuning file (overrides GAZE_TUNING_FILE)")
	preset := flag.String("preset", "", "Tracking preset: stable, responsive")
	faceGate := flag.Bool("face-gate", cfg.UseFaceGate, "Run YuNet before the mesh service")
	model := flag.String("face-model", cfg.FaceGate.ModelPath, "YuNet ONNX model path")
	noCursor := flag.Bool("no-cursor", !cfg.MoveCursor, "Do not move the system cursor")
	noClick := flag.Bool("no-click", !cfg.ClickOnBlink, "Do not click on blinks")
	broker := flag.String("mqtt", cfg.Events.Broker, "MQTT broker for status events, e.g. tcp://localhost:1883 (overrides GAZE_MQTT_BROKER)")
	noCalibrate := flag.Bool("no-calibrate", !cfg.CalibrateOnStart, "Wait for a calibration request instead of starting one")
	flag.Parse()

	deviceSet := false
	flag.Visit(func(f *flag.Flag) { deviceSet = deviceSet || f.Name == "camera" })

	cfg.Debug = *debug
	cfg.Mesh.URL = *meshURL
	cfg.WebPort = *port
	cfg.UseFaceGate = *faceGate
	cfg.FaceGate.ModelPath = *model
	cfg.MoveCursor = !*noCursor
	cfg.ClickOnBlink = !*noClick
	cfg.CalibrateOnStart = !*noCalibrate
	cfg.Events.Broker = *broker

	if *cameraPreset != "" {
		p := camera.GetPreset(*cameraPreset)
		if p == nil {
			fatal("❌ Unknown camera preset %q (have %v)", *cameraPreset, camera.PresetNames())
		}
		envDevice := cfg.Camera.Device
		cfg.Camera = *p
		if envDevice != camera.AutoDevice && p.Device == camera.AutoDevice {
			cfg.Camera.Device = envDevice
		}
	}
	if deviceSet {
		cfg.Camera.Device = *device
	}

	switch *preset {
	case "":
	case "stable":
		cfg.Tracking = tracking.StableConfig()
	case "responsive":
		cfg.Tracking = tracking.ResponsiveConfig()
	default:
		fatal("❌ Unknown tracking preset %q", *preset)
	}

	if *preset != "" || *tuningFile != cfg.TuningFile {
		cfg.TuningFile = *tuningFile
		if cfg.TuningFile != "" {
			cfg.Tracking, err = tracking.LoadTuningFile(cfg.TuningFile, cfg.Tracking)
			if err != nil {
				fatal("❌ Tuning file: %v", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		fatal("❌ Configuration error: %v", err)
	}
	return cfg
}

func deviceName(d int) string {
	if d == camera.AutoDevice {
		return "auto"
	}
	return fmt.Sprint(d)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
