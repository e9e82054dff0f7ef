// Package web provides the control API and live dashboard feeds for the gaze tracker.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/report"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

const (
	maxLogs        = 500
	requestTimeout = 2 * time.Second
)

// Controller is the tracking side the API drives. Calls other than Status are
// serialized onto the frame loop and may block until the next frame boundary.
type Controller interface {
	Status() tracking.State
	StartCalibration(ctx context.Context) (string, error)
	AcceptTarget(ctx context.Context) error
	SkipTarget(ctx context.Context) error
	Tuning(ctx context.Context) (tracking.TuningParams, error)
	SetTuning(ctx context.Context, p tracking.TuningParams) (tracking.TuningParams, error)
	AdjustSmoothing(ctx context.Context, delta float64) (float64, error)
	CalibrationReport(ctx context.Context) (report.Calibration, error)
}

// LogEntry is one dashboard log line
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"` // info, warn, error, blink, calibration
	Message string `json:"message"`
}

// Server is the control API and dashboard server
type Server struct {
	app  *fiber.App
	port string

	ctrl    Controller
	cameras *camera.Manager // optional

	logs   []LogEntry
	logsMu sync.RWMutex

	statusHub *hub.Hub
	logHub    *hub.Hub
}

// NewServer creates the server. cameras may be nil when the frame source is not a live camera.
func NewServer(port string, ctrl Controller, cameras *camera.Manager) *Server {
	s := &Server{
		port:      port,
		ctrl:      ctrl,
		cameras:   cameras,
		logs:      make([]LogEntry, 0, maxLogs),
		statusHub: hub.New("status"),
		logHub:    hub.New("logs"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-gaze",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/calibration/start", s.handleCalibrationStart)
	api.Post("/calibration/accept", s.handleCalibrationAccept)
	api.Post("/calibration/skip", s.handleCalibrationSkip)
	api.Get("/calibration/report", s.handleCalibrationReport)
	api.Get("/calibration/plot.png", s.handleCalibrationPlot)
	api.Get("/tuning", s.handleGetTuning)
	api.Put("/tuning", s.handleSetTuning)
	api.Post("/tuning/smoothing/:dir", s.handleSmoothing)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleSetCamera)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	s.app = app
	return s
}

// MountMetrics serves h at /metrics. Call before Start.
func (s *Server) MountMetrics(h http.Handler) {
	s.app.Get("/metrics", adaptor.HTTPHandler(h))
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and listens on the configured port until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)

	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	log.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// PublishStatus pushes a status snapshot to /ws/status clients.
func (s *Server) PublishStatus(st tracking.State) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(st); err != nil {
		log.Debug("status encode failed", "error", err)
	}
}

// AddLog records a dashboard log line and pushes it to /ws/logs clients.
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// Logs returns a copy of the buffered log lines.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}
