package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/report"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// errorStatus maps tracking errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, tracking.ErrUnmapped),
		errors.Is(err, report.ErrNoSamples):
		return fiber.StatusNotFound
	case errors.Is(err, tracking.ErrNotCalibrating),
		errors.Is(err, tracking.ErrInsufficientFixation):
		return fiber.StatusConflict
	case tracking.IsCalibrationError(err):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// handleStatus returns the latest tracker snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleCalibrationStart discards the current mapping and starts a new session
func (s *Server) handleCalibrationStart(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	session, err := s.ctrl.StartCalibration(ctx)
	if err != nil {
		return fail(c, err)
	}

	s.AddLog("calibration", "Calibration started: "+session)
	return c.JSON(fiber.Map{
		"session": session,
		"status":  s.ctrl.Status(),
	})
}

// handleCalibrationAccept force-accepts the current target
func (s *Server) handleCalibrationAccept(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.ctrl.AcceptTarget(ctx); err != nil {
		if tracking.IsCalibrationError(err) {
			s.AddLog("error", "Calibration failed: "+err.Error())
		}
		return fail(c, err)
	}
	return c.JSON(s.ctrl.Status())
}

// handleCalibrationSkip skips the current target
func (s *Server) handleCalibrationSkip(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.ctrl.SkipTarget(ctx); err != nil {
		if tracking.IsCalibrationError(err) {
			s.AddLog("error", "Calibration failed: "+err.Error())
		}
		return fail(c, err)
	}
	return c.JSON(s.ctrl.Status())
}

// handleCalibrationReport returns per-target residuals of the active mapping
func (s *Server) handleCalibrationReport(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	rep, err := s.ctrl.CalibrationReport(ctx)
	if err != nil {
		return fail(c, err)
	}
	sum, err := report.Summarize(rep)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sum)
}

// handleCalibrationPlot renders the residual plot as PNG
func (s *Server) handleCalibrationPlot(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	rep, err := s.ctrl.CalibrationReport(ctx)
	if err != nil {
		return fail(c, err)
	}
	img, err := report.PNG(rep, report.DefaultWidth, report.DefaultHeight)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(img)
}

// handleGetTuning returns the live tuning parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.ctrl.Tuning(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

// handleSetTuning applies the non-zero fields of the body
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var req tracking.TuningParams
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tuning body: " + err.Error(),
		})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	p, err := s.ctrl.SetTuning(ctx, req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

// handleSmoothing steps the base alpha: "more" smooths, "less" responds faster
func (s *Server) handleSmoothing(c *fiber.Ctx) error {
	var delta float64
	switch c.Params("dir") {
	case "more":
		delta = -tracking.AlphaStep
	case "less":
		delta = tracking.AlphaStep
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "direction must be more or less",
		})
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	alpha, err := s.ctrl.AdjustSmoothing(ctx, delta)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"alpha": alpha})
}

// handleGetCamera returns the camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.cameras.GetConfigJSON())
}

// handleSetCamera applies a partial camera update, optionally starting from a preset
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.cameras == nil {
		return fiber.ErrNotFound
	}

	var params map[string]interface{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid camera body: " + err.Error(),
		})
	}

	if err := s.cameras.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.cameras.GetConfigJSON())
}

// handleCameraPresets lists the camera presets
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"presets": camera.PresetNames(),
	})
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

// handleStatusWS streams status snapshots, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var greeting []hub.Message
	if data, err := json.Marshal(s.ctrl.Status()); err == nil {
		greeting = append(greeting, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.statusHub, c, greeting...).Run()
}

// handleLogsWS streams log lines, starting with the buffered ones
func (s *Server) handleLogsWS(c *websocket.Conn) {
	var greeting []hub.Message
	for _, entry := range s.Logs() {
		if data, err := json.Marshal(entry); err == nil {
			greeting = append(greeting, hub.NewJSONMessage(data))
		}
	}
	hub.NewClient(s.logHub, c, greeting...).Run()
}
