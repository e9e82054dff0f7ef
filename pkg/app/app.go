// Package app runs the frame loop: camera frames go through landmark detection and
// feature extraction into the tracker, and the tracker's output drives the cursor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/cursor"
	"github.com/teslashibe/go-gaze/pkg/features"
	"github.com/teslashibe/go-gaze/pkg/metrics"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
)

// ErrStopped is returned by Do once Run has returned.
var ErrStopped = errors.New("app: frame loop stopped")

const (
	// missLogThreshold is the number of consecutive faceless frames reported as a lost face.
	missLogThreshold = 5

	// readBackoff paces the loop while the camera returns errors.
	readBackoff = 20 * time.Millisecond
)

// Publisher receives status snapshots and dashboard log lines.
type Publisher interface {
	PublishStatus(st tracking.State)
	AddLog(level, message string)
}

// Publishers fans out to several sinks in order.
type Publishers []Publisher

// PublishStatus implements Publisher.
func (ps Publishers) PublishStatus(st tracking.State) {
	for _, p := range ps {
		p.PublishStatus(st)
	}
}

// AddLog implements Publisher.
func (ps Publishers) AddLog(level, message string) {
	for _, p := range ps {
		p.AddLog(level, message)
	}
}

// Deps are the collaborators of the frame loop.
type Deps struct {
	Frames    camera.Source
	Detector  detection.Detector
	Cursor    cursor.Actuator  // nil disables moves and clicks
	Publisher Publisher        // optional
	Metrics   *metrics.Metrics // optional

	// TrackerOptions are passed to tracking.NewTracker.
	TrackerOptions []tracking.Option
}

type command struct {
	fn   func(*tracking.Tracker) error
	done chan error
}

// App owns the tracker. Only the Run goroutine touches it; everything else goes
// through Do.
type App struct {
	config  Config
	tracker *tracking.Tracker
	deps    Deps
	logger  *slog.Logger

	commands chan command
	stopped  chan struct{}
	stopOnce sync.Once

	status   tracking.State
	statusMu sync.RWMutex

	misses      int
	lastMode    tracking.Mode
	lastPublish time.Time
}

// New validates the configuration and builds the tracker. When a cursor is given
// the tracking screen is sized to it.
func New(cfg Config, deps Deps) (*App, error) {
	if deps.Frames == nil || deps.Detector == nil {
		return nil, errors.New("app: frames and detector are required")
	}
	if deps.Cursor != nil {
		w, h := deps.Cursor.ScreenSize()
		if w > 0 && h > 0 {
			cfg.Tracking = cfg.Tracking.WithScreen(w, h)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.With("component", "app")
	opts := append([]tracking.Option{tracking.WithLogger(log.With("component", "tracking"))}, deps.TrackerOptions...)

	tr, err := tracking.NewTracker(cfg.Tracking, opts...)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   cfg,
		tracker:  tr,
		deps:     deps,
		logger:   logger,
		commands: make(chan command, 16),
		stopped:  make(chan struct{}),
		lastMode: tr.Mode(),
	}
	a.status = tr.State()
	return a, nil
}

// SetPublisher sets the status and log sink. Call before Run.
func (a *App) SetPublisher(p Publisher) {
	a.deps.Publisher = p
}

// Config returns the effective configuration.
func (a *App) Config() Config {
	return a.config
}

// Run processes frames until ctx is cancelled. It returns nil on cancellation and
// an error only when the frame source is closed underneath it.
func (a *App) Run(ctx context.Context) error {
	defer a.stopOnce.Do(func() { close(a.stopped) })

	if a.config.CalibrateOnStart {
		a.tracker.RequestCalibration()
		a.logEvent("calibration", "Calibration started: "+a.tracker.Session())
	}
	a.publish(true)

	a.logger.Info("frame loop started",
		"screen", fmt.Sprintf("%.0fx%.0f", a.config.Tracking.ScreenWidth, a.config.Tracking.ScreenHeight),
		"move_cursor", a.config.MoveCursor && a.deps.Cursor != nil,
		"click_on_blink", a.config.ClickOnBlink && a.deps.Cursor != nil)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("frame loop stopped")
			return nil
		default:
		}

		a.drain()

		frame, err := a.deps.Frames.Read()
		if err != nil {
			if errors.Is(err, camera.ErrClosed) {
				return err
			}
			a.logger.Debug("frame read failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(readBackoff):
			}
			continue
		}

		a.step(frame)
	}
}

// Do runs fn on the frame loop between two frames and returns its error. If ctx
// ends first Do returns ctx.Err(), although a queued fn may still run later.
func (a *App) Do(ctx context.Context, fn func(*tracking.Tracker) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case a.commands <- cmd:
	case <-a.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-a.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) drain() {
	for {
		select {
		case cmd := <-a.commands:
			err := cmd.fn(a.tracker)
			a.publish(false)
			cmd.done <- err
		default:
			return
		}
	}
}

// step advances the tracker by one frame and applies its side effects.
func (a *App) step(frame camera.Frame) {
	start := time.Now()
	obs := a.observe(frame)
	res := a.tracker.OnFrame(obs)

	outcome := "face"
	if obs == nil {
		outcome = "miss"
	}
	a.deps.Metrics.Frame(outcome, time.Since(start))

	a.apply(res)
	a.publish(false)
}

// observe turns a frame into an observation, or nil when no usable face was found.
func (a *App) observe(frame camera.Frame) *tracking.Observation {
	faces, err := a.deps.Detector.Detect(frame.JPEG)
	if err != nil {
		a.miss("detector error", err)
		return nil
	}

	face, ok := detection.PrimaryFace(faces)
	if !ok {
		a.miss("no face", nil)
		return nil
	}

	f, err := features.Extract(face, frame.Width, frame.Height)
	if err != nil {
		a.miss("feature extraction failed", err)
		return nil
	}

	if a.misses >= missLogThreshold {
		a.logger.Info("face reacquired", "missed_frames", a.misses)
	}
	a.misses = 0

	obs := f.Observation()
	obs.Time = frame.Time
	return &obs
}

func (a *App) miss(reason string, err error) {
	a.misses++
	if a.misses == missLogThreshold {
		a.logger.Info("lost face", "consecutive_misses", a.misses, "reason", reason)
	} else if err != nil {
		a.logger.Debug(reason, "error", err, "consecutive_misses", a.misses)
	}
}

func (a *App) apply(res tracking.FrameResult) {
	if res.Err != nil && !errors.Is(res.Err, tracking.ErrNoFace) {
		if tracking.IsCalibrationError(res.Err) {
			a.deps.Metrics.CalibrationFailed()
			a.logEvent("error", "Calibration failed: "+res.Err.Error())
		} else {
			a.logger.Debug("frame not mapped", "error", res.Err)
		}
	}

	if a.deps.Cursor == nil {
		return
	}

	if res.HasCursor && a.config.MoveCursor {
		if err := a.deps.Cursor.Move(res.Cursor.X, res.Cursor.Y); err != nil {
			a.logger.Debug("cursor move failed", "error", err)
		}
	}

	if res.Blinked && a.config.ClickOnBlink {
		if err := a.deps.Cursor.Click(); err != nil {
			a.logger.Warn("click failed", "error", err)
			return
		}
		a.deps.Metrics.Click()
		a.logEvent("blink", fmt.Sprintf("Click at (%.0f, %.0f)", res.Cursor.X, res.Cursor.Y))
	}
}

// publish refreshes the status snapshot and pushes it when the mode changed or
// StatusInterval has passed.
func (a *App) publish(force bool) {
	st := a.tracker.State()

	a.statusMu.Lock()
	a.status = st
	a.statusMu.Unlock()

	modeChanged := st.Mode != a.lastMode
	a.lastMode = st.Mode
	complete := modeChanged && st.Mode == tracking.ModeTracking
	a.deps.Metrics.State(st, complete)
	if complete {
		a.logEvent("calibration", fmt.Sprintf("Calibration complete: %s mapping, blink threshold %.3f",
			st.Mapping, st.BlinkThreshold))
	}

	if a.deps.Publisher == nil {
		return
	}
	now := time.Now()
	if !force && !modeChanged && now.Sub(a.lastPublish) < a.config.StatusInterval {
		return
	}
	a.lastPublish = now
	a.deps.Publisher.PublishStatus(st)
}

func (a *App) logEvent(level, message string) {
	switch level {
	case "error":
		a.logger.Warn(message)
	default:
		a.logger.Info(message)
	}
	if a.deps.Publisher != nil {
		a.deps.Publisher.AddLog(level, message)
	}
}

// Close releases the frame source and the detector.
func (a *App) Close() error {
	return errors.Join(a.deps.Frames.Close(), a.deps.Detector.Close())
}
