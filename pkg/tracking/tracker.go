package tracking

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/internal/log"
)

// Tracker owns one calibration session and the tracking pipeline built from it.
//
// A Tracker is not safe for concurrent use. Exactly one goroutine calls OnFrame and
// the control methods; other goroutines hand it work through that goroutine.
type Tracker struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	mode    Mode
	session string

	// Calibration
	targets     []Target
	index       int
	targetStart time.Time
	decision    GateDecision
	samples     []CalibrationSample
	openEAR     []float64

	// Tracking
	mapping   *Mapping
	cursor    ScreenPoint
	hasCursor bool

	gate    *StabilityGate
	refiner *LocalRefiner
	filter  *Filter
	blink   *BlinkDetector
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for calibration milestones.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithClock replaces time.Now, used for observations without a timestamp and for
// target settle timing.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker validates cfg and returns a tracker awaiting calibration.
func NewTracker(cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		config:  cfg,
		now:     time.Now,
		mode:    ModeAwaitingCalibration,
		gate:    NewStabilityGate(cfg),
		refiner: NewLocalRefiner(cfg),
		filter:  NewFilter(cfg),
		blink:   NewBlinkDetector(cfg),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.With("component", "tracking")
	}

	if cfg.MinMovement <= cfg.DeadZone {
		t.logger.Warn("min movement is inside the dead zone, the 50/50 blend band is unused",
			"dead_zone", cfg.DeadZone, "min_movement", cfg.MinMovement)
	}
	return t, nil
}

// Config returns the active configuration, including runtime tuning.
func (t *Tracker) Config() Config {
	return t.config
}

// Mode returns the tracker's top-level state.
func (t *Tracker) Mode() Mode {
	return t.mode
}

// Session returns the current calibration session id, empty before the first one.
func (t *Tracker) Session() string {
	return t.session
}

// RequestCalibration starts a new session, discarding samples, mapping, gate,
// filter and blink state.
func (t *Tracker) RequestCalibration() {
	t.reset()
	t.session = uuid.NewString()
	t.mode = ModeCalibrating
	t.targets = Grid(t.config)
	t.targets[0].State = TargetSampling
	t.targetStart = t.now()

	t.logger.Info("calibration started",
		"session", t.session,
		"targets", len(t.targets),
		"screen", []float64{t.config.ScreenWidth, t.config.ScreenHeight})
}

// OnFrame advances the tracker by one frame. A nil observation means no face was
// found; nothing changes and the result carries ErrNoFace.
func (t *Tracker) OnFrame(obs *Observation) FrameResult {
	if obs == nil || !obs.Gaze.finite() {
		res := t.result()
		res.Err = ErrNoFace
		return res
	}

	now := obs.Time
	if now.IsZero() {
		now = t.now()
	}

	switch t.mode {
	case ModeCalibrating:
		return t.calibrate(obs, now)
	case ModeTracking:
		return t.track(obs, now)
	default:
		return t.result()
	}
}

func (t *Tracker) calibrate(obs *Observation, now time.Time) FrameResult {
	if t.config.TargetSettle > 0 && now.Sub(t.targetStart) < t.config.TargetSettle {
		return t.result()
	}

	t.decision = t.gate.Observe(obs.Gaze, obs.EyeOpenness)
	if t.decision != GateStableAccepted {
		return t.result()
	}

	err := t.acceptTarget()
	res := t.result()
	res.Err = err
	return res
}

func (t *Tracker) track(obs *Observation, now time.Time) FrameResult {
	res := t.result()

	p, err := t.mapping.Query(obs.Gaze)
	if err != nil {
		res.Err = err
		return res
	}
	p = t.mapping.bounds.clamp(t.refiner.Refine(p, obs.Gaze, t.samples))

	t.cursor, _ = t.filter.Smooth(p)
	t.hasCursor = true

	res.Cursor = t.cursor
	res.HasCursor = true
	res.Blinked = t.blink.Update(obs.EyeOpenness, now)
	if res.Blinked {
		t.logger.Debug("blink", "threshold", t.blink.Threshold(), "x", t.cursor.X, "y", t.cursor.Y)
	}
	return res
}

// AcceptCurrentTarget accepts the current target with whatever samples it has.
// It returns ErrInsufficientFixation when the target has too few samples, and the
// fit error when accepting it ends a session that cannot be fitted.
func (t *Tracker) AcceptCurrentTarget() error {
	if t.mode != ModeCalibrating {
		return ErrNotCalibrating
	}
	return t.acceptTarget()
}

// SkipCurrentTarget drops the current target's samples and moves on.
// Eye openness seen while fixating it still counts toward the blink threshold.
func (t *Tracker) SkipCurrentTarget() error {
	if t.mode != ModeCalibrating {
		return ErrNotCalibrating
	}

	t.openEAR = append(t.openEAR, t.gate.Discard()...)
	t.targets[t.index].State = TargetSkipped
	t.logger.Info("target skipped", "session", t.session, "target", t.index)
	return t.advance()
}

func (t *Tracker) acceptTarget() error {
	sx, sy := t.gate.Spread()
	gaze, ear, err := t.gate.Accept()
	if err != nil {
		return err
	}

	target := &t.targets[t.index]
	target.State = TargetAccepted
	t.samples = append(t.samples, CalibrationSample{Gaze: gaze, Screen: target.Point})
	t.openEAR = append(t.openEAR, ear...)

	t.logger.Info("target accepted",
		"session", t.session,
		"target", t.index,
		"screen_x", target.Point.X,
		"screen_y", target.Point.Y)
	t.logger.Debug("target precision",
		"target", t.index,
		"gaze_x", gaze.X,
		"gaze_y", gaze.Y,
		"std_x", sx,
		"std_y", sy)

	return t.advance()
}

func (t *Tracker) advance() error {
	t.index++
	t.decision = GateNotYetStable
	t.targetStart = t.now()
	if t.index < len(t.targets) {
		t.targets[t.index].State = TargetSampling
		return nil
	}
	return t.complete()
}

// complete fits the mapping. A failed fit resets the tracker to awaiting calibration.
func (t *Tracker) complete() error {
	m, err := Fit(t.samples, t.config, t.logger)
	if err != nil {
		t.logger.Error("calibration failed",
			"session", t.session,
			"samples", len(t.samples),
			"error", err)
		t.reset()
		return err
	}

	t.mapping = m
	threshold := t.blink.Calibrate(t.openEAR)
	t.filter.Reset()
	t.mode = ModeTracking

	t.logger.Info("calibration complete",
		"session", t.session,
		"samples", len(t.samples),
		"mapping", m.Kind().String(),
		"blink_threshold", threshold)
	return nil
}

// reset is the single path back to ModeAwaitingCalibration.
func (t *Tracker) reset() {
	t.mode = ModeAwaitingCalibration
	t.targets = nil
	t.index = 0
	t.decision = GateNotYetStable
	t.samples = nil
	t.openEAR = nil
	t.mapping = nil
	t.cursor = ScreenPoint{}
	t.hasCursor = false
	t.gate.Discard()
	t.filter.Reset()
	t.blink.Reset()
}

func (t *Tracker) result() FrameResult {
	res := FrameResult{Mode: t.mode, Session: t.session}
	if t.mode == ModeCalibrating {
		res.Calibration = t.calibrationStatus()
	}
	return res
}

func (t *Tracker) calibrationStatus() *CalibrationStatus {
	if t.mode != ModeCalibrating || t.index >= len(t.targets) {
		return nil
	}
	samples, stability := t.gate.Progress()
	return &CalibrationStatus{
		TargetIndex:       t.index,
		TargetCount:       len(t.targets),
		Target:            t.targets[t.index].Point,
		SampleProgress:    samples,
		StabilityProgress: stability,
		Decision:          t.decision,
	}
}

// Targets returns a copy of the current session's targets.
func (t *Tracker) Targets() []Target {
	return append([]Target(nil), t.targets...)
}

// Samples returns a copy of the accepted calibration samples.
func (t *Tracker) Samples() []CalibrationSample {
	return append([]CalibrationSample(nil), t.samples...)
}

// Mapping returns the fitted mapping, nil unless tracking.
func (t *Tracker) Mapping() *Mapping {
	return t.mapping
}

// BlinkThreshold returns the active eye openness threshold.
func (t *Tracker) BlinkThreshold() float64 {
	return t.blink.Threshold()
}

// State is a snapshot of the tracker for status displays.
type State struct {
	Mode           Mode               `json:"mode"`
	Session        string             `json:"session,omitempty"`
	Calibration    *CalibrationStatus `json:"calibration,omitempty"`
	SampleCount    int                `json:"sample_count"`
	Mapping        string             `json:"mapping,omitempty"`
	Cursor         *ScreenPoint       `json:"cursor,omitempty"`
	BlinkThreshold float64            `json:"blink_threshold"`
	Alpha          float64            `json:"alpha"`
}

// State returns a snapshot of the tracker.
func (t *Tracker) State() State {
	s := State{
		Mode:           t.mode,
		Session:        t.session,
		Calibration:    t.calibrationStatus(),
		SampleCount:    len(t.samples),
		BlinkThreshold: t.blink.Threshold(),
		Alpha:          t.filter.Alpha(),
	}
	if t.mapping != nil {
		s.Mapping = t.mapping.Kind().String()
	}
	if t.hasCursor {
		c := t.cursor
		s.Cursor = &c
	}
	return s
}

// IsCalibrationError reports whether err ended a calibration session.
func IsCalibrationError(err error) bool {
	return errors.Is(err, ErrInsufficientSamples) || IsFitFailure(err)
}
