package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/cursor"
	"github.com/teslashibe/go-gaze/pkg/metrics"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/tracking/detection"
)

const frameW, frameH = 1280, 720

// meshFace builds a refined face mesh whose extracted gaze is (gx, gy). Open eyes
// have an EAR of 0.375, closed ones 0.01875.
func meshFace(gx, gy float64, open bool) detection.FaceLandmarks {
	pts := make([]detection.Landmark, detection.NumRefinedLandmarks)
	for i := range pts {
		pts[i] = detection.Landmark{X: 0.5, Y: 0.5}
	}
	set := func(i int, x, y float64) { pts[i] = detection.Landmark{X: x, Y: y} }

	set(33, 0.40, 0.45)
	set(133, 0.46, 0.45)
	set(362, 0.54, 0.45)
	set(263, 0.60, 0.45)

	lid := 0.02
	if !open {
		lid = 0.001
	}
	for _, pair := range [][2]int{{159, 145}, {158, 144}} {
		set(pair[0], 0.43, 0.45-lid)
		set(pair[1], 0.43, 0.45+lid)
	}
	for _, pair := range [][2]int{{386, 374}, {387, 373}} {
		set(pair[0], 0.57, 0.45-lid)
		set(pair[1], 0.57, 0.45+lid)
	}

	width := 0.06
	offX := gx * width
	offY := gy * width * frameW / frameH
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

// gazeFor is the gaze that looks at p on a 1920x1080 screen.
func gazeFor(p tracking.ScreenPoint) tracking.GazeVector {
	return tracking.GazeVector{
		X: (p.X - 960) / 960 * 0.3,
		Y: (p.Y - 540) / 540 * 0.2,
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	statuses []tracking.State
	logs     []string
	levels   []string
}

func (p *fakePublisher) PublishStatus(st tracking.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
}

func (p *fakePublisher) AddLog(level, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, level)
	p.logs = append(p.logs, message)
}

func (p *fakePublisher) hasLevel(level string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.levels {
		if l == level {
			return true
		}
	}
	return false
}

type testRig struct {
	app    *App
	frames *camera.MockSource
	det    *detection.MockDetector
	cur    *cursor.MockActuator
	pub    *fakePublisher
	met    *metrics.Metrics
	now    time.Time
}

func newRig(t *testing.T, mutate func(*Config)) *testRig {
	t.Helper()

	cfg := DefaultConfig()
	cfg.CalibrateOnStart = false
	cfg.StatusInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}

	r := &testRig{
		frames: &camera.MockSource{Frames: []camera.Frame{{JPEG: []byte{0xFF, 0xD8}, Width: frameW, Height: frameH}}},
		det:    &detection.MockDetector{},
		cur:    cursor.NewMockActuator(1920, 1080),
		pub:    &fakePublisher{},
		met:    metrics.New(),
		now:    time.Unix(1700000000, 0),
	}

	a, err := New(cfg, Deps{
		Frames:    r.frames,
		Detector:  r.det,
		Cursor:    r.cur,
		Publisher: r.pub,
		Metrics:   r.met,
	})
	require.NoError(t, err)
	r.app = a
	return r
}

// frame returns a frame 1/60 s after the previous one.
func (r *testRig) frame() camera.Frame {
	r.now = r.now.Add(time.Second / 60)
	return camera.Frame{JPEG: []byte{0xFF, 0xD8}, Width: frameW, Height: frameH, Time: r.now}
}

// calibrate runs a full session with observations that look straight at each target.
func (r *testRig) calibrate(t *testing.T) {
	t.Helper()
	tr := r.app.tracker
	tr.RequestCalibration()
	for tr.Mode() == tracking.ModeCalibrating {
		st := tr.State().Calibration
		require.NotNil(t, st)
		r.now = r.now.Add(time.Second / 60)
		res := tr.OnFrame(&tracking.Observation{Gaze: gazeFor(st.Target), EyeOpenness: 0.3, Time: r.now})
		require.NoError(t, res.Err)
	}
	require.Equal(t, tracking.ModeTracking, tr.Mode())
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestNew_SizesScreenToCursor(t *testing.T) {
	cfg := DefaultConfig()
	a, err := New(cfg, Deps{
		Frames:   &camera.MockSource{},
		Detector: &detection.MockDetector{},
		Cursor:   cursor.NewMockActuator(2560, 1440),
	})
	require.NoError(t, err)
	assert.Equal(t, 2560.0, a.Config().Tracking.ScreenWidth)
	assert.Equal(t, 1440.0, a.Config().Tracking.ScreenHeight)
}

func TestStep_TracksAndClicks(t *testing.T) {
	r := newRig(t, nil)
	r.calibrate(t)

	r.det.Results = [][]detection.FaceLandmarks{{meshFace(0, 0, true)}}
	for i := 0; i < 20; i++ {
		r.app.step(r.frame())
	}

	last, ok := r.cur.Last()
	require.True(t, ok, "cursor should have moved")
	assert.InDelta(t, 960, last.X, 2)
	assert.InDelta(t, 540, last.Y, 2)
	assert.Zero(t, r.cur.ClickCount())

	r.det.Results = [][]detection.FaceLandmarks{{meshFace(0, 0, false)}}
	r.app.step(r.frame())
	r.app.step(r.frame())
	assert.Equal(t, 1, r.cur.ClickCount(), "one click per closing edge")
	assert.True(t, r.pub.hasLevel("blink"))

	st := r.app.Status()
	assert.Equal(t, tracking.ModeTracking, st.Mode)
	require.NotNil(t, st.Cursor)

	body := scrape(t, r.met)
	assert.Contains(t, body, "gaze_clicks_total 1")
	assert.Contains(t, body, `gaze_frames_total{outcome="face"} 22`)
	assert.Contains(t, body, `gaze_mode{mode="tracking"} 1`)
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestStep_CursorDisabled(t *testing.T) {
	r := newRig(t, func(c *Config) {
		c.MoveCursor = false
		c.ClickOnBlink = false
	})
	r.calibrate(t)

	r.det.Results = [][]detection.FaceLandmarks{{meshFace(0, 0, true)}, {meshFace(0, 0, false)}}
	for i := 0; i < 10; i++ {
		r.app.step(r.frame())
	}

	_, moved := r.cur.Last()
	assert.False(t, moved)
	assert.Zero(t, r.cur.ClickCount())
}

func TestStep_Misses(t *testing.T) {
	r := newRig(t, nil)
	r.calibrate(t)

	r.det.Results = [][]detection.FaceLandmarks{{}}
	for i := 0; i < 3; i++ {
		r.app.step(r.frame())
	}
	assert.Equal(t, 3, r.app.misses)

	r.det.Results = nil
	r.det.Err = errors.New("mesh timeout")
	r.app.step(r.frame())
	assert.Equal(t, 4, r.app.misses)

	// Unrefined meshes cannot be used.
	short := meshFace(0, 0, true)
	short.Points = short.Points[:detection.NumFaceLandmarks]
	r.det.Err = nil
	r.det.Results = [][]detection.FaceLandmarks{{short}}
	r.app.step(r.frame())
	assert.Equal(t, 5, r.app.misses)

	_, moved := r.cur.Last()
	assert.False(t, moved)

	r.det.Results = [][]detection.FaceLandmarks{{meshFace(0, 0, true)}}
	r.app.step(r.frame())
	assert.Zero(t, r.app.misses)

	last, moved := r.cur.Last()
	require.True(t, moved)
	assert.InDelta(t, 960, last.X, 2)

	assert.Contains(t, scrape(t, r.met), `gaze_frames_total{outcome="miss"} 5`)
}

func TestStep_CalibrationCompleteLogged(t *testing.T) {
	r := newRig(t, nil)
	r.calibrate(t)
	r.app.publish(false)

	assert.True(t, r.pub.hasLevel("calibration"))
	assert.Equal(t, tracking.ModeTracking, r.app.Status().Mode)
}

func TestRun_FailedCalibrationReported(t *testing.T) {
	// Nine targets can never reach ten samples.
	r := newRig(t, func(c *Config) {
		c.CalibrateOnStart = true
		c.Tracking.MinSamples = 10
	})
	r.det.Results = [][]detection.FaceLandmarks{{meshFace(0.1, 0.05, true)}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.app.Run(ctx) }()

	require.Eventually(t, func() bool { return r.pub.hasLevel("error") }, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return r.app.Status().Mode == tracking.ModeAwaitingCalibration
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	err := r.app.Do(context.Background(), func(*tracking.Tracker) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRun_Commands(t *testing.T) {
	r := newRig(t, nil)
	r.frames.Err = camera.ErrReadFailed // commands are served while the camera fails

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.app.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()

	session, err := r.app.StartCalibration(reqCtx)
	require.NoError(t, err)
	assert.NotEmpty(t, session)

	st := r.app.Status()
	assert.Equal(t, tracking.ModeCalibrating, st.Mode)
	assert.Equal(t, session, st.Session)

	assert.ErrorIs(t, r.app.AcceptTarget(reqCtx), tracking.ErrInsufficientFixation)
	require.NoError(t, r.app.SkipTarget(reqCtx))
	assert.Equal(t, 1, r.app.Status().Calibration.TargetIndex)

	alpha, err := r.app.AdjustSmoothing(reqCtx, -tracking.AlphaStep)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, alpha, 1e-9)

	p, err := r.app.SetTuning(reqCtx, tracking.TuningParams{DeadZone: 4})
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.DeadZone)
	assert.InDelta(t, 0.30, p.Alpha, 1e-9)

	got, err := r.app.Tuning(reqCtx)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	cancel()
	require.NoError(t, <-done)
}

func TestSkipTarget_FailedCalibrationCounted(t *testing.T) {
	r := newRig(t, nil)
	ctx := r.runLoop(t)

	_, err := r.app.StartCalibration(ctx)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		require.NoError(t, r.app.SkipTarget(ctx))
	}
	assert.NotContains(t, scrape(t, r.met), `gaze_calibrations_total{result="failed"}`)

	err = r.app.SkipTarget(ctx)
	assert.ErrorIs(t, err, tracking.ErrInsufficientSamples)
	assert.Equal(t, tracking.ModeAwaitingCalibration, r.app.Status().Mode)
	assert.Contains(t, scrape(t, r.met), `gaze_calibrations_total{result="failed"} 1`)

	// A rejected accept is not a failed session.
	_, err = r.app.StartCalibration(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, r.app.AcceptTarget(ctx), tracking.ErrInsufficientFixation)
	assert.Contains(t, scrape(t, r.met), `gaze_calibrations_total{result="failed"} 1`)
}

func TestTuning_LateCommandAfterTimeout(t *testing.T) {
	r := newRig(t, nil)

	// Nothing serves the queue yet, so the request times out with its command queued.
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p, err := r.app.Tuning(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, p)

	ctx := r.runLoop(t)
	p, err = r.app.Tuning(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, p.Alpha, 1e-9)
}

func TestRun_SourceClosed(t *testing.T) {
	r := newRig(t, nil)
	require.NoError(t, r.app.Close())
	assert.True(t, r.det.Closed)

	err := r.app.Run(context.Background())
	assert.ErrorIs(t, err, camera.ErrClosed)
}

func TestDo_ContextExpired(t *testing.T) {
	r := newRig(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.app.Do(ctx, func(*tracking.Tracker) error { return nil })
	// Queued or not, nothing runs the command, so Do gives up with the context.
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishers_FanOut(t *testing.T) {
	a, b := &fakePublisher{}, &fakePublisher{}
	ps := Publishers{a, b}

	ps.PublishStatus(tracking.State{Mode: tracking.ModeTracking})
	ps.AddLog("blink", "Click at (1, 2)")

	for _, p := range []*fakePublisher{a, b} {
		require.Len(t, p.statuses, 1)
		assert.Equal(t, tracking.ModeTracking, p.statuses[0].Mode)
		assert.True(t, p.hasLevel("blink"))
	}
}

// runLoop starts Run with a failing camera so only commands are processed.
func (r *testRig) runLoop(t *testing.T) context.Context {
	t.Helper()
	r.frames.Err = camera.ErrReadFailed

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	t.Cleanup(reqCancel)
	return reqCtx
}

func TestCalibrationReport_Unmapped(t *testing.T) {
	r := newRig(t, nil)
	ctx := r.runLoop(t)

	_, err := r.app.CalibrationReport(ctx)
	assert.ErrorIs(t, err, tracking.ErrUnmapped)
}

func TestCalibrationReport(t *testing.T) {
	r := newRig(t, nil)
	r.calibrate(t)
	ctx := r.runLoop(t)

	rep, err := r.app.CalibrationReport(ctx)
	require.NoError(t, err)

	assert.Equal(t, r.app.Status().Session, rep.Session)
	assert.Equal(t, 1920.0, rep.ScreenWidth)
	assert.Len(t, rep.Targets, 9)
	require.NotEmpty(t, rep.Samples)
	require.Len(t, rep.Fitted, len(rep.Samples))

	for i, s := range rep.Samples {
		assert.InDelta(t, s.Screen.X, rep.Fitted[i].X, 25, "sample %d", i)
		assert.InDelta(t, s.Screen.Y, rep.Fitted[i].Y, 25, "sample %d", i)
	}
}
