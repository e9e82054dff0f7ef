package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/camera"
	"github.com/teslashibe/go-gaze/pkg/report"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

type fakeController struct {
	mu       sync.Mutex
	state    tracking.State
	tuning   tracking.TuningParams
	acceptFn func() error
	skipFn   func() error
	deltas   []float64
	report   *report.Calibration
}

func newFakeController() *fakeController {
	return &fakeController{
		state:  tracking.State{Mode: tracking.ModeAwaitingCalibration, Alpha: 0.35},
		tuning: tracking.TuningParams{Alpha: 0.35, MaxAlpha: 0.8},
	}
}

func (f *fakeController) Status() tracking.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) StartCalibration(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Mode = tracking.ModeCalibrating
	f.state.Session = "session-1"
	return f.state.Session, nil
}

func (f *fakeController) AcceptTarget(ctx context.Context) error {
	if f.acceptFn != nil {
		return f.acceptFn()
	}
	return nil
}

func (f *fakeController) SkipTarget(ctx context.Context) error {
	if f.skipFn != nil {
		return f.skipFn()
	}
	return nil
}

func (f *fakeController) Tuning(ctx context.Context) (tracking.TuningParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tuning, nil
}

func (f *fakeController) SetTuning(ctx context.Context, p tracking.TuningParams) (tracking.TuningParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Alpha > 0 {
		f.tuning.Alpha = p.Alpha
	}
	return f.tuning, nil
}

func (f *fakeController) AdjustSmoothing(ctx context.Context, delta float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltas = append(f.deltas, delta)
	f.tuning.Alpha += delta
	return f.tuning.Alpha, nil
}

func (f *fakeController) CalibrationReport(ctx context.Context) (report.Calibration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.report == nil {
		return report.Calibration{}, tracking.ErrUnmapped
	}
	return *f.report, nil
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestStatus(t *testing.T) {
	s := NewServer("0", newFakeController(), nil)

	resp, body := do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "awaiting_calibration", body["mode"])
	assert.Equal(t, 0.35, body["alpha"])
}

func TestCalibrationStart(t *testing.T) {
	s := NewServer("0", newFakeController(), nil)

	resp, body := do(t, s, http.MethodPost, "/api/calibration/start", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "session-1", body["session"])

	logs := s.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "calibration", logs[0].Level)
}

func TestCalibrationErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
		logged bool
	}{
		{"accept outside calibration", "/api/calibration/accept", tracking.ErrNotCalibrating, http.StatusConflict, false},
		{"accept without fixation", "/api/calibration/accept", tracking.ErrInsufficientFixation, http.StatusConflict, false},
		{"skip ends session", "/api/calibration/skip", fmt.Errorf("fit: %w", tracking.ErrInsufficientSamples), http.StatusUnprocessableEntity, true},
		{"timeout", "/api/calibration/skip", context.DeadlineExceeded, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.acceptFn = func() error { return tt.err }
			ctrl.skipFn = func() error { return tt.err }
			s := NewServer("0", ctrl, nil)

			resp, body := do(t, s, http.MethodPost, tt.path, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body["error"], tt.err.Error())
			assert.Equal(t, tt.logged, len(s.Logs()) == 1)
		})
	}
}

func TestCalibrationReport(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("0", ctrl, nil)

	resp, _ := do(t, s, http.MethodGet, "/api/calibration/report", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctrl.report = &report.Calibration{
		Session:      "session-1",
		Mapping:      "rbf",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		Targets:      []tracking.Target{{Point: tracking.ScreenPoint{X: 960, Y: 540}}},
		Samples: []tracking.CalibrationSample{
			{Screen: tracking.ScreenPoint{X: 960, Y: 540}},
			{Screen: tracking.ScreenPoint{X: 960, Y: 540}},
		},
		Fitted: []tracking.ScreenPoint{{X: 963, Y: 544}, {X: 963, Y: 544}},
	}

	resp, body := do(t, s, http.MethodGet, "/api/calibration/report", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "session-1", body["session"])
	assert.InDelta(t, 5, body["rmse_px"], 1e-9)

	resp, _ = do(t, s, http.MethodGet, "/api/calibration/plot.png", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestMountMetrics(t *testing.T) {
	s := NewServer("0", newFakeController(), nil)
	s.MountMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("gaze_clicks_total 3\n"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gaze_clicks_total 3\n", string(raw))
}

func TestTuning(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("0", ctrl, nil)

	resp, body := do(t, s, http.MethodGet, "/api/tuning", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.35, body["alpha"])

	resp, body = do(t, s, http.MethodPut, "/api/tuning", `{"alpha": 0.5}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.5, body["alpha"])

	resp, _ = do(t, s, http.MethodPut, "/api/tuning", `{"alpha":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSmoothing(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("0", ctrl, nil)

	resp, _ := do(t, s, http.MethodPost, "/api/tuning/smoothing/more", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, s, http.MethodPost, "/api/tuning/smoothing/less", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, s, http.MethodPost, "/api/tuning/smoothing/sideways", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, []float64{-tracking.AlphaStep, tracking.AlphaStep}, ctrl.deltas)
}

func TestCamera(t *testing.T) {
	noCam := NewServer("0", newFakeController(), nil)
	resp, _ := do(t, noCam, http.MethodGet, "/api/camera", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s := NewServer("0", newFakeController(), camera.NewManager(camera.DefaultConfig()))

	resp, body := do(t, s, http.MethodGet, "/api/camera", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1280), body["width"])

	resp, body = do(t, s, http.MethodPut, "/api/camera", `{"preset": "legacy", "mirror": false}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(640), body["width"])
	assert.Equal(t, false, body["mirror"])

	resp, _ = do(t, s, http.MethodPut, "/api/camera", `{"quality": 0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, s, http.MethodGet, "/api/camera/presets", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["presets"], len(camera.PresetNames()))
}

func TestLogsBuffer(t *testing.T) {
	s := NewServer("0", newFakeController(), nil)

	for i := 0; i < maxLogs+10; i++ {
		s.AddLog("info", fmt.Sprintf("line %d", i))
	}

	logs := s.Logs()
	require.Len(t, logs, maxLogs)
	assert.Equal(t, "line 10", logs[0].Message)
	assert.Equal(t, fmt.Sprintf("line %d", maxLogs+9), logs[maxLogs-1].Message)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/logs", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var got []LogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got, maxLogs)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	s := NewServer("0", newFakeController(), nil)
	resp, _ := do(t, s, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestStatusWebsocket(t *testing.T) {
	ctrl := newFakeController()
	s := NewServer("0", ctrl, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	url := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	var first tracking.State
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, tracking.ModeAwaitingCalibration, first.Mode)

	require.Eventually(t, func() bool { return s.statusHub.ClientCount() == 1 }, time.Second, time.Millisecond)
	s.PublishStatus(tracking.State{Mode: tracking.ModeTracking, SampleCount: 9})

	var next tracking.State
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, tracking.ModeTracking, next.Mode)
	assert.Equal(t, 9, next.SampleCount)
}
