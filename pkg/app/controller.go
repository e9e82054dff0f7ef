package app

import (
	"context"

	"github.com/teslashibe/go-gaze/pkg/report"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// Status returns the snapshot taken after the last frame or command.
func (a *App) Status() tracking.State {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// StartCalibration discards the current mapping and starts a new session.
func (a *App) StartCalibration(ctx context.Context) (string, error) {
	return query(ctx, a, func(t *tracking.Tracker) (string, error) {
		t.RequestCalibration()
		return t.Session(), nil
	})
}

// AcceptTarget force-accepts the current calibration target.
func (a *App) AcceptTarget(ctx context.Context) error {
	return a.calibrationStep(ctx, (*tracking.Tracker).AcceptCurrentTarget)
}

// SkipTarget skips the current calibration target.
func (a *App) SkipTarget(ctx context.Context) error {
	return a.calibrationStep(ctx, (*tracking.Tracker).SkipCurrentTarget)
}

// calibrationStep runs a target control and counts a session it ends in failure.
func (a *App) calibrationStep(ctx context.Context, fn func(*tracking.Tracker) error) error {
	return a.Do(ctx, func(t *tracking.Tracker) error {
		err := fn(t)
		if tracking.IsCalibrationError(err) {
			a.deps.Metrics.CalibrationFailed()
		}
		return err
	})
}

// Tuning returns the live tuning parameters.
func (a *App) Tuning(ctx context.Context) (tracking.TuningParams, error) {
	return query(ctx, a, func(t *tracking.Tracker) (tracking.TuningParams, error) {
		return t.GetTuningParams(), nil
	})
}

// SetTuning applies the non-zero fields of p and returns the resulting parameters.
func (a *App) SetTuning(ctx context.Context, p tracking.TuningParams) (tracking.TuningParams, error) {
	return query(ctx, a, func(t *tracking.Tracker) (tracking.TuningParams, error) {
		t.SetTuningParams(p)
		return t.GetTuningParams(), nil
	})
}

// AdjustSmoothing steps the base alpha by delta and returns the new value.
func (a *App) AdjustSmoothing(ctx context.Context, delta float64) (float64, error) {
	return query(ctx, a, func(t *tracking.Tracker) (float64, error) {
		return t.AdjustSmoothing(delta), nil
	})
}

// CalibrationReport captures the fitted session for residual reports. It fails
// with tracking.ErrUnmapped until a calibration has completed.
func (a *App) CalibrationReport(ctx context.Context) (report.Calibration, error) {
	return query(ctx, a, func(t *tracking.Tracker) (report.Calibration, error) {
		m := t.Mapping()
		if m == nil {
			return report.Calibration{}, tracking.ErrUnmapped
		}

		cfg := t.Config()
		rep := report.Calibration{
			Session:      t.Session(),
			Mapping:      m.Kind().String(),
			ScreenWidth:  cfg.ScreenWidth,
			ScreenHeight: cfg.ScreenHeight,
			Targets:      t.Targets(),
			Samples:      t.Samples(),
		}
		rep.Fitted = make([]tracking.ScreenPoint, len(rep.Samples))
		for i, s := range rep.Samples {
			p, err := m.Query(s.Gaze)
			if err != nil {
				return report.Calibration{}, err
			}
			rep.Fitted[i] = p
		}
		return rep, nil
	})
}

// query runs fn on the tracker goroutine and returns its value over a channel.
func query[T any](ctx context.Context, a *App, fn func(*tracking.Tracker) (T, error)) (T, error) {
	out := make(chan T, 1)
	err := a.Do(ctx, func(t *tracking.Tracker) error {
		v, err := fn(t)
		out <- v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}
