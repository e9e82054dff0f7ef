// Package report renders calibration quality plots.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("report: no calibration samples")

// Default image size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 4.5 * vg.Inch
)

var (
	targetColor = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	fitColor    = color.RGBA{R: 38, G: 139, B: 210, A: 255}
	errorColor  = color.RGBA{R: 147, G: 161, B: 161, A: 255}
)

// Calibration is the data behind one report. Fitted[i] is the mapping's output
// for Samples[i].
type Calibration struct {
	Session      string
	Mapping      string
	ScreenWidth  float64
	ScreenHeight float64
	Targets      []tracking.Target
	Samples      []tracking.CalibrationSample
	Fitted       []tracking.ScreenPoint
}

// TargetError is the residual at one calibration target.
type TargetError struct {
	Target  tracking.ScreenPoint `json:"target"`
	Mean    tracking.ScreenPoint `json:"mean"`
	Samples int                  `json:"samples"`
	Error   float64              `json:"error_px"`
}

// Summary holds the residuals of a fitted calibration.
type Summary struct {
	Session string        `json:"session"`
	Mapping string        `json:"mapping"`
	RMSE    float64       `json:"rmse_px"`
	MaxErr  float64       `json:"max_error_px"`
	Targets []TargetError `json:"targets"`
}

// Summarize computes per-target residuals. Samples are grouped by the screen
// point they were recorded for.
func Summarize(c Calibration) (Summary, error) {
	if len(c.Samples) == 0 || len(c.Samples) != len(c.Fitted) {
		return Summary{}, ErrNoSamples
	}

	s := Summary{Session: c.Session, Mapping: c.Mapping}
	index := make(map[tracking.ScreenPoint]int)
	var sq float64

	for i, smp := range c.Samples {
		fit := c.Fitted[i]
		d := fit.Dist(smp.Screen)
		sq += d * d
		s.MaxErr = math.Max(s.MaxErr, d)

		j, ok := index[smp.Screen]
		if !ok {
			j = len(s.Targets)
			index[smp.Screen] = j
			s.Targets = append(s.Targets, TargetError{Target: smp.Screen})
		}
		te := &s.Targets[j]
		te.Mean.X += fit.X
		te.Mean.Y += fit.Y
		te.Samples++
	}

	for i := range s.Targets {
		te := &s.Targets[i]
		te.Mean.X /= float64(te.Samples)
		te.Mean.Y /= float64(te.Samples)
		te.Error = te.Mean.Dist(te.Target)
	}
	s.RMSE = math.Sqrt(sq / float64(len(c.Samples)))
	return s, nil
}

// PNG draws targets, fitted sample positions and a residual line from each
// target to its mean fitted position, in screen coordinates with y pointing down.
func PNG(c Calibration, w, h vg.Length) ([]byte, error) {
	sum, err := Summarize(c)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Calibration %s (%s, RMSE %.1f px)", c.Session, c.Mapping, sum.RMSE)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.X.Min, p.X.Max = 0, c.ScreenWidth
	p.Y.Min, p.Y.Max = 0, c.ScreenHeight
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	fitted := make(plotter.XYs, len(c.Fitted))
	for i, f := range c.Fitted {
		fitted[i] = plotter.XY{X: f.X, Y: f.Y}
	}
	fitScatter, err := plotter.NewScatter(fitted)
	if err != nil {
		return nil, err
	}
	fitScatter.GlyphStyle.Color = fitColor
	fitScatter.GlyphStyle.Radius = vg.Points(1.5)
	fitScatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(fitScatter)
	p.Legend.Add("samples", fitScatter)

	for _, te := range sum.Targets {
		line, err := plotter.NewLine(plotter.XYs{
			{X: te.Target.X, Y: te.Target.Y},
			{X: te.Mean.X, Y: te.Mean.Y},
		})
		if err != nil {
			return nil, err
		}
		line.Color = errorColor
		line.Width = vg.Points(1)
		p.Add(line)
	}

	targets := make(plotter.XYs, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, plotter.XY{X: t.Point.X, Y: t.Point.Y})
	}
	if len(targets) > 0 {
		tgtScatter, err := plotter.NewScatter(targets)
		if err != nil {
			return nil, err
		}
		tgtScatter.GlyphStyle.Color = targetColor
		tgtScatter.GlyphStyle.Radius = vg.Points(4)
		tgtScatter.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(tgtScatter)
		p.Legend.Add("targets", tgtScatter)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
