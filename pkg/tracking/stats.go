package tracking

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// linspace returns n evenly spaced values over [start, stop].
func linspace(start, stop float64, n int) []float64 {
	if n == 1 {
		return []float64{start}
	}
	out := floats.Span(make([]float64, n), start, stop)
	out[n-1] = stop
	return out
}

// median of xs; xs is not modified. An even count averages the middle pair,
// which stat.Quantile does not do.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// popStdDev is the population standard deviation, 0 for empty input.
func popStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return std
}

func gazeAxes(gs []GazeVector) (xs, ys []float64) {
	xs = make([]float64, len(gs))
	ys = make([]float64, len(gs))
	for i, g := range gs {
		xs[i], ys[i] = g.X, g.Y
	}
	return xs, ys
}

func screenAxes(ps []ScreenPoint) (xs, ys []float64) {
	xs = make([]float64, len(ps))
	ys = make([]float64, len(ps))
	for i, p := range ps {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}
