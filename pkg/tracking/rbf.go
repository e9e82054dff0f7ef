package tracking

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// thinPlateSpline is a smoothed thin-plate-spline interpolant with a linear tail.
//
//	f(g) = sum_i w_i * phi(|g - c_i|) + a0 + a1*u + a2*v
//
// where phi(r) = r^2 log r and (u, v) is g shifted and scaled onto [-1, 1].
type thinPlateSpline struct {
	centers []GazeVector
	weights []float64 // len(centers) kernel weights followed by 3 tail coefficients
	norm    normalizer
}

func tpsKernel(r float64) float64 {
	if r == 0 {
		return 0
	}
	return r * r * math.Log(r)
}

// newThinPlateSpline solves the saddle-point system
//
//	[ K + s*I  P ] [ w ]   [ y ]
//	[ P^T      0 ] [ a ] = [ 0 ]
//
// for kernel matrix K, smoothing s and tail matrix P = [1 u v].
func newThinPlateSpline(centers []GazeVector, values []float64, smoothing float64) (*thinPlateSpline, error) {
	n := len(centers)
	size := n + 3
	norm := newNormalizer(centers)

	lhs := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			lhs.Set(i, j, tpsKernel(centers[i].Dist(centers[j])))
		}
		lhs.Set(i, i, lhs.At(i, i)+smoothing)

		u, v := norm.apply(centers[i])
		for k, p := range [3]float64{1, u, v} {
			lhs.Set(i, n+k, p)
			lhs.Set(n+k, i, p)
		}
		rhs.SetVec(i, values[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(lhs, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalFailure, err)
	}

	weights := make([]float64, size)
	for i := range weights {
		weights[i] = sol.AtVec(i)
	}
	if err := finiteAll(weights); err != nil {
		return nil, err
	}

	return &thinPlateSpline{
		centers: append([]GazeVector(nil), centers...),
		weights: weights,
		norm:    norm,
	}, nil
}

func (t *thinPlateSpline) eval(g GazeVector) float64 {
	n := len(t.centers)
	var sum float64
	for i, c := range t.centers {
		sum += t.weights[i] * tpsKernel(g.Dist(c))
	}
	u, v := t.norm.apply(g)
	return sum + t.weights[n] + t.weights[n+1]*u + t.weights[n+2]*v
}
