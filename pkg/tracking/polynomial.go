package tracking

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const polyTerms = 10

// polyFeatures expands normalized gaze into the cubic feature vector
// (1, u, v, uv, u^2, v^2, u^2 v, u v^2, u^3, v^3).
func polyFeatures(u, v float64) [polyTerms]float64 {
	return [polyTerms]float64{
		1, u, v,
		u * v, u * u, v * v,
		u * u * v, u * v * v,
		u * u * u, v * v * v,
	}
}

// ridgePolynomial is a cubic surface fitted by ridge-regularized least squares.
// Targets are centered and scaled before the fit so the penalty acts on
// dimensionless weights.
type ridgePolynomial struct {
	weights [polyTerms]float64
	norm    normalizer
	mean    float64
	scale   float64
}

// newRidgePolynomial solves (F^T F + lambda*I) w = F^T y with a Cholesky factorization.
func newRidgePolynomial(gaze []GazeVector, values []float64, lambda float64) (*ridgePolynomial, error) {
	n := len(gaze)
	norm := newNormalizer(gaze)

	mean, scale := stat.PopMeanStdDev(values, nil)
	if scale == 0 {
		scale = 1
	}

	design := mat.NewDense(n, polyTerms, nil)
	target := mat.NewVecDense(n, nil)
	for i, g := range gaze {
		f := polyFeatures(norm.apply(g))
		design.SetRow(i, f[:])
		target.SetVec(i, (values[i]-mean)/scale)
	}

	gram := mat.NewSymDense(polyTerms, nil)
	gram.SymOuterK(1, design.T())
	for i := 0; i < polyTerms; i++ {
		gram.SetSym(i, i, gram.At(i, i)+lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, fmt.Errorf("%w: gram matrix not positive definite", ErrNumericalFailure)
	}

	var moment mat.VecDense
	moment.MulVec(design.T(), target)

	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, &moment); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumericalFailure, err)
	}

	p := &ridgePolynomial{norm: norm, mean: mean, scale: scale}
	for i := range p.weights {
		p.weights[i] = sol.AtVec(i)
	}
	if err := finiteAll(p.weights[:]); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ridgePolynomial) eval(g GazeVector) float64 {
	f := polyFeatures(p.norm.apply(g))
	var sum float64
	for i, w := range p.weights {
		sum += w * f[i]
	}
	return p.mean + p.scale*sum
}
