// Package solver holds the damped Newton method used to advance the
// nonlinear 0D system each time step.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDiverged is returned when the iteration fails to converge.
var ErrDiverged = errors.New("solver: Newton iteration diverged")

// System assembles residual and tangent at a state.
type System interface {
	Assemble(x []float64) (*mat.VecDense, *mat.Dense, error)
}

// Options control the iteration.
type Options struct {
	// TolRes and TolInc are the absolute residual and increment tolerances.
	TolRes float64
	TolInc float64
	// MaxIter bounds the iteration count.
	MaxIter int
	// Damping scales every Newton increment; 0 means the full step.
	Damping float64
}

// DefaultOptions matches the tolerances used throughout the solver setups.
func DefaultOptions() Options {
	return Options{TolRes: 1e-8, TolInc: 1e-8, MaxIter: 25, Damping: 1.0}
}

// Result reports the converged iteration.
type Result struct {
	Iters   int
	ResNorm float64
	IncNorm float64
}

// Solve runs damped Newton on sys, updating x in place.
func Solve(sys System, x []float64, opt Options) (Result, error) {
	if opt.MaxIter <= 0 {
		opt.MaxIter = 25
	}
	damp := opt.Damping
	if damp == 0 {
		damp = 1
	}

	var res Result
	for it := 1; it <= opt.MaxIter; it++ {
		r, K, err := sys.Assemble(x)
		if err != nil {
			return res, err
		}
		res.Iters = it
		res.ResNorm = mat.Norm(r, 2)
		if math.IsNaN(res.ResNorm) || math.IsInf(res.ResNorm, 0) {
			return res, fmt.Errorf("%w: residual is not finite at iteration %d", ErrDiverged, it)
		}
		if res.ResNorm <= opt.TolRes && res.IncNorm <= opt.TolInc {
			return res, nil
		}

		var dx mat.VecDense
		if err := dx.SolveVec(K, r); err != nil {
			return res, fmt.Errorf("solver: singular tangent: %w", err)
		}
		res.IncNorm = damp * mat.Norm(&dx, 2)
		for i := range x {
			x[i] -= damp * dx.AtVec(i)
		}
	}
	return res, fmt.Errorf("%w after %d iterations, residual %.3e, increment %.3e",
		ErrDiverged, res.Iters, res.ResNorm, res.IncNorm)
}
