package solver

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// scalar root problem x^2 = a
type sqrtSystem struct{ a float64 }

func (s sqrtSystem) Assemble(x []float64) (*mat.VecDense, *mat.Dense, error) {
	r := mat.NewVecDense(1, []float64{x[0]*x[0] - s.a})
	K := mat.NewDense(1, 1, []float64{2 * x[0]})
	return r, K, nil
}

func TestSolveScalar(t *testing.T) {
	x := []float64{3}
	res, err := Solve(sqrtSystem{a: 4}, x, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-10 {
		t.Errorf("root = %.12g, want 2", x[0])
	}
	if res.Iters < 2 {
		t.Errorf("suspicious iteration count %d", res.Iters)
	}
}

// coupled 2x2 system: x0 + x1 = 3, x0 * x1 = 2
type prodSystem struct{}

func (prodSystem) Assemble(x []float64) (*mat.VecDense, *mat.Dense, error) {
	r := mat.NewVecDense(2, []float64{x[0] + x[1] - 3, x[0]*x[1] - 2})
	K := mat.NewDense(2, 2, []float64{1, 1, x[1], x[0]})
	return r, K, nil
}

func TestSolveCoupled(t *testing.T) {
	x := []float64{2.6, 0.2}
	if _, err := Solve(prodSystem{}, x, DefaultOptions()); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-9 || math.Abs(x[1]-1) > 1e-9 {
		t.Errorf("solution = %v", x)
	}
}

func TestSolveConvergedGuess(t *testing.T) {
	x := []float64{2}
	res, err := Solve(sqrtSystem{a: 4}, x, DefaultOptions())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if res.Iters != 1 {
		t.Errorf("converged guess took %d iterations", res.Iters)
	}
}

func TestSolveDamped(t *testing.T) {
	opt := DefaultOptions()
	opt.Damping = 0.5
	opt.MaxIter = 100
	x := []float64{5}
	if _, err := Solve(sqrtSystem{a: 4}, x, opt); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(x[0]-2) > 1e-7 {
		t.Errorf("damped root = %.12g", x[0])
	}
}

// a residual with no root: x^2 + 1 = 0
type noRootSystem struct{}

func (noRootSystem) Assemble(x []float64) (*mat.VecDense, *mat.Dense, error) {
	r := mat.NewVecDense(1, []float64{x[0]*x[0] + 1})
	K := mat.NewDense(1, 1, []float64{2 * x[0]})
	return r, K, nil
}

func TestSolveDiverges(t *testing.T) {
	opt := DefaultOptions()
	opt.MaxIter = 10
	x := []float64{3}
	if _, err := Solve(noRootSystem{}, x, opt); !errors.Is(err, ErrDiverged) {
		t.Errorf("expected divergence, got %v", err)
	}
}
