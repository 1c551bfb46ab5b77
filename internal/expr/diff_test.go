package expr

import (
	"math"
	"math/rand"
	"testing"
)

// finite-difference check of the symbolic derivative on smooth points
func checkDiff(t *testing.T, name string, e Expr, x []float64, j int) {
	t.Helper()

	const eps = 1e-7
	f := e.Compile()
	df := Diff(e, j).Compile()

	xp := make([]float64, len(x))
	copy(xp, x)
	xp[j] += eps

	num := (f(xp, nil, 0.3, nil) - f(x, nil, 0.3, nil)) / eps
	sym := df(x, nil, 0.3, nil)

	scale := math.Max(1, math.Abs(sym))
	if math.Abs(num-sym)/scale > 1e-5 {
		t.Errorf("%s: d/dx%d mismatch: numeric %v, symbolic %v", name, j, num, sym)
	}
}

func TestDiffSmoothExpressions(t *testing.T) {
	cases := []struct {
		name string
		e    Expr
	}{
		{"product", MulOf(X(0), X(1))},
		{"quotient", DivOf(X(0), AddOf(X(1), C(2)))},
		{"cubic", PowOf(AddOf(X(0), Scale(0.5, X(1))), 3)},
		{"tanh blend", TanhOf(DivOf(SubOf(X(0), X(1)), C(0.01)))},
		{"sqrt leak", SqrtOf(AddOf(SubOf(X(0), X(1)), C(5)))},
		{"nested", MulOf(TanhOf(X(0)), PowOf(X(1), 2))},
	}

	rng := rand.New(rand.NewSource(7))
	for _, tc := range cases {
		for k := 0; k < 5; k++ {
			x := []float64{1 + rng.Float64(), 0.5 + rng.Float64()}
			checkDiff(t, tc.name, tc.e, x, 0)
			checkDiff(t, tc.name, tc.e, x, 1)
		}
	}
}

func TestDiffNonStateSymbolsVanish(t *testing.T) {
	for _, e := range []Expr{Cpl(0), F(2), T(), C(3.5)} {
		if !IsZero(Diff(e, 0)) {
			t.Errorf("derivative of %T should be zero", e)
		}
	}
}

func TestDiffPiecewiseBranches(t *testing.T) {
	// q = (popen - p)/R with R switching at the threshold: the derivative
	// w.r.t. p is -1/R on each branch
	p, popen := X(0), X(1)
	e := Piecewise{
		Cases: []Case{
			{Then: DivOf(SubOf(popen, p), C(10)), When: Less{A: p, B: popen}},
			{Then: DivOf(SubOf(popen, p), C(2)), When: GreaterEq{A: p, B: popen}},
		},
	}
	d := Diff(e, 0).Compile()

	if got := d([]float64{0, 1}, nil, 0, nil); math.Abs(got+0.1) > 1e-14 {
		t.Errorf("closed branch: got %v, want -0.1", got)
	}
	if got := d([]float64{2, 1}, nil, 0, nil); math.Abs(got+0.5) > 1e-14 {
		t.Errorf("open branch: got %v, want -0.5", got)
	}
}

func TestDiffZeroEntriesStayZero(t *testing.T) {
	// an expression without x2 must have a literal zero derivative
	e := AddOf(MulOf(X(0), X(1)), Cpl(0))
	if !IsZero(Diff(e, 2)) {
		t.Error("expected structurally zero derivative")
	}
}
