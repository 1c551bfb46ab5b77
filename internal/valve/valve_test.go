package valve

import (
	"math"
	"testing"

	"github.com/jijoderick/ambit/internal/expr"
)

// state layout used in the tests: x0 = downstream pressure p, x1 = popen
func buildFlow(t *testing.T, prm Params, rmin, rmax float64) (expr.Func, expr.Func) {
	t.Helper()
	q, helper, err := Flow(expr.X(0), expr.X(1), rmin, rmax, prm)
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	return q.Compile(), helper.Compile()
}

func TestParseLaw(t *testing.T) {
	for token, want := range map[string]Law{
		"pwlin_pres":             PwLinPressure,
		"pwlin_time":             PwLinTime,
		"smooth_pres_resistance": SmoothPressureResistance,
		"smooth_pres_momentum":   SmoothPressureMomentum,
		"pw_pres_regurg":         PressureRegurg,
	} {
		got, err := ParseLaw(token)
		if err != nil || got != want {
			t.Errorf("ParseLaw(%q) = %v, %v", token, got, err)
		}
	}
	if _, err := ParseLaw("ideal_diode"); err == nil {
		t.Error("expected error for unknown law token")
	}
}

func TestPwLinPressureSwitch(t *testing.T) {
	q, helper := buildFlow(t, Params{Law: PwLinPressure}, 2, 1000)

	// p < popen is the Rmax regime, p >= popen the Rmin regime
	popen := 10.0
	closed := q([]float64{5, popen}, nil, 0, nil)
	if math.Abs(closed-(popen-5)/1000) > 1e-14 {
		t.Errorf("closed branch flow: got %v", closed)
	}
	open := q([]float64{12, popen}, nil, 0, nil)
	if math.Abs(open-(popen-12)/2) > 1e-14 {
		t.Errorf("open branch flow: got %v", open)
	}

	// helper is the active branch resistance
	if h := helper([]float64{5, popen}, nil, 0, nil); math.Abs(h-1000) > 1e-9 {
		t.Errorf("closed helper: got %v, want 1000", h)
	}
	if h := helper([]float64{12, popen}, nil, 0, nil); math.Abs(h-2) > 1e-9 {
		t.Errorf("open helper: got %v, want 2", h)
	}
}

func TestPwLinTimeWindow(t *testing.T) {
	prm := Params{Law: PwLinTime, TOpen: 0.2, TClose: 0.6}
	q, _ := buildFlow(t, prm, 1, 100)

	x := []float64{0, 10}
	if got := q(x, nil, 0.4, nil); math.Abs(got-10) > 1e-12 {
		t.Errorf("inside window: got %v, want 10", got)
	}
	if got := q(x, nil, 0.8, nil); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("outside window: got %v, want 0.1", got)
	}
}

func TestPwLinTimeWrapAround(t *testing.T) {
	// close before open: window wraps the cycle boundary
	prm := Params{Law: PwLinTime, TOpen: 0.7, TClose: 0.2}
	q, _ := buildFlow(t, prm, 1, 100)

	x := []float64{0, 10}
	if got := q(x, nil, 0.8, nil); math.Abs(got-10) > 1e-12 {
		t.Errorf("after open: got %v, want 10", got)
	}
	if got := q(x, nil, 0.1, nil); math.Abs(got-10) > 1e-12 {
		t.Errorf("before close: got %v, want 10", got)
	}
	if got := q(x, nil, 0.4, nil); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("mid cycle: got %v, want 0.1", got)
	}
}

func TestSmoothLawsContinuity(t *testing.T) {
	popen := 8.0
	for _, tc := range []struct {
		name string
		prm  Params
	}{
		{"smooth_pres_resistance", Params{Law: SmoothPressureResistance, Eps: 0.05}},
		{"smooth_pres_momentum", Params{Law: SmoothPressureMomentum, Eps: 0.5}},
	} {
		q, _ := buildFlow(t, tc.prm, 2, 1000)
		prev := math.NaN()
		for p := popen - 2.0; p <= popen+2.0; p += 1e-3 {
			v := q([]float64{p, popen}, nil, 0, nil)
			if !math.IsNaN(prev) {
				if math.Abs(v-prev) > 0.05 {
					t.Fatalf("%s: jump at p=%v: %v -> %v", tc.name, p, prev, v)
				}
				if v > prev+1e-12 {
					t.Fatalf("%s: flow not non-increasing at p=%v", tc.name, p)
				}
			}
			prev = v
		}
	}
}

func TestRegurgLeakBranch(t *testing.T) {
	prm := Params{Law: PressureRegurg, LeakC: 0.7, LeakA: 0.4}
	q, _ := buildFlow(t, prm, 2, 0)

	popen := 10.0
	leak := q([]float64{6, popen}, nil, 0, nil)
	want := 0.7 * 0.4 * math.Sqrt(popen-6)
	if math.Abs(leak-want) > 1e-12 {
		t.Errorf("leak branch: got %v, want %v", leak, want)
	}
	lin := q([]float64{12, popen}, nil, 0, nil)
	if math.Abs(lin-(popen-12)/2) > 1e-12 {
		t.Errorf("linear branch: got %v", lin)
	}
}

func TestZeroOpeningPressureHelperIsUnity(t *testing.T) {
	q, helper, err := Flow(expr.X(0), expr.C(0), 1, 100, Params{Law: PwLinPressure})
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	if q == nil {
		t.Fatal("nil flow expression")
	}
	h := helper.Compile()
	if got := h([]float64{3}, nil, 0, nil); got != 1 {
		t.Errorf("helper: got %v, want 1", got)
	}
}

func TestMonotonicOnSmoothBranches(t *testing.T) {
	// every law must be non-increasing in p away from its switch points
	popen := 10.0
	for _, tc := range []struct {
		name string
		prm  Params
	}{
		{"pwlin_pres", Params{Law: PwLinPressure}},
		{"pw_pres_regurg", Params{Law: PressureRegurg, LeakC: 1, LeakA: 1}},
	} {
		q, _ := buildFlow(t, tc.prm, 2, 1000)
		for _, rangePair := range [][2]float64{{4, 9.9}, {10.1, 16}} {
			prev := math.Inf(1)
			for p := rangePair[0]; p <= rangePair[1]; p += 0.1 {
				v := q([]float64{p, popen}, nil, 0, nil)
				if v > prev+1e-12 {
					t.Errorf("%s: increasing flow at p=%v", tc.name, p)
				}
				prev = v
			}
		}
	}
}
