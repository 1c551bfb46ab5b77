package cycle

import (
	"math"
	"testing"

	"github.com/jijoderick/ambit/internal/lumped"
)

func testModel(t *testing.T) (*lumped.Model, *lumped.SyspulParams) {
	t.Helper()
	prm := lumped.DefaultSyspulParams()
	m, err := lumped.NewSyspul(&prm, lumped.SyspulOptions{})
	if err != nil {
		t.Fatalf("NewSyspul: %v", err)
	}
	return m, &prm
}

func TestExactRepetitionIsPeriodic(t *testing.T) {
	m, _ := testModel(t)
	mon, err := NewMonitor(Config{TCycle: 1.0, Eps: 1e-8}, m.NumDof)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	x := make([]float64, m.NumDof)
	for i := range x {
		x[i] = float64(i) + 1
	}

	// mid-cycle steps never trigger a boundary
	st, _ := mon.Step(0.5, x, m)
	if st.NewCycle || st.Periodic {
		t.Fatalf("mid-cycle status: %+v", st)
	}

	// first boundary only snapshots
	st, _ = mon.Step(1.0, x, m)
	if !st.NewCycle || st.Cycle != 1 || st.Periodic {
		t.Fatalf("first boundary: %+v", st)
	}

	// an exactly repeated state is periodic at the second boundary
	st, _ = mon.Step(2.0, x, m)
	if !st.NewCycle || !st.Periodic || st.Err != 0 {
		t.Fatalf("second boundary: %+v", st)
	}
}

func TestDriftIsNotPeriodic(t *testing.T) {
	m, _ := testModel(t)
	mon, _ := NewMonitor(Config{TCycle: 1.0, Eps: 1e-8}, m.NumDof)

	x := make([]float64, m.NumDof)
	for c := 1; c <= 5; c++ {
		for i := range x {
			x[i] = float64(c) // constant drift between boundaries
		}
		st, _ := mon.Step(float64(c), x, m)
		if c >= 2 && st.Periodic {
			t.Fatalf("cycle %d reported periodic with err %g", c, st.Err)
		}
	}
}

func TestSubsetNorm(t *testing.T) {
	m, _ := testModel(t)
	mon, _ := NewMonitor(Config{TCycle: 1.0, Eps: 1e-3, Subset: []int{3}}, m.NumDof)

	x := make([]float64, m.NumDof)
	x[0] = 1.0 // drifts, but outside the subset
	x[3] = 2.0
	mon.Step(1.0, x, m)
	x[0] = 50.0
	st, _ := mon.Step(2.0, x, m)
	if !st.Periodic {
		t.Errorf("subset norm must ignore drift outside the subset: %+v", st)
	}

	if _, err := NewMonitor(Config{TCycle: 1, Subset: []int{99}}, m.NumDof); err == nil {
		t.Error("out-of-range subset index must fail")
	}
}

func TestPerturbationAppliedExactlyOnce(t *testing.T) {
	m, prm := testModel(t)
	rmaxBefore := prm.RVinLMax
	mon, _ := NewMonitor(Config{
		TCycle: 1.0, Eps: 1e-8,
		PerturbKind: "mr", PerturbFactor: 0.5, PerturbAfterCycle: 2,
	}, m.NumDof)

	x := make([]float64, m.NumDof)
	for i := range x {
		x[i] = 1.0
	}

	var perturbedAt int
	for c := 1; c <= 5; c++ {
		st, err := mon.Step(float64(c), x, m)
		if err != nil {
			t.Fatalf("cycle %d: %v", c, err)
		}
		// the repeated state has zero error from cycle 2 on, but a pending
		// or just-fired perturbation must hold the periodic transition back
		if c <= 3 && st.Periodic {
			t.Errorf("cycle %d reported periodic before the perturbation settled", c)
		}
		if c >= 4 && !st.Periodic {
			t.Errorf("cycle %d not periodic after the perturbation fired", c)
		}
		if st.Perturbed {
			if perturbedAt != 0 {
				t.Fatalf("perturbed twice, at cycles %d and %d", perturbedAt, c)
			}
			perturbedAt = c
		}
	}
	if perturbedAt != 3 {
		t.Fatalf("perturbed at cycle %d, want 3", perturbedAt)
	}
	if want := rmaxBefore * 0.5; math.Abs(prm.RVinLMax-want) > 1e-15 {
		t.Errorf("R_vin_l_max = %g, want %g", prm.RVinLMax, want)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, _ := testModel(t)
	mon, _ := NewMonitor(Config{TCycle: 1.0, Eps: 1e-8}, m.NumDof)

	x := make([]float64, m.NumDof)
	for i := range x {
		x[i] = float64(i)
	}
	mon.Step(1.0, x, m)
	mon.Step(2.0, x, m)

	varTc, varTcOld, perturbed := mon.Snapshots()
	clone, _ := NewMonitor(Config{TCycle: 1.0, Eps: 1e-8}, m.NumDof)
	clone.Restore(mon.Cycle(), varTc, varTcOld, perturbed)

	st, _ := clone.Step(3.0, x, m)
	if !st.NewCycle || st.Cycle != 3 || !st.Periodic {
		t.Fatalf("restored monitor: %+v", st)
	}
}
