package store

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestResultsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewResults(dir, "run")

	samples := []struct {
		t, v float64
	}{
		{0.01, 2.0383920193847561},
		{0.02, -13.918273645192837e-5},
		{0.03, 7.5e8},
	}
	for _, s := range samples {
		if err := r.Append("p_v_l", s.t, s.v); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ts, vs, err := ReadSeries(dir, "run", "p_v_l")
	if err != nil {
		t.Fatalf("ReadSeries: %v", err)
	}
	if len(ts) != len(samples) {
		t.Fatalf("got %d samples", len(ts))
	}
	for i, s := range samples {
		if math.Abs(ts[i]-s.t) > 1e-15 || math.Abs(vs[i]-s.v) > 1e-9*math.Abs(s.v) {
			t.Errorf("sample %d: (%g, %g), want (%g, %g)", i, ts[i], vs[i], s.t, s.v)
		}
	}
}

func TestAppendStep(t *testing.T) {
	dir := t.TempDir()
	r := NewResults(dir, "run")
	if err := r.AppendStep(0.5, []string{"a", "b"}, []float64{1, 2}); err != nil {
		t.Fatalf("AppendStep: %v", err)
	}
	r.Close()

	_, vs, err := ReadSeries(dir, "run", "b")
	if err != nil || len(vs) != 1 || vs[0] != 2 {
		t.Fatalf("series b: %v, %v", vs, err)
	}
}

func TestRestartRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cp := &Checkpoint{
		Step: 250, T: 2.5, Cycle: 2, Perturbed: true,
		X:     []float64{1.0000000000000004, -2},
		XOld:  []float64{1, -2.5},
		DFOld: []float64{0.1, 0.2},
		FOld:  []float64{-0.1, -0.2},
		Aux:   []float64{10, 20}, AuxOld: []float64{9, 19},
		C:     []float64{3.3},
		VarTc: []float64{5, 6}, VarTcOld: []float64{4, 5},
	}
	if err := WriteRestart(dir, "run", cp); err != nil {
		t.Fatalf("WriteRestart: %v", err)
	}

	got, err := ReadRestart(dir, "run", 250)
	if err != nil {
		t.Fatalf("ReadRestart: %v", err)
	}
	if got.Step != cp.Step || got.T != cp.T || got.Cycle != cp.Cycle || !got.Perturbed {
		t.Errorf("meta: %+v", got)
	}
	// 16 significant digits keep the last bit of the mantissa
	if got.X[0] != cp.X[0] {
		t.Errorf("X[0] = %.17g, want %.17g", got.X[0], cp.X[0])
	}
	if got.C[0] != cp.C[0] || got.VarTcOld[1] != cp.VarTcOld[1] {
		t.Errorf("vectors: %+v", got)
	}

	if _, err := ReadRestart(dir, "run", 999); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("missing checkpoint: got %v", err)
	}
}

func TestCycleInfo(t *testing.T) {
	dir := t.TempDir()
	WriteCycleInfo(dir, "run", 1, 0.5)
	WriteCycleInfo(dir, "run", 2, 0.01)

	cycles, errs, err := ReadCycleInfo(dir, "run")
	if err != nil {
		t.Fatalf("ReadCycleInfo: %v", err)
	}
	if len(cycles) != 2 || cycles[1] != 2 || errs[1] != 0.01 {
		t.Errorf("cycle info: %v %v", cycles, errs)
	}
}

func TestInitialConditions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ic.txt")
	if err := WriteInitial(path, []string{"p_v_l", "q_vin_l"}, []float64{1.5, -0.25}); err != nil {
		t.Fatalf("WriteInitial: %v", err)
	}
	ic, err := ReadInitial(path)
	if err != nil {
		t.Fatalf("ReadInitial: %v", err)
	}
	if ic["p_v_l"] != 1.5 || ic["q_vin_l"] != -0.25 {
		t.Errorf("initial conditions: %v", ic)
	}
}

func TestExportRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	data := &ExportData{
		Model: "syspul", Theta: 0.5, Dt: 0.01, Steps: 100,
		Cycles: 3, Periodic: true,
		CycleErrs: []float64{0.5, 0.02, 0.0009},
		Times:     []float64{0.01, 0.02},
		Series:    map[string][]float64{"p_v_l": {1.1, 1.2}},
	}
	if err := ExportJSON(path, data); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	got, err := ReadExport(path)
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if got.Model != "syspul" || !got.Periodic || got.Series["p_v_l"][1] != 1.2 {
		t.Errorf("export: %+v", got)
	}
}
