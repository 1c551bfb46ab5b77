package timecurve

import (
	"errors"
	"math"
	"testing"
)

func TestConstAndRamp(t *testing.T) {
	s, err := Build([]Def{
		{ID: 1, Kind: "const", Value: 2.5},
		{ID: 2, Kind: "ramp", Value: 10, T0: 1, T1: 3},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c1, _ := s.Get(1)
	if c1(0) != 2.5 || c1(100) != 2.5 {
		t.Error("const curve not constant")
	}

	c2, _ := s.Get(2)
	if c2(0) != 0 || c2(3) != 10 || c2(5) != 10 {
		t.Error("ramp endpoints wrong")
	}
	if math.Abs(c2(2)-5) > 1e-14 {
		t.Errorf("ramp midpoint: got %v, want 5", c2(2))
	}
}

func TestSine2Activation(t *testing.T) {
	s, err := Build([]Def{{ID: 1, Kind: "sine2", T0: 0.1, T1: 0.5, Period: 1.0}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	y, _ := s.Get(1)

	if y(0.05) != 0 || y(0.6) != 0 {
		t.Error("activation must vanish outside the window")
	}
	if math.Abs(y(0.3)-1) > 1e-12 {
		t.Errorf("peak activation: got %v, want 1", y(0.3))
	}
	// periodic repetition
	if math.Abs(y(1.3)-y(0.3)) > 1e-12 {
		t.Error("periodic curve must repeat")
	}
	// normalized range
	for tt := 0.0; tt < 1.0; tt += 0.01 {
		if v := y(tt); v < 0 || v > 1 {
			t.Fatalf("activation out of [0,1] at t=%v: %v", tt, v)
		}
	}
}

func TestTableInterpolation(t *testing.T) {
	s, err := Build([]Def{{ID: 7, Kind: "table", Points: [][2]float64{{0, 0}, {1, 2}, {2, 0}}}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c, _ := s.Get(7)

	if math.Abs(c(0.5)-1) > 1e-14 || math.Abs(c(1.5)-1) > 1e-14 {
		t.Error("linear interpolation wrong")
	}
	if c(-1) != 0 || c(5) != 0 {
		t.Error("table must clamp outside its support")
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build([]Def{{ID: 1, Kind: "sawtooth"}}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := Build([]Def{{ID: 1, Kind: "const"}, {ID: 1, Kind: "const"}}); err == nil {
		t.Error("duplicate id must fail")
	}
	if _, err := Build([]Def{{ID: 1, Kind: "table", Points: [][2]float64{{0, 0}}}}); err == nil {
		t.Error("single-point table must fail")
	}
	s, _ := Build(nil)
	if _, err := s.Get(9); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing curve: got %v", err)
	}
}
