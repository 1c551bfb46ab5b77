// Package timecurve provides the scalar time functions that drive the 0D
// circulation models: chamber activation, prescribed elastances, excitation
// fluxes and prescribed variable values.
package timecurve

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnknownKind = errors.New("timecurve: unknown curve kind")
	ErrNotFound    = errors.New("timecurve: no curve with this id")
)

// Curve maps time to a scalar value.
type Curve func(t float64) float64

// Def is the configuration of a single curve.
type Def struct {
	ID   int     `yaml:"id"`
	Kind string  `yaml:"kind"`
	// Value is the constant level (const) or amplitude (ramp, sine2).
	Value float64 `yaml:"value"`
	// T0 and T1 bound the active interval of ramp and sine2 curves.
	T0 float64 `yaml:"t0"`
	T1 float64 `yaml:"t1"`
	// Period repeats the curve cyclically when positive.
	Period float64 `yaml:"period"`
	// Points are (t, value) samples of a table curve.
	Points [][2]float64 `yaml:"points"`
}

// Set resolves curve ids to callable curves.
type Set map[int]Curve

// Build compiles curve definitions. Unknown kinds and malformed tables are
// configuration errors.
func Build(defs []Def) (Set, error) {
	s := make(Set, len(defs))
	for _, d := range defs {
		c, err := build(d)
		if err != nil {
			return nil, err
		}
		if _, dup := s[d.ID]; dup {
			return nil, fmt.Errorf("timecurve: duplicate curve id %d", d.ID)
		}
		s[d.ID] = c
	}
	return s, nil
}

// Get returns the curve with the given id.
func (s Set) Get(id int) (Curve, error) {
	c, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return c, nil
}

func build(d Def) (Curve, error) {
	var c Curve
	switch d.Kind {
	case "const":
		v := d.Value
		c = func(float64) float64 { return v }

	case "ramp":
		// linear rise from 0 to Value over [T0, T1], held afterwards
		d := d
		if d.T1 <= d.T0 {
			return nil, fmt.Errorf("timecurve: ramp curve %d needs t1 > t0", d.ID)
		}
		c = func(t float64) float64 {
			switch {
			case t <= d.T0:
				return 0
			case t >= d.T1:
				return d.Value
			default:
				return d.Value * (t - d.T0) / (d.T1 - d.T0)
			}
		}

	case "sine2":
		// smooth normalized activation: half-cosine bump on [T0, T1]
		d := d
		if d.T1 <= d.T0 {
			return nil, fmt.Errorf("timecurve: sine2 curve %d needs t1 > t0", d.ID)
		}
		amp := d.Value
		if amp == 0 {
			amp = 1
		}
		c = func(t float64) float64 {
			if t < d.T0 || t > d.T1 {
				return 0
			}
			return amp * 0.5 * (1 - math.Cos(2*math.Pi*(t-d.T0)/(d.T1-d.T0)))
		}

	case "table":
		pts := make([][2]float64, len(d.Points))
		copy(pts, d.Points)
		if len(pts) < 2 {
			return nil, fmt.Errorf("timecurve: table curve %d needs at least two points", d.ID)
		}
		sort.Slice(pts, func(i, j int) bool { return pts[i][0] < pts[j][0] })
		c = func(t float64) float64 {
			if t <= pts[0][0] {
				return pts[0][1]
			}
			if t >= pts[len(pts)-1][0] {
				return pts[len(pts)-1][1]
			}
			k := sort.Search(len(pts), func(i int) bool { return pts[i][0] >= t }) // first point at or after t
			p0, p1 := pts[k-1], pts[k]
			w := (t - p0[0]) / (p1[0] - p0[0])
			return p0[1] + w*(p1[1]-p0[1])
		}

	default:
		return nil, fmt.Errorf("%w %q (curve %d)", ErrUnknownKind, d.Kind, d.ID)
	}

	if d.Period > 0 {
		period, inner := d.Period, c
		c = func(t float64) float64 { return inner(math.Mod(t, period)) }
	}
	return c, nil
}
