package lumped

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jijoderick/ambit/internal/chamber"
	"github.com/jijoderick/ambit/internal/timecurve"
)

// Problem is the time-discrete form of a model under the one-step theta
// scheme,
//
//	r = (df(x) - df(x_old))/dt + theta f(x) + (1-theta) f(x_old).
type Problem struct {
	M     *Model
	Theta float64
	// InitBE forces a backward Euler first step regardless of Theta.
	InitBE bool

	// C and Fnc are the current coupling and driving-function values.
	C   []float64
	Fnc []float64
	// Aux holds the auxiliary outputs at the last accepted step.
	Aux []float64

	XOld, DFOld, FOld, AuxOld []float64

	// Activation drives the elastance chambers, keyed by chamber.
	Activation map[chamber.Key]timecurve.Curve
	// CplCurves drives prescribed coupling scalars, keyed by coupling name.
	CplCurves map[string]timecurve.Curve
	// VarCurves pins state variables to prescribed values, keyed by name.
	VarCurves map[string]timecurve.Curve
}

// NewProblem wraps a generated model for time integration.
func NewProblem(m *Model, theta float64, initBE bool) (*Problem, error) {
	if theta <= 0 || theta > 1 {
		return nil, fmt.Errorf("lumped: theta must be in (0, 1], got %g", theta)
	}
	n := m.NumDof
	return &Problem{
		M: m, Theta: theta, InitBE: initBE,
		C:      make([]float64, m.NumCoupling()),
		Fnc:    make([]float64, m.NumFnc),
		Aux:    make([]float64, n),
		XOld:   make([]float64, n),
		DFOld:  make([]float64, n),
		FOld:   make([]float64, n),
		AuxOld: make([]float64, n),
	}, nil
}

func (p *Problem) effTheta(step int) float64 {
	if p.InitBE && step == 1 {
		return 1
	}
	return p.Theta
}

// EvaluatePreSolve refreshes the time-dependent inputs before a nonlinear
// solve: chamber driving functions from the activation curves and prescribed
// coupling scalars from their curves.
func (p *Problem) EvaluatePreSolve(t float64) error {
	if p.M.NumFnc > 0 {
		y := make([]float64, p.M.NumFnc)
		for i, ch := range p.M.FncChambers {
			c, ok := p.Activation[ch]
			if !ok {
				return fmt.Errorf("lumped: chamber %s needs an activation curve", ch)
			}
			y[i] = c(t)
		}
		p.M.ChamberState(y, p.Fnc)
	}
	for name, c := range p.CplCurves {
		slot, ok := p.M.Prescribed[name]
		if !ok {
			return fmt.Errorf("lumped: no prescribed coupling scalar %q", name)
		}
		p.C[slot] = c(t)
	}
	return nil
}

// Assemble evaluates residual and tangent of the theta-discrete system at
// state x. Prescribed variables overwrite their rows afterwards, so they
// converge to the curve value exactly.
func (p *Problem) Assemble(x []float64, t, dt float64, step int) (*mat.VecDense, *mat.Dense, error) {
	n := p.M.NumDof
	df := make([]float64, n)
	f := make([]float64, n)
	K := mat.NewDense(n, n, nil)
	dK := mat.NewDense(n, n, nil)
	p.M.Evaluate(x, t, p.C, p.Fnc, df, f, K, dK, nil)

	th := p.effTheta(step)
	r := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		r.SetVec(i, (df[i]-p.DFOld[i])/dt+th*f[i]+(1-th)*p.FOld[i])
	}
	Kt := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			Kt.Set(i, j, dK.At(i, j)/dt+th*K.At(i, j))
		}
	}

	for name, c := range p.VarCurves {
		idx, ok := p.M.VarMap[name]
		if !ok {
			return nil, nil, fmt.Errorf("lumped: prescribed variable %q not in model", name)
		}
		p.M.SetPrescribed(r, Kt, x, idx, c(t))
	}
	return r, Kt, nil
}

// InitializeOld seeds the history arrays from an initial state, so the first
// residual is consistent with the initial condition.
func (p *Problem) InitializeOld(x []float64, t float64) error {
	if err := p.EvaluatePreSolve(t); err != nil {
		return err
	}
	p.M.Evaluate(x, t, p.C, p.Fnc, p.DFOld, p.FOld, nil, nil, p.Aux)
	copy(p.AuxOld, p.Aux)
	copy(p.XOld, x)
	return nil
}

// Update accepts the converged state of a step: current values become the
// history of the next step.
func (p *Problem) Update(x []float64, t float64) {
	copy(p.AuxOld, p.Aux)
	p.M.Evaluate(x, t, p.C, p.Fnc, p.DFOld, p.FOld, nil, nil, p.Aux)
	copy(p.XOld, x)
}

// MidpointAvg writes the theta-weighted average of v and vOld into vMid.
// Output quantities of the theta scheme live at the midpoint, not at the
// endpoint.
func MidpointAvg(vMid, v, vOld []float64, theta float64) {
	floats.ScaleTo(vMid, theta, v)
	floats.AddScaled(vMid, 1-theta, vOld)
}
