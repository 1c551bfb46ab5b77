// Package lumped builds the symbolic 0D lumped-parameter circulation models.
// A model carries its residual equations as expression trees, derives the
// stiffness entries by exact symbolic differentiation and compiles everything
// to closures for evaluation inside the time-stepping loop.
package lumped

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jijoderick/ambit/internal/chamber"
	"github.com/jijoderick/ambit/internal/expr"
)

var (
	ErrUnknownPerturbation = errors.New("lumped: unknown perturbation kind")
	ErrInconsistent        = errors.New("lumped: equation map does not tile the state vector")
)

// Model is a fully generated 0D circulation model. The equation arrays hold
// the flux part df and the algebraic part f of each residual row,
//
//	r_i = d/dt df_i(x) + f_i(x)
//
// together with their symbolic Jacobians and the auxiliary (volume) outputs.
type Model struct {
	NumDof int
	// TCycl is the heart cycle length the model was generated with.
	TCycl float64

	// Vars names the state components; VarMap inverts it.
	Vars   []string
	VarMap map[string]int
	// AuxMap names the populated slots of the auxiliary output vector.
	AuxMap map[string]int

	// CouplingNames lists the free coupling scalars in allocation order.
	CouplingNames []string
	// VarIDs and CplIDs pair monolithically coupled state indices with the
	// coupling scalars a 3D model feeds back into.
	VarIDs []int
	CplIDs []int
	// NumFnc is the number of driving-function slots (chamber elastances).
	NumFnc int
	// Prescribed maps coupling-scalar names whose value follows a time curve
	// to the coupling slot the curve value is written into.
	Prescribed map[string]int
	// FncChambers lists the chambers consuming a driving function, in slot
	// order.
	FncChambers []chamber.Key
	// ChamberState converts per-chamber activation values into driving
	// function values (elastance interpolation). Nil when NumFnc is zero.
	ChamberState func(y, fnc []float64)

	f, df, aux []expr.Expr
	stiffK     [][]expr.Expr
	stiffDK    [][]expr.Expr

	cf, cdf, caux []expr.Func
	cK, cdK       [][]expr.Func

	build   func(m *Model) error
	perturb func(kind string, factor float64) error
}

// newModel generates, differentiates and compiles a model from its equation
// builder.
func newModel(build func(m *Model) error, perturb func(kind string, factor float64) error) (*Model, error) {
	m := &Model{build: build, perturb: perturb}
	if err := m.rebuild(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) rebuild() error {
	m.Vars = nil
	m.CouplingNames = nil
	m.VarIDs, m.CplIDs = nil, nil
	m.FncChambers = nil
	m.Prescribed = nil
	m.f, m.df, m.aux = nil, nil, nil

	if err := m.build(m); err != nil {
		return err
	}
	n := m.NumDof
	if len(m.f) != n || len(m.df) != n || len(m.Vars) != n {
		return ErrInconsistent
	}
	for i := 0; i < n; i++ {
		if m.f[i] == nil || m.df[i] == nil {
			return fmt.Errorf("%w: row %d (%s) not populated", ErrInconsistent, i, m.Vars[i])
		}
	}
	if m.aux == nil {
		m.aux = make([]expr.Expr, n)
	}
	for i := range m.aux {
		if m.aux[i] == nil {
			m.aux[i] = expr.C(0)
		}
	}

	m.VarMap = make(map[string]int, n)
	for i, name := range m.Vars {
		m.VarMap[name] = i
	}

	m.setStiffness()
	m.compile()
	return nil
}

// setStiffness derives every Jacobian entry of f and df symbolically.
func (m *Model) setStiffness() {
	n := m.NumDof
	m.stiffK = make([][]expr.Expr, n)
	m.stiffDK = make([][]expr.Expr, n)
	for i := 0; i < n; i++ {
		m.stiffK[i] = make([]expr.Expr, n)
		m.stiffDK[i] = make([]expr.Expr, n)
		for j := 0; j < n; j++ {
			m.stiffK[i][j] = expr.Diff(m.f[i], j)
			m.stiffDK[i][j] = expr.Diff(m.df[i], j)
		}
	}
}

// compile turns every expression into a callable closure.
func (m *Model) compile() {
	n := m.NumDof
	m.cf = make([]expr.Func, n)
	m.cdf = make([]expr.Func, n)
	m.caux = make([]expr.Func, n)
	m.cK = make([][]expr.Func, n)
	m.cdK = make([][]expr.Func, n)
	for i := 0; i < n; i++ {
		m.cf[i] = m.f[i].Compile()
		m.cdf[i] = m.df[i].Compile()
		m.caux[i] = m.aux[i].Compile()
		m.cK[i] = make([]expr.Func, n)
		m.cdK[i] = make([]expr.Func, n)
		for j := 0; j < n; j++ {
			m.cK[i][j] = m.stiffK[i][j].Compile()
			m.cdK[i][j] = m.stiffDK[i][j].Compile()
		}
	}
}

// Evaluate fills the requested outputs at state x, time t, coupling values c
// and driving-function values fnc. Any output may be nil to skip it.
func (m *Model) Evaluate(x []float64, t float64, c, fnc []float64, df, f []float64, K, dK *mat.Dense, aux []float64) {
	n := m.NumDof
	for i := 0; i < n; i++ {
		if df != nil {
			df[i] = m.cdf[i](x, c, t, fnc)
		}
		if f != nil {
			f[i] = m.cf[i](x, c, t, fnc)
		}
		if aux != nil {
			aux[i] = m.caux[i](x, c, t, fnc)
		}
		for j := 0; j < n; j++ {
			if K != nil {
				K.Set(i, j, m.cK[i][j](x, c, t, fnc))
			}
			if dK != nil {
				dK.Set(i, j, m.cdK[i][j](x, c, t, fnc))
			}
		}
	}
}

// NumCoupling is the number of free coupling scalars.
func (m *Model) NumCoupling() int { return len(m.CouplingNames) }

// SetPrescribed pins state component idx to val: the residual row becomes
// x[idx]-val and the Jacobian row the corresponding unit row, so a converged
// Newton solve reproduces the prescribed value exactly.
func (m *Model) SetPrescribed(r *mat.VecDense, K *mat.Dense, x []float64, idx int, val float64) {
	r.SetVec(idx, x[idx]-val)
	for j := 0; j < m.NumDof; j++ {
		K.Set(idx, j, 0)
	}
	K.Set(idx, idx, 1)
}

// SetInitial writes named initial conditions into the state vector.
func (m *Model) SetInitial(x []float64, ic map[string]float64) error {
	for name, val := range ic {
		i, ok := m.VarMap[name]
		if !ok {
			return fmt.Errorf("lumped: initial condition for unknown variable %q", name)
		}
		x[i] = val
	}
	return nil
}

// InducePerturbation changes the model parameters according to kind, scaled
// by factor, and regenerates the full symbolic model.
func (m *Model) InducePerturbation(kind string, factor float64) error {
	if m.perturb == nil {
		return fmt.Errorf("%w %q", ErrUnknownPerturbation, kind)
	}
	if err := m.perturb(kind, factor); err != nil {
		return err
	}
	return m.rebuild()
}
