package lumped

import (
	"fmt"

	"github.com/jijoderick/ambit/internal/chamber"
	"github.com/jijoderick/ambit/internal/expr"
)

// WindkesselParams holds the parameters of the two-element windkessel.
type WindkesselParams struct {
	C    float64 `yaml:"C"`
	R    float64 `yaml:"R"`
	PRef float64 `yaml:"p_ref"`
	VU   float64 `yaml:"V_u"`
	// TCycl only scopes the cycle bookkeeping; the model itself is not
	// periodic.
	TCycl float64 `yaml:"T_cycl"`
}

// DefaultWindkesselParams returns a plausible afterload parameter set.
func DefaultWindkesselParams() WindkesselParams {
	return WindkesselParams{C: 1.8e4, R: 1.2e-4, PRef: 0, VU: 0, TCycl: 1.0}
}

// NewWindkessel2E generates the single-dof RC afterload model. The source is
// either the volume or the flux of an attached chamber; driven marks a
// standalone model whose source follows a time curve instead.
func NewWindkessel2E(prm *WindkesselParams, cq chamber.Quantity, driven bool) (*Model, error) {
	build := func(m *Model) error { return buildWindkessel(m, prm, cq, driven) }
	return newModel(build, nil)
}

func buildWindkessel(m *Model, prm *WindkesselParams, cq chamber.Quantity, driven bool) error {
	m.NumDof = 1
	m.TCycl = prm.TCycl
	m.Vars = []string{"p"}
	m.AuxMap = map[string]int{"V": 0}

	p := expr.X(0)
	src := expr.Cpl(0)
	relax := expr.Scale(1/prm.R, expr.SubOf(p, expr.C(prm.PRef)))

	f := make([]expr.Expr, 1)
	df := make([]expr.Expr, 1)
	aux := make([]expr.Expr, 1)

	switch cq {
	case chamber.Volume:
		// C dp/dt + dV/dt + (p - p_ref)/R = 0
		m.CouplingNames = []string{"V_in"}
		df[0] = expr.AddOf(expr.Scale(prm.C, p), src)
		f[0] = relax
		aux[0] = src
	case chamber.Flux:
		// C dp/dt + (p - p_ref)/R = Q_in
		m.CouplingNames = []string{"Q_in"}
		df[0] = expr.Scale(prm.C, p)
		f[0] = expr.SubOf(relax, src)
		aux[0] = expr.AddOf(expr.Scale(prm.C, p), expr.C(prm.VU))
	default:
		return fmt.Errorf("lumped: windkessel source must be a volume or a flux")
	}

	if driven {
		// the source value is written from a time curve each step
		m.Prescribed = map[string]int{m.CouplingNames[0]: 0}
	} else {
		m.VarIDs = []int{0}
		m.CplIDs = []int{0}
	}

	m.f, m.df, m.aux = f, df, aux
	return nil
}
