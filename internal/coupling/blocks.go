package coupling

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/jijoderick/ambit/internal/lumped"
)

// Pair links a 0D state unknown to the coupling scalar a 3D model writes.
type Pair struct {
	Var int
	Cpl int
}

// Pairs extracts the monolithic coupling map of a model.
func Pairs(m *lumped.Model) []Pair {
	out := make([]Pair, len(m.VarIDs))
	for i := range m.VarIDs {
		out[i] = Pair{Var: m.VarIDs[i], Cpl: m.CplIDs[i]}
	}
	return out
}

// ConstraintBlock scales row i of the constraint gradients by factors[i],
// producing the off-diagonal block the multiplier rows contribute to the
// monolithic tangent.
func ConstraintBlock(factors []float64, grads *mat.Dense) (*mat.Dense, error) {
	r, c := grads.Dims()
	if len(factors) != r {
		return nil, fmt.Errorf("coupling: %d factors for %d constraint rows", len(factors), r)
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, factors[i]*grads.At(i, j))
		}
	}
	return out, nil
}

// InitializeLM seeds the Lagrange multipliers of a pressure-coupled solve
// from the initial conditions of the pressures they constrain. Coupling
// scalars without a matching initial condition start at zero.
func InitializeLM(names []string, ic map[string]float64) []float64 {
	lm := make([]float64, len(names))
	for i, name := range names {
		if v, ok := ic[name]; ok {
			lm[i] = v
			continue
		}
		// distributed in/outflow pressures fall back to the chamber value
		if k := strings.LastIndexAny(name, "_"); k > 0 {
			if v, ok := ic[name[:k]]; ok {
				lm[i] = v
			}
		}
	}
	return lm
}
