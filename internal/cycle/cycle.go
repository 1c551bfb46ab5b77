// Package cycle tracks heart-cycle boundaries during time stepping, measures
// the cycle-to-cycle periodicity error and schedules a one-time parameter
// perturbation after a configured number of cycles.
package cycle

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/jijoderick/ambit/internal/lumped"
)

// Config parametrizes a monitor.
type Config struct {
	// TCycle is the cycle length; Eps the periodicity tolerance.
	TCycle float64
	Eps    float64
	// Subset restricts the error norm to these state indices. Empty measures
	// all variables.
	Subset []int
	// PerturbKind schedules a parameter perturbation of the model once the
	// cycle counter exceeds PerturbAfterCycle. Empty disables it.
	PerturbKind       string
	PerturbFactor     float64
	PerturbAfterCycle int
}

// Status reports the outcome of one step check.
type Status struct {
	// NewCycle is set on the step that completed a cycle.
	NewCycle bool
	Cycle    int
	// Err is the relative cycle-to-cycle error, valid from the second
	// completed cycle on.
	Err float64
	// Periodic is set when Err dropped below the tolerance and no scheduled
	// perturbation is still pending.
	Periodic bool
	// Perturbed is set on the step that applied the scheduled perturbation.
	Perturbed bool
}

// Monitor holds the cycle state across steps.
type Monitor struct {
	cfg       Config
	cycle     int
	varTc     []float64
	varTcOld  []float64
	snapshots int
	perturbed bool
}

// NewMonitor creates a monitor for a state vector of length n.
func NewMonitor(cfg Config, n int) (*Monitor, error) {
	if cfg.TCycle <= 0 {
		return nil, fmt.Errorf("cycle: cycle length must be positive, got %g", cfg.TCycle)
	}
	for _, i := range cfg.Subset {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("cycle: subset index %d out of range", i)
		}
	}
	return &Monitor{
		cfg:      cfg,
		varTc:    make([]float64, n),
		varTcOld: make([]float64, n),
	}, nil
}

// Cycle is the number of completed cycles.
func (m *Monitor) Cycle() int { return m.cycle }

// Restore reloads the cycle state from a restart.
func (m *Monitor) Restore(cycle int, varTc, varTcOld []float64, perturbed bool) {
	m.cycle = cycle
	copy(m.varTc, varTc)
	copy(m.varTcOld, varTcOld)
	m.perturbed = perturbed
	m.snapshots = cycle
}

// Snapshots exposes the boundary states for checkpointing.
func (m *Monitor) Snapshots() (varTc, varTcOld []float64, perturbed bool) {
	return m.varTc, m.varTcOld, m.perturbed
}

// Step checks time t after an accepted step with state x. On a cycle
// boundary it snapshots the state, updates the error and applies a due
// perturbation, which regenerates the model. The periodicity signal is held
// back until a scheduled perturbation has fired.
func (m *Monitor) Step(t float64, x []float64, model *lumped.Model) (Status, error) {
	var st Status
	if t+1e-12 < float64(m.cycle+1)*m.cfg.TCycle {
		st.Cycle = m.cycle
		return st, nil
	}

	m.cycle++
	m.snapshots++
	st.NewCycle = true
	st.Cycle = m.cycle
	copy(m.varTcOld, m.varTc)
	copy(m.varTc, x)

	if m.snapshots >= 2 {
		st.Err = m.errNorm()
		st.Periodic = st.Err <= m.cfg.Eps
	}

	if m.cfg.PerturbKind != "" && !m.perturbed {
		// a scheduled perturbation that has not fired yet blocks the periodic
		// transition, so the run cannot settle before the perturbation
		st.Periodic = false
		if m.cycle > m.cfg.PerturbAfterCycle {
			if err := model.InducePerturbation(m.cfg.PerturbKind, m.cfg.PerturbFactor); err != nil {
				return st, err
			}
			m.perturbed = true
			st.Perturbed = true
		}
	}
	return st, nil
}

// errNorm is the relative two-norm of the boundary state change, measured on
// the configured subset.
func (m *Monitor) errNorm() float64 {
	idx := m.cfg.Subset
	if len(idx) == 0 {
		idx = make([]int, len(m.varTc))
		for i := range idx {
			idx[i] = i
		}
	}
	diff := make([]float64, len(idx))
	ref := make([]float64, len(idx))
	for k, i := range idx {
		diff[k] = m.varTc[i] - m.varTcOld[i]
		ref[k] = m.varTc[i]
	}
	num := floats.Norm(diff, 2)
	den := floats.Norm(ref, 2)
	if den == 0 {
		return num
	}
	return num / den
}
