// Package sim drives a configured 0D circulation simulation through time:
// nonlinear solves per step, result output, restarts and the cycle monitor.
package sim

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/jijoderick/ambit/internal/config"
	"github.com/jijoderick/ambit/internal/cycle"
	"github.com/jijoderick/ambit/internal/lumped"
	"github.com/jijoderick/ambit/internal/solver"
	"github.com/jijoderick/ambit/internal/store"
)

// Result accumulates a finished (or aborted) run. States and Aux hold the
// midpoint values of the theta scheme at the written steps.
type Result struct {
	Steps     int
	FinalTime float64
	Cycles    int
	Periodic  bool
	CycleErrs []float64

	Times  []float64
	States [][]float64
	Aux    [][]float64
}

// Runner owns the assembled pieces of one simulation.
type Runner struct {
	Cfg     *config.Config
	Model   *lumped.Model
	Problem *lumped.Problem
	Monitor *cycle.Monitor

	// OnStep observes every accepted step; returning false stops the run.
	OnStep func(step int, t float64, x []float64, st cycle.Status, nr solver.Result) bool

	newton solver.Options
}

// New builds a runner from a validated configuration.
func New(cfg *config.Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := cfg.BuildModel()
	if err != nil {
		return nil, err
	}
	p, err := cfg.BuildProblem(m)
	if err != nil {
		return nil, err
	}
	mon, err := cfg.BuildMonitor(m)
	if err != nil {
		return nil, err
	}
	return &Runner{
		Cfg: cfg, Model: m, Problem: p, Monitor: mon,
		newton: solver.DefaultOptions(),
	}, nil
}

// initialState assembles the initial condition from file and inline values,
// inline values taking precedence.
func (r *Runner) initialState() ([]float64, error) {
	x := make([]float64, r.Model.NumDof)
	if r.Cfg.InitialFile != "" {
		ic, err := store.ReadInitial(r.Cfg.InitialFile)
		if err != nil {
			return nil, err
		}
		if err := r.Model.SetInitial(x, ic); err != nil {
			return nil, err
		}
	}
	if err := r.Model.SetInitial(x, r.Cfg.Initial); err != nil {
		return nil, err
	}
	return x, nil
}

// Run advances the simulation until periodicity, the cycle budget or a
// cancelled context.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.Cfg
	p := r.Problem
	m := r.Model
	dt := cfg.Time.Dt
	theta := cfg.Time.Theta

	nmax := int(math.Round(float64(cfg.Time.MaxCycles) * m.TCycl / dt))
	res := &Result{}

	// a resumed run writes its series and cycle files under a suffixed
	// prefix, leaving the pre-restart history intact
	outPrefix := cfg.Output.Prefix
	if cfg.Time.RestartStep > 0 {
		outPrefix = fmt.Sprintf("%s_r%d", cfg.Output.Prefix, cfg.Time.RestartStep)
	}

	var results *store.Results
	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return nil, err
		}
		results = store.NewResults(cfg.Output.Dir, outPrefix)
		defer results.Close()
	}

	x, err := r.initialState()
	if err != nil {
		return nil, err
	}
	t0 := 0.0
	step0 := 0
	if cfg.Time.RestartStep > 0 {
		cp, err := store.ReadRestart(cfg.Output.Dir, cfg.Output.Prefix, cfg.Time.RestartStep)
		if err != nil {
			return nil, err
		}
		if err := r.restore(cp, x); err != nil {
			return nil, err
		}
		t0, step0 = cp.T, cp.Step
	} else {
		if err := p.InitializeOld(x, 0); err != nil {
			return nil, err
		}
	}

	xPrev := make([]float64, m.NumDof)
	xMid := make([]float64, m.NumDof)
	auxMid := make([]float64, m.NumDof)

	for step := step0 + 1; step <= nmax; step++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t := t0 + float64(step-step0)*dt
		if err := p.EvaluatePreSolve(t); err != nil {
			return res, err
		}

		nr, err := solver.Solve(stepSystem{p: p, t: t, dt: dt, step: step}, x, r.newton)
		if err != nil {
			return res, fmt.Errorf("step %d (t=%.6f): %w", step, t, err)
		}

		copy(xPrev, p.XOld)
		p.Update(x, t)
		if cfg.Output.Midpoint {
			lumped.MidpointAvg(xMid, x, xPrev, theta)
			lumped.MidpointAvg(auxMid, p.Aux, p.AuxOld, theta)
		} else {
			copy(xMid, x)
			copy(auxMid, p.Aux)
		}

		res.Steps = step
		res.FinalTime = t
		if cfg.Output.WriteEvery > 0 && step%cfg.Output.WriteEvery == 0 {
			res.Times = append(res.Times, t)
			res.States = append(res.States, append([]float64(nil), xMid...))
			res.Aux = append(res.Aux, append([]float64(nil), auxMid...))
			if results != nil {
				if err := results.AppendStep(t, m.Vars, xMid); err != nil {
					return res, err
				}
				for name, idx := range m.AuxMap {
					if err := results.Append(name, t, auxMid[idx]); err != nil {
						return res, err
					}
				}
			}
		}

		st, err := r.Monitor.Step(t, x, m)
		if err != nil {
			return res, err
		}
		res.Cycles = r.Monitor.Cycle()
		if st.NewCycle && st.Cycle >= 2 {
			res.CycleErrs = append(res.CycleErrs, st.Err)
			if cfg.Output.Dir != "" {
				if err := store.WriteCycleInfo(cfg.Output.Dir, outPrefix, st.Cycle, st.Err); err != nil {
					return res, err
				}
			}
		}

		if cfg.Output.RestartEvery > 0 && step%cfg.Output.RestartEvery == 0 {
			if err := r.checkpoint(step, t, x); err != nil {
				return res, err
			}
		}

		if r.OnStep != nil && !r.OnStep(step, t, x, st, nr) {
			return res, nil
		}
		if st.Periodic {
			res.Periodic = true
			if cfg.Output.Dir != "" {
				// the periodic state can seed a follow-up run directly
				path := filepath.Join(cfg.Output.Dir, outPrefix+"_initial_periodic.txt")
				if err := store.WriteInitial(path, m.Vars, x); err != nil {
					return res, err
				}
			}
			return res, nil
		}
	}
	return res, nil
}

func (r *Runner) checkpoint(step int, t float64, x []float64) error {
	p := r.Problem
	varTc, varTcOld, perturbed := r.Monitor.Snapshots()
	cp := &store.Checkpoint{
		Step: step, T: t, Cycle: r.Monitor.Cycle(), Perturbed: perturbed,
		X: x, XOld: p.XOld, DFOld: p.DFOld, FOld: p.FOld,
		Aux: p.Aux, AuxOld: p.AuxOld, C: p.C,
		VarTc: varTc, VarTcOld: varTcOld,
	}
	return store.WriteRestart(r.Cfg.Output.Dir, r.Cfg.Output.Prefix, cp)
}

// restore reloads problem and monitor state from a checkpoint. A perturbation
// recorded in the checkpoint is reapplied, since the in-memory parameters
// start from the configuration.
func (r *Runner) restore(cp *store.Checkpoint, x []float64) error {
	p := r.Problem
	if len(cp.X) != r.Model.NumDof {
		return fmt.Errorf("sim: checkpoint holds %d unknowns, model has %d", len(cp.X), r.Model.NumDof)
	}
	if cp.Perturbed {
		if r.Cfg.Periodic.PerturbKind == "" {
			return fmt.Errorf("sim: checkpoint is perturbed but no perturbation is configured")
		}
		if err := r.Model.InducePerturbation(r.Cfg.Periodic.PerturbKind, r.Cfg.Periodic.PerturbFactor); err != nil {
			return err
		}
	}
	copy(x, cp.X)
	copy(p.XOld, cp.XOld)
	copy(p.DFOld, cp.DFOld)
	copy(p.FOld, cp.FOld)
	copy(p.Aux, cp.Aux)
	copy(p.AuxOld, cp.AuxOld)
	copy(p.C, cp.C)
	r.Monitor.Restore(cp.Cycle, cp.VarTc, cp.VarTcOld, cp.Perturbed)
	return nil
}

// stepSystem adapts one time step to the Newton solver.
type stepSystem struct {
	p    *lumped.Problem
	t    float64
	dt   float64
	step int
}

func (s stepSystem) Assemble(x []float64) (r *mat.VecDense, K *mat.Dense, err error) {
	return s.p.Assemble(x, s.t, s.dt, s.step)
}
