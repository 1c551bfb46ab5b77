// Package config defines the yaml run configuration and builds the model,
// problem and cycle monitor from it.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jijoderick/ambit/internal/chamber"
	"github.com/jijoderick/ambit/internal/cycle"
	"github.com/jijoderick/ambit/internal/lumped"
	"github.com/jijoderick/ambit/internal/timecurve"
	"github.com/jijoderick/ambit/internal/valve"
)

const (
	DefaultDt        = 1.0e-3
	DefaultTheta     = 0.5
	DefaultMaxCycles = 10
	DefaultEps       = 1.0e-3
)

var (
	ErrUnknownModel = errors.New("config: unknown model type")
	// ErrUnsupportedModel marks model types of the configuration format this
	// build does not generate.
	ErrUnsupportedModel = errors.New("config: model type not supported")
)

// model types the format reserves but this build does not generate
var unsupportedModels = map[string]bool{
	"syspulcap":        true,
	"syspulcapcor":     true,
	"syspulcaprespir":  true,
	"4elwindkesselLsZ": true,
	"4elwindkesselLpZ": true,
	"CRLinoutlink":     true,
}

type Config struct {
	Model    string         `yaml:"model"`
	Output   OutputConfig   `yaml:"output"`
	Time     TimeConfig     `yaml:"time"`
	Periodic PeriodicConfig `yaml:"periodic"`

	Syspul     lumped.SyspulParams `yaml:"syspul"`
	Windkessel WindkesselConfig    `yaml:"windkessel"`

	Chambers map[string]ChamberConfig `yaml:"chambers"`
	Valves   map[string]ValveConfig   `yaml:"valves"`
	Coronary bool                     `yaml:"coronary"`

	Curves []timecurve.Def `yaml:"curves"`
	// Activation assigns a curve id per chamber token (lv, rv, la, ra).
	Activation map[string]int `yaml:"activation"`
	// PrescribedCoupling assigns curve ids to prescribed coupling scalars.
	PrescribedCoupling map[string]int `yaml:"prescribed_coupling"`
	// PrescribedVariables pins state variables to curves.
	PrescribedVariables map[string]int `yaml:"prescribed_variables"`

	Initial     map[string]float64 `yaml:"initial"`
	InitialFile string             `yaml:"initial_file"`
}

type OutputConfig struct {
	Dir          string `yaml:"dir"`
	Prefix       string `yaml:"prefix"`
	WriteEvery   int    `yaml:"write_every"`
	RestartEvery int    `yaml:"restart_every"`
	// Midpoint writes the theta-midpoint values instead of the step endpoint.
	Midpoint bool `yaml:"midpoint"`
}

type TimeConfig struct {
	Dt        float64 `yaml:"dt"`
	MaxCycles int     `yaml:"max_cycles"`
	Theta     float64 `yaml:"theta"`
	// InitialBackwardEuler makes the first step fully implicit.
	InitialBackwardEuler bool `yaml:"initial_backwardeuler"`
	// RestartStep resumes from the checkpoint of this step when positive.
	RestartStep int `yaml:"restart_step"`
}

type PeriodicConfig struct {
	Eps float64 `yaml:"eps"`
	// Subset restricts the periodicity norm to these variables.
	Subset []string `yaml:"subset"`
	// PerturbKind schedules a one-time valve perturbation (mr, ms, ar, as).
	PerturbKind       string  `yaml:"perturb_kind"`
	PerturbFactor     float64 `yaml:"perturb_factor"`
	PerturbAfterCycle int     `yaml:"perturb_after_cycle"`
}

type ChamberConfig struct {
	Type             string `yaml:"type"`
	CouplingQuantity string `yaml:"coupling_quantity"`
	VariableQuantity string `yaml:"variable_quantity"`
	NumInflows       int    `yaml:"num_inflows"`
	NumOutflows      int    `yaml:"num_outflows"`
}

type ValveConfig struct {
	Law   string  `yaml:"law"`
	Eps   float64 `yaml:"eps"`
	LeakC float64 `yaml:"leak_c"`
	LeakA float64 `yaml:"leak_a"`
}

type WindkesselConfig struct {
	Params lumped.WindkesselParams `yaml:"params"`
	// Source selects the inflow quantity, volume or flux.
	Source string `yaml:"source"`
	// Driven feeds the source from a time curve instead of a 3D model.
	Driven bool `yaml:"driven"`
}

func DefaultConfig() *Config {
	return &Config{
		Model: "syspul",
		Output: OutputConfig{
			Dir: "results", Prefix: "run", WriteEvery: 1, RestartEvery: 0,
			Midpoint: true,
		},
		Time: TimeConfig{
			Dt: DefaultDt, MaxCycles: DefaultMaxCycles, Theta: DefaultTheta,
			InitialBackwardEuler: true,
		},
		Periodic: PeriodicConfig{Eps: DefaultEps},
		Syspul:   lumped.DefaultSyspulParams(),
		Windkessel: WindkesselConfig{
			Params: lumped.DefaultWindkesselParams(), Source: "flux", Driven: true,
		},
		Curves: []timecurve.Def{
			{ID: 1, Kind: "sine2", T0: 0.2, T1: 0.53, Period: 1.0}, // ventricles
			{ID: 2, Kind: "sine2", T0: 0.85, T1: 1.0, Period: 1.0}, // atria
		},
		Activation: map[string]int{"lv": 1, "rv": 1, "la": 2, "ra": 2},
		Initial: map[string]float64{
			"p_at_l": 0.6, "p_v_l": 0.6, "p_ar_sys": 9.0, "p_ven_sys": 2.0,
			"p_at_r": 0.3, "p_v_r": 0.3, "p_ar_pul": 2.0, "p_ven_pul": 1.0,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the scalar run settings.
func (c *Config) Validate() error {
	if c.Time.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %g", c.Time.Dt)
	}
	if c.Time.Theta <= 0 || c.Time.Theta > 1 {
		return fmt.Errorf("config: theta must be in (0, 1], got %g", c.Time.Theta)
	}
	if c.Time.MaxCycles < 1 {
		return fmt.Errorf("config: max_cycles must be at least 1, got %d", c.Time.MaxCycles)
	}
	return nil
}

// BuildModel generates the configured 0D model.
func (c *Config) BuildModel() (*lumped.Model, error) {
	switch c.Model {
	case "syspul":
		opt, err := c.syspulOptions()
		if err != nil {
			return nil, err
		}
		return lumped.NewSyspul(&c.Syspul, opt)
	case "2elwindkessel":
		q, err := chamber.ParseQuantity(c.Windkessel.Source)
		if err != nil {
			return nil, err
		}
		return lumped.NewWindkessel2E(&c.Windkessel.Params, q, c.Windkessel.Driven)
	default:
		if unsupportedModels[c.Model] {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, c.Model)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, c.Model)
	}
}

func (c *Config) syspulOptions() (lumped.SyspulOptions, error) {
	opt := lumped.SyspulOptions{Coronary: c.Coronary}
	if len(c.Chambers) > 0 {
		opt.Chambers = make(map[chamber.Key]lumped.SyspulChamber, len(c.Chambers))
	}
	for token, cc := range c.Chambers {
		key, err := chamber.ParseKey(token)
		if err != nil {
			return opt, err
		}
		variant, err := chamber.ParseVariant(cc.Type)
		if err != nil {
			return opt, fmt.Errorf("chamber %s: %w", token, err)
		}
		sc := lumped.SyspulChamber{
			Spec: chamber.Spec{
				Variant:     variant,
				NumInflows:  cc.NumInflows,
				NumOutflows: cc.NumOutflows,
			},
		}
		if cc.CouplingQuantity != "" {
			if sc.CQ, err = chamber.ParseQuantity(cc.CouplingQuantity); err != nil {
				return opt, fmt.Errorf("chamber %s: %w", token, err)
			}
		}
		if cc.VariableQuantity != "" {
			if sc.VQ, err = chamber.ParseQuantity(cc.VariableQuantity); err != nil {
				return opt, fmt.Errorf("chamber %s: %w", token, err)
			}
		}
		opt.Chambers[key] = sc
	}
	if len(c.Valves) > 0 {
		opt.Valves = make(map[string]valve.Params, len(c.Valves))
	}
	for token, vc := range c.Valves {
		law, err := valve.ParseLaw(vc.Law)
		if err != nil {
			return opt, fmt.Errorf("valve %s: %w", token, err)
		}
		opt.Valves[token] = valve.Params{
			Law: law, Eps: vc.Eps, LeakC: vc.LeakC, LeakA: vc.LeakA,
		}
	}
	return opt, nil
}

// BuildProblem wraps the model for time integration and wires all curves.
func (c *Config) BuildProblem(m *lumped.Model) (*lumped.Problem, error) {
	p, err := lumped.NewProblem(m, c.Time.Theta, c.Time.InitialBackwardEuler)
	if err != nil {
		return nil, err
	}
	curves, err := timecurve.Build(c.Curves)
	if err != nil {
		return nil, err
	}

	if len(c.Activation) > 0 {
		p.Activation = make(map[chamber.Key]timecurve.Curve, len(c.Activation))
	}
	for token, id := range c.Activation {
		key, err := chamber.ParseKey(token)
		if err != nil {
			return nil, err
		}
		if p.Activation[key], err = curves.Get(id); err != nil {
			return nil, err
		}
	}

	if len(c.PrescribedCoupling) > 0 {
		p.CplCurves = make(map[string]timecurve.Curve, len(c.PrescribedCoupling))
	}
	for name, id := range c.PrescribedCoupling {
		if _, ok := m.Prescribed[name]; !ok {
			return nil, fmt.Errorf("config: no prescribed coupling scalar %q in model", name)
		}
		if p.CplCurves[name], err = curves.Get(id); err != nil {
			return nil, err
		}
	}

	if len(c.PrescribedVariables) > 0 {
		p.VarCurves = make(map[string]timecurve.Curve, len(c.PrescribedVariables))
	}
	for name, id := range c.PrescribedVariables {
		if _, ok := m.VarMap[name]; !ok {
			return nil, fmt.Errorf("config: prescribed variable %q not in model", name)
		}
		if p.VarCurves[name], err = curves.Get(id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// BuildMonitor resolves the periodicity settings against the model layout.
func (c *Config) BuildMonitor(m *lumped.Model) (*cycle.Monitor, error) {
	cfg := cycle.Config{
		TCycle:            m.TCycl,
		Eps:               c.Periodic.Eps,
		PerturbKind:       c.Periodic.PerturbKind,
		PerturbFactor:     c.Periodic.PerturbFactor,
		PerturbAfterCycle: c.Periodic.PerturbAfterCycle,
	}
	for _, name := range c.Periodic.Subset {
		idx, ok := m.VarMap[name]
		if !ok {
			return nil, fmt.Errorf("config: periodicity variable %q not in model", name)
		}
		cfg.Subset = append(cfg.Subset, idx)
	}
	return cycle.NewMonitor(cfg, m.NumDof)
}
