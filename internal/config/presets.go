package config

import "github.com/jijoderick/ambit/internal/timecurve"

func preset(mutate func(*Config)) *Config {
	cfg := DefaultConfig()
	mutate(cfg)
	return cfg
}

// Presets are ready-to-run configurations per model type.
var Presets = map[string]map[string]func() *Config{
	"syspul": {
		"baseline": func() *Config {
			return preset(func(c *Config) {})
		},
		"smooth-valves": func() *Config {
			return preset(func(c *Config) {
				c.Valves = map[string]ValveConfig{
					"mv": {Law: "smooth_pres_resistance", Eps: 1e-3},
					"av": {Law: "smooth_pres_resistance", Eps: 1e-3},
					"tv": {Law: "smooth_pres_resistance", Eps: 1e-3},
					"pv": {Law: "smooth_pres_resistance", Eps: 1e-3},
				}
			})
		},
		"mitral-regurgitation": func() *Config {
			return preset(func(c *Config) {
				c.Time.MaxCycles = 20
				c.Periodic.PerturbKind = "mr"
				c.Periodic.PerturbFactor = 1e-4
				c.Periodic.PerturbAfterCycle = 5
			})
		},
		"aortic-stenosis": func() *Config {
			return preset(func(c *Config) {
				c.Time.MaxCycles = 20
				c.Periodic.PerturbKind = "as"
				c.Periodic.PerturbFactor = 1e3
				c.Periodic.PerturbAfterCycle = 5
			})
		},
		"prescribed-atria": func() *Config {
			return preset(func(c *Config) {
				c.Chambers = map[string]ChamberConfig{
					"la": {Type: "prescribed", CouplingQuantity: "volume"},
					"ra": {Type: "prescribed", CouplingQuantity: "volume"},
				}
				c.Curves = append(c.Curves,
					[]timecurve.Def{
						{ID: 11, Kind: "table", Period: 1.0, Points: [][2]float64{{0, 45}, {0.45, 80}, {0.93, 45}, {1.0, 45}}},
						{ID: 12, Kind: "table", Period: 1.0, Points: [][2]float64{{0, 40}, {0.45, 70}, {0.93, 40}, {1.0, 40}}},
					}...)
				c.PrescribedCoupling = map[string]int{"V_at_l": 11, "V_at_r": 12}
				delete(c.Activation, "la")
				delete(c.Activation, "ra")
			})
		},
	},
	"2elwindkessel": {
		"afterload": func() *Config {
			return preset(func(c *Config) {
				c.Model = "2elwindkessel"
				c.Activation = nil
				c.Initial = map[string]float64{"p": 10.0}
				c.Curves = []timecurve.Def{
					{ID: 1, Kind: "sine2", Value: 3.0e4, T0: 0.0, T1: 0.3, Period: 1.0},
				}
				c.PrescribedCoupling = map[string]int{"Q_in": 1}
			})
		},
	},
}

// GetPreset returns a fresh preset configuration, or nil.
func GetPreset(model, name string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	mk, ok := modelPresets[name]
	if !ok {
		return nil
	}
	return mk()
}

// ListPresets returns the preset names of one model type.
func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
