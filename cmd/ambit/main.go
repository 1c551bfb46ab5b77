package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/jijoderick/ambit/internal/config"
	"github.com/jijoderick/ambit/internal/coupling"
	"github.com/jijoderick/ambit/internal/cycle"
	"github.com/jijoderick/ambit/internal/sim"
	"github.com/jijoderick/ambit/internal/solver"
	"github.com/jijoderick/ambit/internal/store"
)

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

var (
	configFile string
	preset     string
	model      string
	dt         float64
	maxCycles  int
	outDir     string
	prefix     string
	restart    int
	quiet      bool
	plotHeight int
	plotWidth  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ambit",
		Short: "0D lumped-parameter cardiovascular circulation simulator",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation until periodicity or the cycle budget",
		RunE:  runSimulation,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().StringVar(&model, "model", "syspul", "model type for preset lookup")
	runCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	runCmd.Flags().IntVar(&maxCycles, "cycles", config.DefaultMaxCycles, "maximum number of heart cycles")
	runCmd.Flags().StringVar(&outDir, "out", "", "output directory")
	runCmd.Flags().StringVar(&prefix, "prefix", "", "output file prefix")
	runCmd.Flags().IntVar(&restart, "restart", 0, "resume from the checkpoint of this step")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "suppress per-cycle progress")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "print the variable layout and coupling map of a configuration",
		RunE:  inspectModel,
	}
	inspectCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	inspectCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	inspectCmd.Flags().StringVar(&model, "model", "syspul", "model type for preset lookup")

	plotCmd := &cobra.Command{
		Use:   "plot [variable]",
		Short: "plot a stored time series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSeries,
	}
	plotCmd.Flags().StringVar(&outDir, "out", "results", "output directory")
	plotCmd.Flags().StringVar(&prefix, "prefix", "run", "output file prefix")
	plotCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")

	cyclesCmd := &cobra.Command{
		Use:   "cycles",
		Short: "show the cycle-to-cycle periodicity error history",
		RunE:  showCycles,
	}
	cyclesCmd.Flags().StringVar(&outDir, "out", "results", "output directory")
	cyclesCmd.Flags().StringVar(&prefix, "prefix", "run", "output file prefix")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets(args[0])
			if len(names) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			sort.Strings(names)
			fmt.Printf("presets for %s:\n", args[0])
			for _, n := range names {
				fmt.Printf("  %s\n", n)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, inspectCmd, plotCmd, cyclesCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves preset and config file into one configuration. A config
// file overrides a preset; changed CLI flags override both.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(model, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
	}
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if cmd.Flags().Changed("dt") {
		cfg.Time.Dt = dt
	}
	if cmd.Flags().Changed("cycles") {
		cfg.Time.MaxCycles = maxCycles
	}
	if cmd.Flags().Changed("out") {
		cfg.Output.Dir = outDir
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Output.Prefix = prefix
	}
	if cmd.Flags().Changed("restart") {
		cfg.Time.RestartStep = restart
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	r, err := sim.New(cfg)
	if err != nil {
		return err
	}
	if !quiet {
		r.OnStep = func(step int, t float64, x []float64, st cycle.Status, nr solver.Result) bool {
			if st.Perturbed {
				fmt.Println(yellow.Render(fmt.Sprintf("cycle %d: applied %s perturbation (factor %g)",
					st.Cycle, cfg.Periodic.PerturbKind, cfg.Periodic.PerturbFactor)))
			}
			if st.NewCycle && st.Cycle >= 2 {
				fmt.Printf("cycle %3d  %s\n", st.Cycle, dim.Render(fmt.Sprintf("err %.3e", st.Err)))
			}
			return true
		}
	}

	fmt.Printf("running %s model...\n", cyan.Render(cfg.Model))
	start := time.Now()
	res, err := r.Run(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d (t = %.3f)\n", res.Steps, res.FinalTime)
	fmt.Printf("cycles: %d\n", res.Cycles)
	if res.Periodic {
		fmt.Println(green.Render("periodic state reached"))
	} else if len(res.CycleErrs) > 0 {
		fmt.Println(yellow.Render(fmt.Sprintf("not periodic, last cycle error %.3e", res.CycleErrs[len(res.CycleErrs)-1])))
	}

	if cfg.Output.Dir != "" {
		path := filepath.Join(cfg.Output.Dir, cfg.Output.Prefix+"_export.json")
		if err := store.ExportJSON(path, exportData(cfg, r, res)); err != nil {
			return err
		}
		fmt.Printf("export: %s\n", path)
	}
	return nil
}

func exportData(cfg *config.Config, r *sim.Runner, res *sim.Result) *store.ExportData {
	data := &store.ExportData{
		Model:     cfg.Model,
		Theta:     cfg.Time.Theta,
		Dt:        cfg.Time.Dt,
		Steps:     res.Steps,
		Cycles:    res.Cycles,
		Periodic:  res.Periodic,
		CycleErrs: res.CycleErrs,
		Times:     res.Times,
		Series:    make(map[string][]float64),
	}
	for i, name := range r.Model.Vars {
		series := make([]float64, len(res.States))
		for k := range res.States {
			series[k] = res.States[k][i]
		}
		data.Series[name] = series
	}
	for name, idx := range r.Model.AuxMap {
		series := make([]float64, len(res.Aux))
		for k := range res.Aux {
			series[k] = res.Aux[k][idx]
		}
		data.Series[name] = series
	}
	return data
}

func inspectModel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := cfg.BuildModel()
	if err != nil {
		return err
	}

	fmt.Printf("model: %s (%d unknowns, T_cycl = %g)\n\n", cyan.Render(cfg.Model), m.NumDof, m.TCycl)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tVARIABLE\tOUTPUT")
	auxByIdx := make(map[int]string, len(m.AuxMap))
	for name, idx := range m.AuxMap {
		auxByIdx[idx] = name
	}
	for i, name := range m.Vars {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, name, auxByIdx[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(m.CouplingNames) > 0 {
		fmt.Println("\ncoupling scalars:")
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tNAME\tROLE\tLM0")
		pairByCpl := make(map[int]int)
		for _, pr := range coupling.Pairs(m) {
			pairByCpl[pr.Cpl] = pr.Var
		}
		lm := coupling.InitializeLM(m.CouplingNames, cfg.Initial)
		for j, name := range m.CouplingNames {
			role := "input"
			if v, ok := pairByCpl[j]; ok {
				role = fmt.Sprintf("constrains %s", m.Vars[v])
			}
			if _, ok := m.Prescribed[name]; ok {
				role = "prescribed"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%g\n", j, name, role, lm[j])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func plotSeries(cmd *cobra.Command, args []string) error {
	name := args[0]
	ts, vals, err := store.ReadSeries(outDir, prefix, name)
	if err != nil {
		return err
	}
	if len(vals) == 0 {
		return fmt.Errorf("no data in series %s", name)
	}

	graph := asciigraph.Plot(vals,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Caption(fmt.Sprintf("%s, t = %.3f .. %.3f", name, ts[0], ts[len(ts)-1])),
	)
	fmt.Println(graph)
	return nil
}

func showCycles(cmd *cobra.Command, args []string) error {
	cycles, errs, err := store.ReadCycleInfo(outDir, prefix)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		fmt.Println("no completed cycles")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CYCLE\tERROR")
	for i, c := range cycles {
		fmt.Fprintf(w, "%d\t%.6e\n", c, errs[i])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(errs) > 1 {
		fmt.Println()
		graph := asciigraph.Plot(errs,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.Caption("periodicity error per cycle"),
		)
		fmt.Println(graph)
	}
	return nil
}
