// Package store reads and writes the plain-text result, restart and initial
// condition files. All floating point values are written with 16 significant
// digits so a restart reproduces the run bit-for-bit within text precision.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoCheckpoint is returned when a restart file is missing.
var ErrNoCheckpoint = errors.New("store: no checkpoint")

// Results appends per-variable time series, one file per variable with
// "time value" lines.
type Results struct {
	dir    string
	prefix string
	files  map[string]*os.File
}

// NewResults creates (or truncates) the result files lazily under dir.
func NewResults(dir, prefix string) *Results {
	return &Results{dir: dir, prefix: prefix, files: make(map[string]*os.File)}
}

func (r *Results) file(name string) (*os.File, error) {
	if f, ok := r.files[name]; ok {
		return f, nil
	}
	path := filepath.Join(r.dir, r.prefix+"_"+name+".txt")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	r.files[name] = f
	return f, nil
}

// Append writes one sample of a named series.
func (r *Results) Append(name string, t, val float64) error {
	f, err := r.file(name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%.16E %.16E\n", t, val)
	return err
}

// AppendStep writes the samples of all named values at time t.
func (r *Results) AppendStep(t float64, names []string, vals []float64) error {
	for i, name := range names {
		if err := r.Append(name, t, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every series file.
func (r *Results) Close() error {
	var first error
	for _, f := range r.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.files = make(map[string]*os.File)
	return first
}

// ReadSeries loads one series back as (t, value) pairs.
func ReadSeries(dir, prefix, name string) (ts, vals []float64, err error) {
	f, err := os.Open(filepath.Join(dir, prefix+"_"+name+".txt"))
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("store: malformed series line %q", sc.Text())
		}
		t, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("store: %w", err)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("store: %w", err)
		}
		ts = append(ts, t)
		vals = append(vals, v)
	}
	return ts, vals, sc.Err()
}

// Checkpoint is the full state needed to resume a run.
type Checkpoint struct {
	Step  int
	T     float64
	Cycle int
	// Perturbed records whether the scheduled perturbation already fired.
	Perturbed bool

	X, XOld         []float64
	DFOld, FOld     []float64
	Aux, AuxOld     []float64
	C               []float64
	VarTc, VarTcOld []float64
}

var checkpointVectors = []string{"x", "xold", "dfold", "fold", "aux", "auxold", "c", "vartc", "vartcold"}

func (cp *Checkpoint) vectors() []*[]float64 {
	return []*[]float64{&cp.X, &cp.XOld, &cp.DFOld, &cp.FOld, &cp.Aux, &cp.AuxOld, &cp.C, &cp.VarTc, &cp.VarTcOld}
}

// WriteRestart writes the checkpoint of one step. Earlier checkpoints of the
// same step are overwritten.
func WriteRestart(dir, prefix string, cp *Checkpoint) error {
	meta := fmt.Sprintf("step %d\nt %.16E\ncycle %d\nperturbed %t\n", cp.Step, cp.T, cp.Cycle, cp.Perturbed)
	if err := os.WriteFile(restartPath(dir, prefix, "meta", cp.Step), []byte(meta), 0o644); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	vecs := cp.vectors()
	for i, name := range checkpointVectors {
		if err := writeVector(restartPath(dir, prefix, name, cp.Step), *vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadRestart loads the checkpoint of the given step.
func ReadRestart(dir, prefix string, step int) (*Checkpoint, error) {
	raw, err := os.ReadFile(restartPath(dir, prefix, "meta", step))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w for step %d", ErrNoCheckpoint, step)
	}
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	cp := &Checkpoint{}
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("store: malformed meta line %q", line)
		}
		switch fields[0] {
		case "step":
			cp.Step, err = strconv.Atoi(fields[1])
		case "t":
			cp.T, err = strconv.ParseFloat(fields[1], 64)
		case "cycle":
			cp.Cycle, err = strconv.Atoi(fields[1])
		case "perturbed":
			cp.Perturbed, err = strconv.ParseBool(fields[1])
		default:
			return nil, fmt.Errorf("store: unknown meta key %q", fields[0])
		}
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	vecs := cp.vectors()
	for i, name := range checkpointVectors {
		v, err := readVector(restartPath(dir, prefix, name, step))
		if err != nil {
			return nil, err
		}
		*vecs[i] = v
	}
	return cp, nil
}

func restartPath(dir, prefix, name string, step int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_restart_%s_%d.txt", prefix, name, step))
}

func writeVector(path string, v []float64) error {
	var b strings.Builder
	for _, x := range v {
		fmt.Fprintf(&b, "%.16E\n", x)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func readVector(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	var v []float64
	for _, line := range strings.Fields(string(raw)) {
		x, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		v = append(v, x)
	}
	return v, nil
}

// WriteCycleInfo appends one "cycle error" line per completed cycle.
func WriteCycleInfo(dir, prefix string, cyc int, err float64) error {
	f, ferr := os.OpenFile(filepath.Join(dir, prefix+"_cycledata.txt"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		return fmt.Errorf("store: %w", ferr)
	}
	defer f.Close()
	_, ferr = fmt.Fprintf(f, "%d %.16E\n", cyc, err)
	return ferr
}

// ReadCycleInfo loads the cycle error history.
func ReadCycleInfo(dir, prefix string) (cycles []int, errs []float64, err error) {
	f, err := os.Open(filepath.Join(dir, prefix+"_cycledata.txt"))
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("store: malformed cycle line %q", sc.Text())
		}
		c, cerr := strconv.Atoi(fields[0])
		if cerr != nil {
			return nil, nil, fmt.Errorf("store: %w", cerr)
		}
		e, eerr := strconv.ParseFloat(fields[1], 64)
		if eerr != nil {
			return nil, nil, fmt.Errorf("store: %w", eerr)
		}
		cycles = append(cycles, c)
		errs = append(errs, e)
	}
	return cycles, errs, sc.Err()
}

// WriteInitial writes "name value" lines, one per variable.
func WriteInitial(path string, names []string, vals []float64) error {
	var b strings.Builder
	for i, name := range names {
		fmt.Fprintf(&b, "%s %.16E\n", name, vals[i])
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// ReadInitial loads a "name value" file into a map.
func ReadInitial(path string) (map[string]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	out := make(map[string]float64)
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("store: malformed initial condition line %q", line)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		out[fields[0]] = v
	}
	return out, nil
}
