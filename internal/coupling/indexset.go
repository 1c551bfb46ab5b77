// Package coupling prepares the data a monolithic 3D/0D coupled solve needs
// from the 0D side: global index sets per solution field, the distribution
// layout of the 0D unknowns and the Lagrange-multiplier constraint blocks.
package coupling

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrExclusiveMerge = errors.New("coupling: multiplier merge targets are mutually exclusive")
	ErrNotTiling      = errors.New("coupling: index sets do not tile the global vector")
)

// Field describes one solution field by its local block size on every rank.
// The global vector interleaves the fields rank by rank: all fields of rank
// 0, then all fields of rank 1, and so on.
type Field struct {
	Name  string
	Sizes []int
}

// IndexSet is the sorted list of global indices owned by one field.
type IndexSet struct {
	Name string
	Idx  []int
}

// Options steers how the special fields are placed.
type Options struct {
	// LMToPressure merges the multiplier field "lm" into the "p" set.
	LMToPressure bool
	// LMToVelocity merges the multiplier field "lm" into the "v" set.
	LMToVelocity bool
	// ROMToLM carves the reduced-order field "rom" out of the velocity block
	// and moves it into the "lm" set, so it follows the multipliers through
	// the merges above. Unset, "rom" folds back into "v".
	ROMToLM bool
}

// Split builds the global index set of every field. All fields must list the
// same number of ranks.
func Split(fields []Field, opt Options) ([]IndexSet, error) {
	if opt.LMToPressure && opt.LMToVelocity {
		return nil, ErrExclusiveMerge
	}
	if len(fields) == 0 {
		return nil, errors.New("coupling: no fields")
	}
	ranks := len(fields[0].Sizes)
	for _, f := range fields {
		if len(f.Sizes) != ranks {
			return nil, fmt.Errorf("coupling: field %s lists %d ranks, want %d", f.Name, len(f.Sizes), ranks)
		}
	}

	sets := make([]IndexSet, len(fields))
	for i, f := range fields {
		sets[i].Name = f.Name
	}
	off := 0
	for r := 0; r < ranks; r++ {
		for i, f := range fields {
			for k := 0; k < f.Sizes[r]; k++ {
				sets[i].Idx = append(sets[i].Idx, off)
				off++
			}
		}
	}

	sets, err := applyMerges(sets, opt)
	if err != nil {
		return nil, err
	}
	if err := Validate(sets, off); err != nil {
		return nil, err
	}
	return sets, nil
}

func applyMerges(sets []IndexSet, opt Options) ([]IndexSet, error) {
	byName := func(name string) int {
		for i := range sets {
			if sets[i].Name == name {
				return i
			}
		}
		return -1
	}
	merge := func(src, dst string) error {
		si, di := byName(src), byName(dst)
		if si < 0 {
			return nil
		}
		if di < 0 {
			return fmt.Errorf("coupling: merge target %q not present", dst)
		}
		sets[di].Idx = append(sets[di].Idx, sets[si].Idx...)
		sort.Ints(sets[di].Idx)
		sets = append(sets[:si], sets[si+1:]...)
		return nil
	}

	// rom moves first, so a carved-out rom travels with lm through the
	// multiplier merges
	if opt.ROMToLM {
		if err := merge("rom", "lm"); err != nil {
			return nil, err
		}
	} else {
		if err := merge("rom", "v"); err != nil {
			return nil, err
		}
	}
	if opt.LMToPressure {
		if err := merge("lm", "p"); err != nil {
			return nil, err
		}
	}
	if opt.LMToVelocity {
		if err := merge("lm", "v"); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// Validate checks that the sets partition [0, total) with neither gaps nor
// overlaps.
func Validate(sets []IndexSet, total int) error {
	seen := make([]bool, total)
	n := 0
	for _, s := range sets {
		for _, i := range s.Idx {
			if i < 0 || i >= total {
				return fmt.Errorf("%w: index %d of set %s out of range", ErrNotTiling, i, s.Name)
			}
			if seen[i] {
				return fmt.Errorf("%w: index %d claimed twice", ErrNotTiling, i)
			}
			seen[i] = true
			n++
		}
	}
	if n != total {
		return fmt.Errorf("%w: %d of %d indices covered", ErrNotTiling, n, total)
	}
	return nil
}
