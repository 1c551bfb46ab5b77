package coupling

import "fmt"

// Layout records how the 0D unknowns are distributed over the ranks of a
// coupled solve. The 0D block is small, so one rank usually owns all of it,
// but the bookkeeping stays general.
type Layout struct {
	sizes   []int
	offsets []int
	total   int
}

// NewLayout builds a layout from per-rank local sizes.
func NewLayout(sizes []int) *Layout {
	l := &Layout{sizes: append([]int(nil), sizes...)}
	l.offsets = make([]int, len(sizes))
	for r, s := range sizes {
		l.offsets[r] = l.total
		l.total += s
	}
	return l
}

// Ranks is the number of ranks in the layout.
func (l *Layout) Ranks() int { return len(l.sizes) }

// Total is the global number of unknowns.
func (l *Layout) Total() int { return l.total }

// OwnershipRange returns the half-open global index range owned by rank r.
func (l *Layout) OwnershipRange(r int) (lo, hi int) {
	return l.offsets[r], l.offsets[r] + l.sizes[r]
}

// Owner returns the rank owning global index i.
func (l *Layout) Owner(i int) (int, error) {
	for r := range l.sizes {
		lo, hi := l.OwnershipRange(r)
		if i >= lo && i < hi {
			return r, nil
		}
	}
	return 0, fmt.Errorf("coupling: index %d outside the layout", i)
}

// Gather concatenates the per-rank local vectors into the global vector.
func (l *Layout) Gather(local [][]float64) ([]float64, error) {
	if len(local) != len(l.sizes) {
		return nil, fmt.Errorf("coupling: %d local vectors for %d ranks", len(local), len(l.sizes))
	}
	out := make([]float64, 0, l.total)
	for r, v := range local {
		if len(v) != l.sizes[r] {
			return nil, fmt.Errorf("coupling: rank %d holds %d values, layout says %d", r, len(v), l.sizes[r])
		}
		out = append(out, v...)
	}
	return out, nil
}
