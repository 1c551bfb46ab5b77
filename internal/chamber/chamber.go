// Package chamber decides, per heart chamber, which physical quantity is the
// chamber's state unknown, which symbol is exposed as a free coupling input,
// and which names appear in the variable and output maps. The decision
// depends on the chamber's model variant and on the requested coupling
// quantity.
package chamber

import (
	"errors"
	"fmt"

	"github.com/jijoderick/ambit/internal/expr"
)

var (
	ErrUnknownVariant  = errors.New("chamber: unknown chamber model variant")
	ErrUnknownQuantity = errors.New("chamber: unknown coupling quantity")
	ErrBadCombination  = errors.New("chamber: unsupported variant/quantity combination")
)

// Key identifies one of the five circulation nodes carrying a chamber model.
type Key int

const (
	LV Key = iota
	RV
	LA
	RA
	AO
)

// Keys lists the chambers in their canonical order.
var Keys = []Key{LV, RV, LA, RA, AO}

func (k Key) String() string {
	switch k {
	case LV:
		return "lv"
	case RV:
		return "rv"
	case LA:
		return "la"
	case RA:
		return "ra"
	case AO:
		return "ao"
	}
	return "?"
}

// OutName returns the suffix used in variable and coupling names.
func (k Key) OutName() string {
	switch k {
	case LV:
		return "v_l"
	case RV:
		return "v_r"
	case LA:
		return "at_l"
	case RA:
		return "at_r"
	case AO:
		return "aort_sys"
	}
	return "?"
}

var keyTokens = map[string]Key{
	"lv": LV, "rv": RV, "la": LA, "ra": RA, "ao": AO,
}

// ParseKey resolves a configuration token into a chamber Key.
func ParseKey(token string) (Key, error) {
	k, ok := keyTokens[token]
	if !ok {
		return 0, fmt.Errorf("chamber: unknown chamber %q", token)
	}
	return k, nil
}

// Variant tags the chamber model type.
type Variant int

const (
	// Elastance is a 0D chamber with a time-varying elastance driven by a
	// normalized activation curve.
	Elastance Variant = iota
	// ElastancePrescribed is a 0D chamber whose elastance curve is supplied
	// directly.
	ElastancePrescribed
	// Rigid is a 0D chamber with zero volume change.
	Rigid
	// Prescribed is a chamber whose coupling quantity follows a time curve.
	Prescribed
	// Solid3D is driven by a 3D solid mechanics submodel.
	Solid3D
	// Fluid3D is driven by a 3D fluid mechanics submodel.
	Fluid3D
)

var variantTokens = map[string]Variant{
	"0D_elast":        Elastance,
	"0D_elast_prescr": ElastancePrescribed,
	"0D_rigid":        Rigid,
	"prescribed":      Prescribed,
	"3D_solid":        Solid3D,
	"3D_fluid":        Fluid3D,
}

// ParseVariant resolves a configuration token into a Variant.
func ParseVariant(token string) (Variant, error) {
	v, ok := variantTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownVariant, token)
	}
	return v, nil
}

// Quantity is the physical quantity exchanged across a 0D/3D interface.
type Quantity int

const (
	Volume Quantity = iota
	Flux
	Pressure
)

var quantityTokens = map[string]Quantity{
	"volume":   Volume,
	"flux":     Flux,
	"pressure": Pressure,
}

// ParseQuantity resolves a configuration token into a Quantity.
func ParseQuantity(token string) (Quantity, error) {
	q, ok := quantityTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownQuantity, token)
	}
	return q, nil
}

// Spec is the per-chamber configuration relevant to interface resolution.
type Spec struct {
	Variant     Variant
	NumInflows  int
	NumOutflows int
}

// Interface is the resolved wiring decision for one chamber.
type Interface struct {
	// SwitchV is 1 when the chamber volume enters the time-derivative
	// residual term, 0 when the chamber couples through a flux.
	SwitchV int
	// VarName overrides the chamber's primary variable name; empty keeps
	// the model default.
	VarName string
	// CouplingNames lists the coupling scalars this chamber contributes, in
	// order of allocation.
	CouplingNames []string
	// Shift is the index offset between the chamber's pressure slot and the
	// slot that holds its variable quantity under pressure coupling.
	Shift int
	// Coupled reports whether a (variable index, coupling index) pair is
	// added to the model's coupling map.
	Coupled bool
	// VarID is the state index entered into the coupling map.
	VarID int
}

// Resolve applies the variant/quantity policy table for one chamber.
// vindex is the chamber's primary variable index in the state vector, and
// coronary marks a configured coronary sub-model.
func Resolve(ch Key, sp Spec, cq, vq Quantity, vindex int, coronary bool) (Interface, error) {
	chn := ch.OutName()
	var ifc Interface

	switch sp.Variant {
	case Elastance, ElastancePrescribed:
		ifc.SwitchV = 1

	case Rigid:
		ifc.SwitchV = 0

	case Prescribed:
		switch cq {
		case Volume:
			ifc.SwitchV = 1
			ifc.CouplingNames = append(ifc.CouplingNames, "V_"+chn)
		case Flux:
			ifc.SwitchV = 0
			ifc.CouplingNames = append(ifc.CouplingNames, "Q_"+chn)
		default:
			return Interface{}, fmt.Errorf("%w: prescribed chamber %s with pressure coupling", ErrBadCombination, ch)
		}

	case Solid3D:
		switch cq {
		case Volume:
			ifc.SwitchV = 1
			ifc.VarName = "p_" + chn
			ifc.CouplingNames = append(ifc.CouplingNames, "V_"+chn)
			ifc.Coupled, ifc.VarID = true, vindex
		case Flux:
			ifc.SwitchV = 0
			ifc.VarName = "p_" + chn
			ifc.CouplingNames = append(ifc.CouplingNames, "Q_"+chn)
			ifc.Coupled, ifc.VarID = true, vindex
		case Pressure:
			switch vq {
			case Volume:
				ifc.SwitchV = 1
				ifc.VarName = "V_" + chn
			case Flux:
				ifc.SwitchV = 0
				ifc.VarName = "Q_" + chn
			default:
				return Interface{}, fmt.Errorf("%w: variable quantity must be volume or flux for %s", ErrBadCombination, ch)
			}
			ifc.CouplingNames = append(ifc.CouplingNames, "p_"+chn)
			// the pressure slot hands its index to the variable quantity
			ifc.Shift = 1
			ifc.Coupled, ifc.VarID = true, vindex-ifc.Shift
		default:
			return Interface{}, fmt.Errorf("%w for chamber %s", ErrUnknownQuantity, ch)
		}

	case Fluid3D:
		if cq != Pressure {
			return Interface{}, fmt.Errorf("%w: 3D fluid chamber %s couples via pressure only", ErrBadCombination, ch)
		}
		ifc.SwitchV = 0
		ifc.VarName = "Q_" + chn
		if ch != AO {
			ifc.Shift = 1
		}
		for m := 0; m < sp.NumInflows; m++ {
			ifc.CouplingNames = append(ifc.CouplingNames, fmt.Sprintf("p_%s_i%d", chn, m+1))
		}
		for m := 0; m < sp.NumOutflows; m++ {
			ifc.CouplingNames = append(ifc.CouplingNames, fmt.Sprintf("p_%s_o%d", chn, m+1))
		}
		// coronary sub-model with an aortic root lacking inflows: the
		// ventricular outlet pressure is supplied externally
		if sp.NumInflows == 0 && coronary && ch == AO {
			ifc.CouplingNames = append(ifc.CouplingNames, "p_v_l_o1")
		}

	default:
		return Interface{}, fmt.Errorf("%w for chamber %s", ErrUnknownVariant, ch)
	}

	return ifc, nil
}

// Slots holds the symbol slots of one chamber while the equation map is
// being generated. Pi[0] is the chamber's main pressure; the remaining Pi/Po
// entries are the distributed inflow/outflow pressures.
type Slots struct {
	VQ expr.Expr
	Pi []expr.Expr
	Po []expr.Expr
}

// Wiring is the outcome of wiring a chamber's symbols.
type Wiring struct {
	// Fnc is the driving-function symbol consumed by an elastance chamber.
	Fnc expr.Expr
	// Coronary is the externally computed outlet pressure of the coronary
	// special case, when present.
	Coronary expr.Expr
}

// Wire populates the chamber's symbol slots according to the policy table.
// alloc returns the next free coupling-scalar symbol; allocFnc the next
// driving-function symbol. Under pressure coupling the caller must have
// placed the chamber's variable-quantity state symbol in slots.VQ.
func Wire(ch Key, sp Spec, cq Quantity, slots *Slots, vu float64, alloc func() expr.Expr, allocFnc func() expr.Expr, coronary bool) (Wiring, error) {
	var w Wiring

	switch sp.Variant {
	case Elastance, ElastancePrescribed:
		w.Fnc = allocFnc()
		// V = p/E(t) + V_u
		slots.VQ = expr.AddOf(expr.DivOf(slots.Pi[0], w.Fnc), expr.C(vu))
		distributeAll(slots)

	case Rigid:
		slots.VQ = expr.C(0)
		distributeAll(slots)

	case Prescribed, Solid3D:
		switch cq {
		case Volume, Flux:
			distributeAll(slots)
			slots.VQ = alloc()
		case Pressure:
			if slots.VQ == nil {
				return Wiring{}, fmt.Errorf("chamber: %s pressure coupling needs a pre-assigned variable symbol", ch)
			}
			slots.Pi[0] = alloc()
			distributeAll(slots)
		default:
			return Wiring{}, fmt.Errorf("%w for chamber %s", ErrUnknownQuantity, ch)
		}

	case Fluid3D:
		if cq != Pressure {
			return Wiring{}, fmt.Errorf("%w: 3D fluid chamber %s couples via pressure only", ErrBadCombination, ch)
		}
		if slots.VQ == nil {
			return Wiring{}, fmt.Errorf("chamber: %s pressure coupling needs a pre-assigned variable symbol", ch)
		}
		if sp.NumInflows == 0 {
			slots.Pi[0] = expr.C(0)
		} else {
			for m := 0; m < sp.NumInflows && m < len(slots.Pi); m++ {
				slots.Pi[m] = alloc()
			}
		}
		for m := max(sp.NumInflows, 1); m < len(slots.Pi); m++ {
			slots.Pi[m] = slots.Pi[0]
		}
		if sp.NumOutflows == 0 {
			slots.Po[0] = expr.C(0)
		} else {
			for m := 0; m < sp.NumOutflows && m < len(slots.Po); m++ {
				slots.Po[m] = alloc()
			}
		}
		for m := max(sp.NumOutflows, 1); m < len(slots.Po); m++ {
			slots.Po[m] = slots.Po[0]
		}
		if sp.NumInflows == 0 && coronary && ch == AO {
			w.Coronary = alloc()
			slots.Po[0] = w.Coronary
		}

	default:
		return Wiring{}, fmt.Errorf("%w for chamber %s", ErrUnknownVariant, ch)
	}

	return w, nil
}

// distributeAll sets every distributed pressure slot to the chamber's main
// pressure.
func distributeAll(s *Slots) {
	for i := 1; i < len(s.Pi); i++ {
		s.Pi[i] = s.Pi[0]
	}
	for i := range s.Po {
		s.Po[i] = s.Pi[0]
	}
}
