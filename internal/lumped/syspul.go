package lumped

import (
	"fmt"

	"github.com/jijoderick/ambit/internal/chamber"
	"github.com/jijoderick/ambit/internal/expr"
	"github.com/jijoderick/ambit/internal/valve"
)

// SyspulParams holds the physical parameters of the closed-loop systemic and
// pulmonary circulation model. Units follow the kPa/mm/s system.
type SyspulParams struct {
	// valve resistances, open (min) and closed (max)
	RVinLMin  float64 `yaml:"R_vin_l_min"`
	RVinLMax  float64 `yaml:"R_vin_l_max"`
	RVoutLMin float64 `yaml:"R_vout_l_min"`
	RVoutLMax float64 `yaml:"R_vout_l_max"`
	RVinRMin  float64 `yaml:"R_vin_r_min"`
	RVinRMax  float64 `yaml:"R_vin_r_max"`
	RVoutRMin float64 `yaml:"R_vout_r_min"`
	RVoutRMax float64 `yaml:"R_vout_r_max"`

	// systemic arterial and venous compartments
	CArSys  float64 `yaml:"C_ar_sys"`
	RArSys  float64 `yaml:"R_ar_sys"`
	LArSys  float64 `yaml:"L_ar_sys"`
	CVenSys float64 `yaml:"C_ven_sys"`
	RVenSys float64 `yaml:"R_ven_sys"`
	LVenSys float64 `yaml:"L_ven_sys"`

	// pulmonary arterial and venous compartments
	CArPul  float64 `yaml:"C_ar_pul"`
	RArPul  float64 `yaml:"R_ar_pul"`
	LArPul  float64 `yaml:"L_ar_pul"`
	CVenPul float64 `yaml:"C_ven_pul"`
	RVenPul float64 `yaml:"R_ven_pul"`
	LVenPul float64 `yaml:"L_ven_pul"`

	// time-varying elastance bounds of the 0D chambers
	EVMaxL  float64 `yaml:"E_v_max_l"`
	EVMinL  float64 `yaml:"E_v_min_l"`
	EVMaxR  float64 `yaml:"E_v_max_r"`
	EVMinR  float64 `yaml:"E_v_min_r"`
	EAtMaxL float64 `yaml:"E_at_max_l"`
	EAtMinL float64 `yaml:"E_at_min_l"`
	EAtMaxR float64 `yaml:"E_at_max_r"`
	EAtMinR float64 `yaml:"E_at_min_r"`

	// unstressed volumes
	VVLu     float64 `yaml:"V_v_l_u"`
	VVRu     float64 `yaml:"V_v_r_u"`
	VAtLu    float64 `yaml:"V_at_l_u"`
	VAtRu    float64 `yaml:"V_at_r_u"`
	VArSysU  float64 `yaml:"V_ar_sys_u"`
	VVenSysU float64 `yaml:"V_ven_sys_u"`
	VArPulU  float64 `yaml:"V_ar_pul_u"`
	VVenPulU float64 `yaml:"V_ven_pul_u"`

	// cycle length and valve switching times
	TCycl float64 `yaml:"T_cycl"`
	TEs   float64 `yaml:"t_es"`
	TEd   float64 `yaml:"t_ed"`
}

// DefaultSyspulParams returns a physiologically plausible parameter set.
func DefaultSyspulParams() SyspulParams {
	return SyspulParams{
		RVinLMin: 1.0e-6, RVinLMax: 1.0e1,
		RVoutLMin: 1.0e-6, RVoutLMax: 1.0e1,
		RVinRMin: 1.0e-6, RVinRMax: 1.0e1,
		RVoutRMin: 1.0e-6, RVoutRMax: 1.0e1,

		CArSys: 1.8e4, RArSys: 1.2e-4, LArSys: 6.67e-7,
		CVenSys: 4.1e5, RVenSys: 2.4e-5, LVenSys: 0,
		CArPul: 2.0e4, RArPul: 1.5e-5, LArPul: 0,
		CVenPul: 5.0e4, RVenPul: 1.5e-5, LVenPul: 0,

		EVMaxL: 3.0e-2, EVMinL: 2.5e-4,
		EVMaxR: 2.0e-2, EVMinR: 1.75e-4,
		EAtMaxL: 2.9e-3, EAtMinL: 1.33e-3,
		EAtMaxR: 1.8e-3, EAtMinR: 1.02e-3,

		TCycl: 1.0, TEs: 0.53, TEd: 0.2,
	}
}

// SyspulChamber selects a chamber's model variant and, for 3D coupled
// chambers, the exchanged quantities.
type SyspulChamber struct {
	Spec chamber.Spec
	// CQ is the coupling quantity handed to an attached 3D model.
	CQ chamber.Quantity
	// VQ is the quantity kept as the chamber's state unknown under pressure
	// coupling.
	VQ chamber.Quantity
}

// SyspulOptions configures the model topology.
type SyspulOptions struct {
	// Chambers configures lv, rv, la, ra and the aortic root. A missing
	// entry defaults to a rigid aortic root and elastance heart chambers.
	Chambers map[chamber.Key]SyspulChamber
	// Valves overrides the law parameters per valve (keys mv, av, tv, pv).
	// The default is the hard pressure switch.
	Valves map[string]valve.Params
	// Coronary marks a configured coronary sub-model.
	Coronary bool
}

// state vector layout before any coupling-induced renames
var syspulNames = []string{
	"q_vin_l", "p_at_l", "q_vout_l", "p_v_l",
	"p_ar_sys", "q_ar_sys", "p_ven_sys", "q_ven_sys",
	"q_vin_r", "p_at_r", "q_vout_r", "p_v_r",
	"p_ar_pul", "q_ar_pul", "p_ven_pul", "q_ven_pul",
}

var syspulVindex = map[chamber.Key]int{
	chamber.LV: 3, chamber.RV: 11, chamber.LA: 1, chamber.RA: 9, chamber.AO: 4,
}

// NewSyspul generates the closed-loop model. prm is retained by the model so
// perturbations can modify it and trigger a regeneration.
func NewSyspul(prm *SyspulParams, opt SyspulOptions) (*Model, error) {
	build := func(m *Model) error { return buildSyspul(m, prm, opt) }
	perturb := func(kind string, factor float64) error {
		switch kind {
		case "mr": // mitral regurgitation: the closed valve leaks
			prm.RVinLMax *= factor
		case "ms": // mitral stenosis: the open valve obstructs
			prm.RVinLMin *= factor
		case "ar": // aortic regurgitation
			prm.RVoutLMax *= factor
		case "as": // aortic stenosis
			prm.RVoutLMin *= factor
		default:
			return fmt.Errorf("%w %q", ErrUnknownPerturbation, kind)
		}
		return nil
	}
	return newModel(build, perturb)
}

func buildSyspul(m *Model, prm *SyspulParams, opt SyspulOptions) error {
	m.NumDof = 16
	m.TCycl = prm.TCycl

	names := make([]string, len(syspulNames))
	copy(names, syspulNames)

	chcfg := func(ch chamber.Key) SyspulChamber {
		if c, ok := opt.Chambers[ch]; ok {
			return c
		}
		if ch == chamber.AO {
			return SyspulChamber{Spec: chamber.Spec{Variant: chamber.Rigid}}
		}
		return SyspulChamber{Spec: chamber.Spec{Variant: chamber.Elastance}}
	}

	// resolve the interface policy per chamber and apply the renames
	ifcs := make(map[chamber.Key]chamber.Interface, len(chamber.Keys))
	for _, ch := range chamber.Keys {
		cc := chcfg(ch)
		ifc, err := chamber.Resolve(ch, cc.Spec, cc.CQ, cc.VQ, syspulVindex[ch], opt.Coronary)
		if err != nil {
			return err
		}
		if ifc.Shift == 1 && ch == chamber.AO {
			return fmt.Errorf("lumped: pressure coupling of the aortic root needs a 3D fluid model")
		}
		ifcs[ch] = ifc
		vi := syspulVindex[ch]
		if ifc.VarName != "" {
			if ifc.Shift == 1 {
				// the displaced outflow flux takes over the pressure slot
				names[vi] = names[vi-1]
			}
			names[vi-ifc.Shift] = ifc.VarName
		}
	}
	m.Vars = names

	// symbol allocation in canonical chamber order
	ci, fi := 0, 0
	alloc := func() expr.Expr { e := expr.Cpl(ci); ci++; return e }
	allocFnc := func() expr.Expr { e := expr.F(fi); fi++; return e }

	type wired struct {
		slots *chamber.Slots
		ifc   chamber.Interface
	}
	chs := make(map[chamber.Key]*wired, len(chamber.Keys))
	var drives []func(y float64) float64

	for _, ch := range chamber.Keys {
		cc := chcfg(ch)
		ifc := ifcs[ch]
		vi := syspulVindex[ch]

		nIn, nOut := 1, 1
		if cc.Spec.Variant == chamber.Fluid3D {
			nIn = max(cc.Spec.NumInflows, 1)
			nOut = max(cc.Spec.NumOutflows, 1)
		}
		slots := &chamber.Slots{Pi: make([]expr.Expr, nIn), Po: make([]expr.Expr, nOut)}
		if cc.CQ == chamber.Pressure && (cc.Spec.Variant == chamber.Solid3D || cc.Spec.Variant == chamber.Fluid3D) {
			slots.VQ = expr.X(vi - ifc.Shift)
		} else {
			slots.Pi[0] = expr.X(vi)
		}

		cplStart := ci
		w, err := chamber.Wire(ch, cc.Spec, cc.CQ, slots, syspulVu(prm, ch), alloc, allocFnc, opt.Coronary)
		if err != nil {
			return err
		}
		if ci-cplStart != len(ifc.CouplingNames) {
			return fmt.Errorf("lumped: chamber %s allocated %d coupling scalars, resolved %d names",
				ch, ci-cplStart, len(ifc.CouplingNames))
		}
		m.CouplingNames = append(m.CouplingNames, ifc.CouplingNames...)

		if ifc.Coupled {
			m.VarIDs = append(m.VarIDs, ifc.VarID)
			m.CplIDs = append(m.CplIDs, cplStart)
		}
		if cc.Spec.Variant == chamber.Prescribed {
			if m.Prescribed == nil {
				m.Prescribed = make(map[string]int)
			}
			m.Prescribed[ifc.CouplingNames[0]] = cplStart
		}
		if w.Fnc != nil {
			m.FncChambers = append(m.FncChambers, ch)
			drives = append(drives, syspulDrive(prm, ch, cc.Spec.Variant))
		}
		chs[ch] = &wired{slots: slots, ifc: ifc}
	}
	m.NumFnc = fi
	if fi > 0 {
		dr := drives
		m.ChamberState = func(y, fnc []float64) {
			for i := range dr {
				fnc[i] = dr[i](y[i])
			}
		}
	} else {
		m.ChamberState = nil
	}

	// flux unknowns, possibly displaced into the pressure slot
	fluxIdx := func(ch chamber.Key) int {
		if chs[ch].ifc.Shift == 1 {
			return syspulVindex[ch]
		}
		return syspulVindex[ch] - 1
	}
	qVinL := expr.X(fluxIdx(chamber.LA))
	qVoutL := expr.X(fluxIdx(chamber.LV))
	qVinR := expr.X(fluxIdx(chamber.RA))
	qVoutR := expr.X(fluxIdx(chamber.RV))
	qArSys, pVenSys, qVenSys := expr.X(5), expr.X(6), expr.X(7)
	pArPul, qArPul, pVenPul, qVenPul := expr.X(12), expr.X(13), expr.X(14), expr.X(15)

	aoPressureCoupled := chcfg(chamber.AO).CQ == chamber.Pressure &&
		(chcfg(chamber.AO).Spec.Variant == chamber.Solid3D || chcfg(chamber.AO).Spec.Variant == chamber.Fluid3D)

	// valve flows and linearization helpers
	vprm := func(key string, topen, tclose float64) valve.Params {
		p := opt.Valves[key]
		p.TOpen, p.TClose = topen, tclose
		if p.Eps == 0 {
			p.Eps = 1e-4
		}
		return p
	}
	type vflow struct{ q, helper expr.Expr }
	mkValve := func(key string, p, popen expr.Expr, rmin, rmax, topen, tclose float64) (vflow, error) {
		q, h, err := valve.Flow(p, popen, rmin, rmax, vprm(key, topen, tclose))
		if err != nil {
			return vflow{}, fmt.Errorf("lumped: valve %s: %w", key, err)
		}
		return vflow{q: q, helper: h}, nil
	}

	mv, err := mkValve("mv", chs[chamber.LA].slots.Po[0], chs[chamber.LV].slots.Pi[0],
		prm.RVinLMin, prm.RVinLMax, prm.TEs, prm.TEd)
	if err != nil {
		return err
	}
	av, err := mkValve("av", chs[chamber.LV].slots.Po[0], chs[chamber.AO].slots.Pi[0],
		prm.RVoutLMin, prm.RVoutLMax, prm.TEd, prm.TEs)
	if err != nil {
		return err
	}
	tv, err := mkValve("tv", chs[chamber.RA].slots.Po[0], chs[chamber.RV].slots.Pi[0],
		prm.RVinRMin, prm.RVinRMax, prm.TEs, prm.TEd)
	if err != nil {
		return err
	}
	pv, err := mkValve("pv", chs[chamber.RV].slots.Po[0], pArPul,
		prm.RVoutRMin, prm.RVoutRMax, prm.TEd, prm.TEs)
	if err != nil {
		return err
	}

	f := make([]expr.Expr, m.NumDof)
	df := make([]expr.Expr, m.NumDof)
	aux := make([]expr.Expr, m.NumDof)
	m.AuxMap = make(map[string]int)

	// chamber balances: switch_V selects volume (derivative) or flux coupling
	balance := func(ch chamber.Key, qIn, qOut expr.Expr) {
		w := chs[ch]
		row := syspulVindex[ch] - w.ifc.Shift
		sw := float64(w.ifc.SwitchV)
		df[row] = expr.Scale(sw, w.slots.VQ)
		f[row] = expr.AddOf(expr.Scale(1-sw, w.slots.VQ), expr.SubOf(qOut, qIn))
		if w.ifc.SwitchV == 1 {
			aux[row] = w.slots.VQ
			m.AuxMap["V_"+ch.OutName()] = row
		}
	}
	balance(chamber.LV, qVinL, qVoutL)
	balance(chamber.RV, qVinR, qVoutR)
	balance(chamber.LA, qVenPul, qVinL)
	balance(chamber.RA, qVenSys, qVinR)

	// aortic root balance carries the systemic arterial compliance
	{
		w := chs[chamber.AO]
		row := syspulVindex[chamber.AO]
		sw := float64(w.ifc.SwitchV)
		df[row] = expr.Scale(sw, w.slots.VQ)
		f[row] = expr.AddOf(expr.Scale(1-sw, w.slots.VQ), expr.SubOf(qArSys, qVoutL))
		if !aoPressureCoupled {
			pArSys := expr.X(4)
			df[row] = expr.AddOf(df[row], expr.Scale(prm.CArSys, pArSys))
			aux[row] = expr.AddOf(expr.Scale(prm.CArSys, pArSys), expr.C(prm.VArSysU),
				expr.Scale(sw, w.slots.VQ))
			m.AuxMap["V_ar_sys"] = row
		}
	}

	// valve residual rows, scaled by the linearization helper
	valveRow := func(row int, q expr.Expr, v vflow) {
		df[row] = expr.C(0)
		f[row] = expr.MulOf(expr.AddOf(q, v.q), v.helper)
	}
	valveRow(fluxIdx(chamber.LA), qVinL, mv)
	valveRow(fluxIdx(chamber.LV), qVoutL, av)
	valveRow(fluxIdx(chamber.RA), qVinR, tv)
	valveRow(fluxIdx(chamber.RV), qVoutR, pv)

	// systemic arterial momentum, downstream of the aortic root
	df[5] = expr.Scale(prm.LArSys, qArSys)
	f[5] = expr.AddOf(expr.Scale(prm.RArSys, qArSys),
		expr.NegOf(chs[chamber.AO].slots.Po[0]), pVenSys)

	// systemic venous compartment and return to the right atrium
	df[6] = expr.Scale(prm.CVenSys, pVenSys)
	f[6] = expr.SubOf(qVenSys, qArSys)
	aux[6] = expr.AddOf(expr.Scale(prm.CVenSys, pVenSys), expr.C(prm.VVenSysU))
	m.AuxMap["V_ven_sys"] = 6

	df[7] = expr.Scale(prm.LVenSys, qVenSys)
	f[7] = expr.AddOf(expr.Scale(prm.RVenSys, qVenSys),
		expr.NegOf(pVenSys), chs[chamber.RA].slots.Pi[0])

	// pulmonary arterial compartment fed by the right ventricle
	df[12] = expr.Scale(prm.CArPul, pArPul)
	f[12] = expr.SubOf(qArPul, qVoutR)
	aux[12] = expr.AddOf(expr.Scale(prm.CArPul, pArPul), expr.C(prm.VArPulU))
	m.AuxMap["V_ar_pul"] = 12

	df[13] = expr.Scale(prm.LArPul, qArPul)
	f[13] = expr.AddOf(expr.Scale(prm.RArPul, qArPul), expr.NegOf(pArPul), pVenPul)

	// pulmonary venous compartment and return to the left atrium
	df[14] = expr.Scale(prm.CVenPul, pVenPul)
	f[14] = expr.SubOf(qVenPul, qArPul)
	aux[14] = expr.AddOf(expr.Scale(prm.CVenPul, pVenPul), expr.C(prm.VVenPulU))
	m.AuxMap["V_ven_pul"] = 14

	df[15] = expr.Scale(prm.LVenPul, qVenPul)
	f[15] = expr.AddOf(expr.Scale(prm.RVenPul, qVenPul),
		expr.NegOf(pVenPul), chs[chamber.LA].slots.Pi[0])

	m.f, m.df, m.aux = f, df, aux
	return nil
}

// syspulVu returns the unstressed volume used by an elastance chamber.
func syspulVu(prm *SyspulParams, ch chamber.Key) float64 {
	switch ch {
	case chamber.LV:
		return prm.VVLu
	case chamber.RV:
		return prm.VVRu
	case chamber.LA:
		return prm.VAtLu
	case chamber.RA:
		return prm.VAtRu
	case chamber.AO:
		return prm.VArSysU
	}
	return 0
}

// syspulDrive maps a normalized activation value to the chamber's elastance.
func syspulDrive(prm *SyspulParams, ch chamber.Key, v chamber.Variant) func(y float64) float64 {
	if v == chamber.ElastancePrescribed {
		return func(y float64) float64 { return y }
	}
	var emax, emin float64
	switch ch {
	case chamber.LV:
		emax, emin = prm.EVMaxL, prm.EVMinL
	case chamber.RV:
		emax, emin = prm.EVMaxR, prm.EVMinR
	case chamber.LA:
		emax, emin = prm.EAtMaxL, prm.EAtMinL
	case chamber.RA:
		emax, emin = prm.EAtMaxR, prm.EAtMinR
	case chamber.AO:
		emax, emin = prm.EVMaxL, prm.EVMinL
	}
	return func(y float64) float64 { return (emax-emin)*y + emin }
}
