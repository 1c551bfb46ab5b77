// Package valve provides the parametrized pressure-flow relations of the
// heart valves as symbolic expression fragments. Each law returns the flow
// expression q(p, popen) together with a linearization helper used to scale
// the valve residual rows to a consistent sign and magnitude.
package valve

import (
	"errors"
	"fmt"

	"github.com/jijoderick/ambit/internal/expr"
)

// ErrUnknownLaw is returned for an unrecognized law token.
var ErrUnknownLaw = errors.New("valve: unknown valve law")

// Law selects one of the supported pressure-flow relations.
type Law int

const (
	// PwLinPressure switches hard between Rmax (closed) and Rmin (open) at
	// the opening pressure.
	PwLinPressure Law = iota
	// PwLinTime switches hard inside an open/close time window, with
	// wrap-around when the close time precedes the open time.
	PwLinTime
	// SmoothPressureResistance blends the resistance continuously with a
	// tanh of the pressure difference.
	SmoothPressureResistance
	// SmoothPressureMomentum interpolates the q(p) curve by a cubic Hermite
	// spline inside a narrow pressure window around the opening pressure.
	SmoothPressureMomentum
	// PressureRegurg uses a square-root leak law below the opening pressure
	// and the linear resistive law above it.
	PressureRegurg
)

var lawTokens = map[string]Law{
	"pwlin_pres":              PwLinPressure,
	"pwlin_time":              PwLinTime,
	"smooth_pres_resistance":  SmoothPressureResistance,
	"smooth_pres_momentum":    SmoothPressureMomentum,
	"pw_pres_regurg":          PressureRegurg,
}

// ParseLaw resolves a configuration token into a Law.
func ParseLaw(token string) (Law, error) {
	l, ok := lawTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownLaw, token)
	}
	return l, nil
}

// Params carries the law selector and its law-specific parameters.
type Params struct {
	Law Law
	// Eps is the smoothing window width of the smooth laws.
	Eps float64
	// LeakC and LeakA parametrize the regurgitant leak q = C*A*sqrt(dp).
	LeakC, LeakA float64
	// TOpen and TClose gate the time-switched law.
	TOpen, TClose float64
}

// Flow builds the symbolic flow expression through a valve from the
// downstream pressure p and the opening pressure popen, and the reciprocal
// derivative of the flow with respect to popen (the linearization helper).
// When popen is structurally zero the helper is unity.
func Flow(p, popen expr.Expr, rmin, rmax float64, prm Params) (expr.Expr, expr.Expr, error) {
	dp := expr.SubOf(popen, p)

	var q expr.Expr
	switch prm.Law {
	case PwLinPressure:
		q = expr.Piecewise{
			Cases: []expr.Case{
				{Then: expr.DivOf(dp, expr.C(rmax)), When: expr.Less{A: p, B: popen}},
				{Then: expr.DivOf(dp, expr.C(rmin)), When: expr.GreaterEq{A: p, B: popen}},
			},
		}

	case PwLinTime:
		open := expr.DivOf(dp, expr.C(rmin))
		closed := expr.DivOf(dp, expr.C(rmax))
		var inWindow expr.Cond
		if prm.TOpen > prm.TClose {
			// window wraps around the cycle boundary
			inWindow = expr.Or{
				A: expr.GreaterEq{A: expr.T(), B: expr.C(prm.TOpen)},
				B: expr.Less{A: expr.T(), B: expr.C(prm.TClose)},
			}
		} else {
			inWindow = expr.And{
				A: expr.GreaterEq{A: expr.T(), B: expr.C(prm.TOpen)},
				B: expr.Less{A: expr.T(), B: expr.C(prm.TClose)},
			}
		}
		q = expr.Piecewise{
			Cases:   []expr.Case{{Then: open, When: inWindow}},
			Default: closed,
		}

	case SmoothPressureResistance:
		// R = (Rmax-Rmin)/2 * (tanh(dp/eps) + 1) + Rmin
		r := expr.AddOf(
			expr.Scale(0.5*(rmax-rmin),
				expr.AddOf(expr.TanhOf(expr.DivOf(dp, expr.C(prm.Eps))), expr.C(1))),
			expr.C(rmin),
		)
		q = expr.DivOf(dp, r)

	case SmoothPressureMomentum:
		q = smoothMomentum(p, popen, rmin, rmax, prm.Eps)

	case PressureRegurg:
		q = expr.Piecewise{
			Cases: []expr.Case{
				{Then: expr.Scale(prm.LeakC*prm.LeakA, expr.SqrtOf(dp)), When: expr.Less{A: p, B: popen}},
				{Then: expr.DivOf(dp, expr.C(rmin)), When: expr.GreaterEq{A: p, B: popen}},
			},
		}

	default:
		return nil, nil, fmt.Errorf("%w (selector %d)", ErrUnknownLaw, prm.Law)
	}

	q = expr.Simplify(q)
	helper, err := linearizationHelper(q, popen)
	if err != nil {
		return nil, nil, err
	}
	return q, helper, nil
}

// smoothMomentum interpolates between the closed-branch and open-branch
// linear laws by a cubic Hermite spline on the window
// [popen-eps/2, popen+eps/2].
func smoothMomentum(p, popen expr.Expr, rmin, rmax, eps float64) expr.Expr {
	lo := expr.SubOf(popen, expr.C(eps/2))
	hi := expr.AddOf(popen, expr.C(eps/2))

	// endpoint flows and slopes of the two linear branches
	q0 := -eps / 2 / rmax
	q1 := eps / 2 / rmin
	m0 := 1 / rmax
	m1 := 1 / rmin

	s := expr.DivOf(expr.SubOf(p, lo), expr.C(eps))
	s2 := expr.PowOf(s, 2)
	s3 := expr.PowOf(s, 3)

	h00 := expr.AddOf(expr.SubOf(expr.Scale(2, s3), expr.Scale(3, s2)), expr.C(1))
	h01 := expr.AddOf(expr.Scale(-2, s3), expr.Scale(3, s2))
	h10 := expr.AddOf(expr.SubOf(s3, expr.Scale(2, s2)), s)
	h11 := expr.SubOf(s3, s2)

	spline := expr.AddOf(
		expr.Scale(q0, h00),
		expr.Scale(m0*eps, h10),
		expr.Scale(q1, h01),
		expr.Scale(m1*eps, h11),
	)

	dp := expr.SubOf(popen, p)
	return expr.Piecewise{
		Cases: []expr.Case{
			{Then: expr.DivOf(dp, expr.C(rmax)), When: expr.Less{A: p, B: lo}},
			{Then: expr.NegOf(spline), When: expr.And{
				A: expr.GreaterEq{A: p, B: lo},
				B: expr.Less{A: p, B: hi},
			}},
			{Then: expr.DivOf(dp, expr.C(rmin)), When: expr.GreaterEq{A: p, B: hi}},
		},
	}
}

// linearizationHelper builds 1/(dq/dpopen). The opening pressure is a state
// reference, a coupling input of a pressure-coupled chamber, or structurally
// zero; anything else is a wiring defect.
func linearizationHelper(q, popen expr.Expr) (expr.Expr, error) {
	var d expr.Expr
	switch s := popen.(type) {
	case expr.State:
		d = expr.Diff(q, s.I)
	case expr.Coupling:
		d = expr.DiffCoupling(q, s.I)
	case expr.Const:
		if s.Val == 0 {
			return expr.C(1), nil
		}
		return nil, errors.New("valve: opening pressure must be a symbol or zero")
	default:
		return nil, errors.New("valve: opening pressure must be a symbol or zero")
	}
	if expr.IsZero(d) {
		return nil, errors.New("valve: flow does not depend on opening pressure")
	}
	return expr.DivOf(expr.C(1), d), nil
}
