package expr

import "fmt"

// Diff returns the exact symbolic derivative of e with respect to state
// component j. The result is simplified, so identically-zero Jacobian
// entries come back as the zero constant.
func Diff(e Expr, j int) Expr {
	return Simplify(diffWrt(e, State{I: j}))
}

// DiffCoupling differentiates with respect to coupling scalar j (needed
// when a valve's opening pressure is a coupling input rather than a state
// unknown).
func DiffCoupling(e Expr, j int) Expr {
	return Simplify(diffWrt(e, Coupling{I: j}))
}

func diffWrt(e Expr, sym Expr) Expr {
	diff := func(e Expr) Expr { return diffWrt(e, sym) }
	switch n := e.(type) {
	case Const, Time:
		return C(0)
	case State:
		if s, ok := sym.(State); ok && n.I == s.I {
			return C(1)
		}
		return C(0)
	case Coupling:
		if s, ok := sym.(Coupling); ok && n.I == s.I {
			return C(1)
		}
		return C(0)
	case Fnc:
		return C(0)
	case Add:
		return Add{A: diff(n.A), B: diff(n.B)}
	case Sub:
		return Sub{A: diff(n.A), B: diff(n.B)}
	case Mul:
		return Add{
			A: Mul{A: diff(n.A), B: n.B},
			B: Mul{A: n.A, B: diff(n.B)},
		}
	case Div:
		// (a/b)' = a'/b - a b'/b^2
		return Sub{
			A: Div{A: diff(n.A), B: n.B},
			B: Div{A: Mul{A: n.A, B: diff(n.B)}, B: Mul{A: n.B, B: n.B}},
		}
	case Neg:
		return Neg{A: diff(n.A)}
	case Pow:
		// (a^n)' = n a^(n-1) a'
		return MulOf(C(float64(n.N)), Pow{A: n.A, N: n.N - 1}, diff(n.A))
	case Tanh:
		// tanh' = 1 - tanh^2
		return Mul{
			A: Sub{A: C(1), B: Pow{A: Tanh{A: n.A}, N: 2}},
			B: diff(n.A),
		}
	case Sqrt:
		// sqrt' = a' / (2 sqrt(a))
		return Div{A: diff(n.A), B: Scale(2, Sqrt{A: n.A})}
	case Piecewise:
		// branch-wise derivative; the guards are kept as they are
		out := Piecewise{Cases: make([]Case, len(n.Cases))}
		for i, cs := range n.Cases {
			out.Cases[i] = Case{Then: diff(cs.Then), When: cs.When}
		}
		if n.Default != nil {
			out.Default = diff(n.Default)
		}
		return out
	default:
		panic(fmt.Sprintf("expr: cannot differentiate %T", e))
	}
}
