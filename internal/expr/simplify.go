package expr

// Simplify folds constants and strips arithmetic identities. Its main job
// is to collapse the many zero products that symbolic differentiation of a
// sparse system produces, so that Jacobian sparsity is visible as literal
// zero constants.
func Simplify(e Expr) Expr {
	switch n := e.(type) {
	case Add:
		a, b := Simplify(n.A), Simplify(n.B)
		if ka, ok := a.(Const); ok {
			if kb, ok := b.(Const); ok {
				return C(ka.Val + kb.Val)
			}
			if ka.Val == 0 {
				return b
			}
		}
		if kb, ok := b.(Const); ok && kb.Val == 0 {
			return a
		}
		return Add{A: a, B: b}
	case Sub:
		a, b := Simplify(n.A), Simplify(n.B)
		if ka, ok := a.(Const); ok {
			if kb, ok := b.(Const); ok {
				return C(ka.Val - kb.Val)
			}
			if ka.Val == 0 {
				return Neg{A: b}
			}
		}
		if kb, ok := b.(Const); ok && kb.Val == 0 {
			return a
		}
		return Sub{A: a, B: b}
	case Mul:
		a, b := Simplify(n.A), Simplify(n.B)
		if ka, ok := a.(Const); ok {
			if kb, ok := b.(Const); ok {
				return C(ka.Val * kb.Val)
			}
			if ka.Val == 0 {
				return C(0)
			}
			if ka.Val == 1 {
				return b
			}
		}
		if kb, ok := b.(Const); ok {
			if kb.Val == 0 {
				return C(0)
			}
			if kb.Val == 1 {
				return a
			}
		}
		return Mul{A: a, B: b}
	case Div:
		a, b := Simplify(n.A), Simplify(n.B)
		if ka, ok := a.(Const); ok && ka.Val == 0 {
			return C(0)
		}
		if kb, ok := b.(Const); ok {
			if ka, ok := a.(Const); ok && kb.Val != 0 {
				return C(ka.Val / kb.Val)
			}
			if kb.Val == 1 {
				return a
			}
		}
		return Div{A: a, B: b}
	case Neg:
		a := Simplify(n.A)
		if ka, ok := a.(Const); ok {
			return C(-ka.Val)
		}
		if na, ok := a.(Neg); ok {
			return na.A
		}
		return Neg{A: a}
	case Pow:
		a := Simplify(n.A)
		if n.N == 0 {
			return C(1)
		}
		if n.N == 1 {
			return a
		}
		return Pow{A: a, N: n.N}
	case Tanh:
		return Tanh{A: Simplify(n.A)}
	case Sqrt:
		return Sqrt{A: Simplify(n.A)}
	case Piecewise:
		out := Piecewise{Cases: make([]Case, len(n.Cases))}
		allZero := true
		for i, cs := range n.Cases {
			s := Simplify(cs.Then)
			if !IsZero(s) {
				allZero = false
			}
			out.Cases[i] = Case{Then: s, When: cs.When}
		}
		if n.Default != nil {
			out.Default = Simplify(n.Default)
			if !IsZero(out.Default) {
				allZero = false
			}
		} else if len(n.Cases) > 0 {
			// missing default evaluates to zero, which keeps allZero valid
		}
		if allZero {
			return C(0)
		}
		return out
	default:
		return e
	}
}
