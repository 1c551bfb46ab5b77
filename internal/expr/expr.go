// Package expr provides the symbolic expression trees the 0D circulation
// models are generated from. An expression references state components,
// coupling scalars, driving functions and time; it can be differentiated
// with respect to any state component and compiled into a plain numeric
// closure for fast repeated evaluation.
package expr

import "math"

// Func is a compiled expression. Arguments are the gathered state vector,
// the coupling scalar values, the current time and the evaluated driving
// functions.
type Func func(x, c []float64, t float64, fnc []float64) float64

// Expr is a node of a symbolic expression tree.
type Expr interface {
	// Compile converts the subtree into a numeric closure.
	Compile() Func
}

// Const is a constant scalar.
type Const struct{ Val float64 }

// State references component i of the state vector.
type State struct{ I int }

// Coupling references coupling scalar i (an input from a 3D subdomain or an
// excitation curve).
type Coupling struct{ I int }

// Fnc references driving function i (elastance/activation values evaluated
// per time step).
type Fnc struct{ I int }

// Time references the time symbol t.
type Time struct{}

// Add, Sub, Mul and Div are the binary arithmetic nodes.
type Add struct{ A, B Expr }
type Sub struct{ A, B Expr }
type Mul struct{ A, B Expr }
type Div struct{ A, B Expr }

// Neg negates its operand.
type Neg struct{ A Expr }

// Pow raises its operand to a fixed integer power (the only powers the
// circulation models need).
type Pow struct {
	A Expr
	N int
}

// Tanh and Sqrt are the transcendental nodes used by the smooth valve laws.
type Tanh struct{ A Expr }
type Sqrt struct{ A Expr }

// Piecewise evaluates the first case whose condition holds, in order. When
// no condition holds, the (optional) Default branch applies, otherwise zero.
type Piecewise struct {
	Cases   []Case
	Default Expr
}

// Case couples a branch expression to its guard.
type Case struct {
	Then Expr
	When Cond
}

// Cond is a boolean guard of a piecewise case.
type Cond interface {
	compile() func(x, c []float64, t float64, fnc []float64) bool
}

// Less holds when A < B; GreaterEq holds when A >= B.
type Less struct{ A, B Expr }
type GreaterEq struct{ A, B Expr }

// And and Or combine guards.
type And struct{ A, B Cond }
type Or struct{ A, B Cond }

// C, X, Cpl, F and T are shorthand constructors.
func C(v float64) Expr   { return Const{Val: v} }
func X(i int) Expr       { return State{I: i} }
func Cpl(i int) Expr     { return Coupling{I: i} }
func F(i int) Expr       { return Fnc{I: i} }
func T() Expr            { return Time{} }
func NegOf(a Expr) Expr  { return Neg{A: a} }
func TanhOf(a Expr) Expr { return Tanh{A: a} }
func SqrtOf(a Expr) Expr { return Sqrt{A: a} }

// AddOf folds a list of summands left to right.
func AddOf(terms ...Expr) Expr {
	e := terms[0]
	for _, u := range terms[1:] {
		e = Add{A: e, B: u}
	}
	return e
}

// MulOf folds a list of factors left to right.
func MulOf(factors ...Expr) Expr {
	e := factors[0]
	for _, u := range factors[1:] {
		e = Mul{A: e, B: u}
	}
	return e
}

func SubOf(a, b Expr) Expr    { return Sub{A: a, B: b} }
func DivOf(a, b Expr) Expr    { return Div{A: a, B: b} }
func PowOf(a Expr, n int) Expr { return Pow{A: a, N: n} }

// Scale multiplies an expression by a constant.
func Scale(k float64, a Expr) Expr { return Mul{A: Const{Val: k}, B: a} }

// IsZero reports whether an expression is structurally the zero constant
// (after simplification this captures all identically-zero entries).
func IsZero(e Expr) bool {
	k, ok := e.(Const)
	return ok && k.Val == 0
}

func (e Const) Compile() Func    { v := e.Val; return func(_, _ []float64, _ float64, _ []float64) float64 { return v } }
func (e State) Compile() Func    { i := e.I; return func(x, _ []float64, _ float64, _ []float64) float64 { return x[i] } }
func (e Coupling) Compile() Func { i := e.I; return func(_, c []float64, _ float64, _ []float64) float64 { return c[i] } }
func (e Fnc) Compile() Func      { i := e.I; return func(_, _ []float64, _ float64, fnc []float64) float64 { return fnc[i] } }
func (e Time) Compile() Func {
	return func(_, _ []float64, t float64, _ []float64) float64 { return t }
}

func (e Add) Compile() Func {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return a(x, c, t, fnc) + b(x, c, t, fnc) }
}

func (e Sub) Compile() Func {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return a(x, c, t, fnc) - b(x, c, t, fnc) }
}

func (e Mul) Compile() Func {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return a(x, c, t, fnc) * b(x, c, t, fnc) }
}

func (e Div) Compile() Func {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return a(x, c, t, fnc) / b(x, c, t, fnc) }
}

func (e Neg) Compile() Func {
	a := e.A.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return -a(x, c, t, fnc) }
}

func (e Pow) Compile() Func {
	a, n := e.A.Compile(), e.N
	return func(x, c []float64, t float64, fnc []float64) float64 {
		return math.Pow(a(x, c, t, fnc), float64(n))
	}
}

func (e Tanh) Compile() Func {
	a := e.A.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return math.Tanh(a(x, c, t, fnc)) }
}

func (e Sqrt) Compile() Func {
	a := e.A.Compile()
	return func(x, c []float64, t float64, fnc []float64) float64 { return math.Sqrt(a(x, c, t, fnc)) }
}

func (e Piecewise) Compile() Func {
	type branch struct {
		when func(x, c []float64, t float64, fnc []float64) bool
		then Func
	}
	branches := make([]branch, len(e.Cases))
	for i, cs := range e.Cases {
		branches[i] = branch{when: cs.When.compile(), then: cs.Then.Compile()}
	}
	var def Func
	if e.Default != nil {
		def = e.Default.Compile()
	}
	return func(x, c []float64, t float64, fnc []float64) float64 {
		for _, b := range branches {
			if b.when(x, c, t, fnc) {
				return b.then(x, c, t, fnc)
			}
		}
		if def != nil {
			return def(x, c, t, fnc)
		}
		return 0
	}
}

func (e Less) compile() func(x, c []float64, t float64, fnc []float64) bool {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) bool { return a(x, c, t, fnc) < b(x, c, t, fnc) }
}

func (e GreaterEq) compile() func(x, c []float64, t float64, fnc []float64) bool {
	a, b := e.A.Compile(), e.B.Compile()
	return func(x, c []float64, t float64, fnc []float64) bool { return a(x, c, t, fnc) >= b(x, c, t, fnc) }
}

func (e And) compile() func(x, c []float64, t float64, fnc []float64) bool {
	a, b := e.A.compile(), e.B.compile()
	return func(x, c []float64, t float64, fnc []float64) bool { return a(x, c, t, fnc) && b(x, c, t, fnc) }
}

func (e Or) compile() func(x, c []float64, t float64, fnc []float64) bool {
	a, b := e.A.compile(), e.B.compile()
	return func(x, c []float64, t float64, fnc []float64) bool { return a(x, c, t, fnc) || b(x, c, t, fnc) }
}

// Eval evaluates an expression directly, without caching the compiled form.
// Construction-time code paths use it; hot loops compile once instead.
func Eval(e Expr, x, c []float64, t float64, fnc []float64) float64 {
	return e.Compile()(x, c, t, fnc)
}
