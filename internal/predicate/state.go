package predicate

import (
	"math/big"

	"amigo/internal/expr"
)

// PredicatedState pairs a Comparisons conjunction with simplification
// rules that exploit it: Simplify rewrites an expression to the
// tightest known form, and AssertZero/AssertNonzero teach the
// conjunction the consequences of a branch condition.
type PredicatedState struct {
	cmp *Comparisons
}

func NewPredicatedState() *PredicatedState {
	return &PredicatedState{cmp: NewComparisons()}
}

func (s *PredicatedState) Copy() *PredicatedState {
	return &PredicatedState{cmp: s.cmp.Copy()}
}

func (s *PredicatedState) Consistent() bool { return s.cmp.IsConsistent() }

func (s *PredicatedState) Comparisons() *Comparisons { return s.cmp }

func isNegationOf(e, target *expr.Expr) bool {
	return e.Kind == expr.KindOp && e.Op == expr.OpMul && len(e.Args) == 2 &&
		e.Args[0].IsConst() && e.Args[0].IntVal.Cmp(big.NewInt(-1)) == 0
}

func negate(e *expr.Expr) *expr.Expr {
	return expr.Build(expr.OpMul, e.Bits(), expr.IntN(-1, e.Bits()), e)
}

// splitSubtraction tries to decompose a binary sum into (A, B) such
// that the sum equals A - B, recognising a negated term.
func splitSubtraction(e *expr.Expr) (*expr.Expr, *expr.Expr) {
	if e.Kind != expr.KindOp || e.Op != expr.OpAdd {
		return e, expr.Int(big.NewInt(0), e.Bits())
	}
	left, right := e.Args[0], e.Args[1]
	if isNegationOf(right, left) {
		return left, right.Args[1]
	}
	if isNegationOf(left, right) {
		return right, left.Args[1]
	}
	return e, expr.Int(big.NewInt(0), e.Bits())
}

// Simplify rewrites expr using everything currently known, and
// teaches the conjunction any consequence the expression's shape
// implies (e.g. that a divisor is nonzero, or a comparison's range is
// {0,1}).
func (s *PredicatedState) Simplify(e *expr.Expr) *expr.Expr {
	if e.Kind != expr.KindOp {
		return s.cmp.exprOrSelf(e)
	}
	args := make([]*expr.Expr, len(e.Args))
	for i, a := range e.Args {
		args[i] = s.Simplify(a)
	}
	var rebuilt *expr.Expr
	if e.Op == expr.OpPhi {
		rebuilt = expr.BuildPhi(args, e.PhiLabels, e.Bits())
	} else {
		rebuilt = expr.Build(e.Op, e.Bits(), args...)
	}
	rebuilt = s.cmp.exprOrSelf(rebuilt)
	if !s.Consistent() {
		return rebuilt
	}
	s.learnFrom(rebuilt)
	return s.cmp.exprOrSelf(rebuilt)
}

func (c *Comparisons) exprOrSelf(e *expr.Expr) *expr.Expr {
	if !c.consistent {
		return e
	}
	k := c.eqclass(e)
	if r, ok := c.rep[k]; ok {
		return r
	}
	return e
}

func zero(bits uint) *expr.Expr { return expr.Int(big.NewInt(0), bits) }
func one(bits uint) *expr.Expr  { return expr.Int(big.NewInt(1), bits) }

// learnFrom records the elementary consequences of e's operator shape
// into the conjunction, mirroring how each operator constrains its
// own sign and range given what's already known about its operands.
func (s *PredicatedState) learnFrom(e *expr.Expr) {
	if e.Kind != expr.KindOp {
		return
	}
	bits := e.Bits()
	z := zero(bits)
	switch e.Op {
	case expr.OpAdd:
		left, right := e.Args[0], e.Args[1]
		nleft := negate(left)
		if s.cmp.Leq(right, nleft) {
			s.cmp.AssertLeq(e, z)
		}
		if s.cmp.Leq(nleft, right) {
			s.cmp.AssertLeq(z, e)
		}
		if s.cmp.Leq(z, left) {
			s.cmp.AssertLeq(right, e)
		}
		if s.cmp.Leq(left, z) {
			s.cmp.AssertLeq(e, right)
		}
		if s.cmp.Leq(z, right) {
			s.cmp.AssertLeq(left, e)
		}
		if s.cmp.Leq(right, z) {
			s.cmp.AssertLeq(e, left)
		}

	case expr.OpMul:
		positives, negatives := 0, 0
		for _, a := range e.Args {
			if s.cmp.Leq(z, a) {
				positives++
			}
			if s.cmp.Leq(a, z) {
				negatives++
			}
		}
		if positives+negatives == len(e.Args) {
			if negatives%2 == 0 {
				s.cmp.AssertLeq(z, e)
			} else {
				s.cmp.AssertLeq(e, z)
			}
		}

	case expr.OpMod:
		left, right := e.Args[0], e.Args[1]
		nleft := negate(left)
		switch {
		case s.cmp.Leq(z, right):
			s.cmp.AssertLeq(z, e)
			if s.cmp.Leq(z, left) && s.cmp.Leq(left, right) {
				s.cmp.AssertEq(e, left)
			} else if s.cmp.Leq(z, nleft) && s.cmp.Leq(nleft, right) {
				s.cmp.AssertEq(e, expr.Build(expr.OpAdd, bits, right, left))
			}
		case s.cmp.Leq(right, z):
			s.cmp.AssertLeq(e, z)
			if s.cmp.Leq(left, z) && s.cmp.Leq(right, left) {
				s.cmp.AssertEq(e, left)
			} else if s.cmp.Leq(nleft, z) && s.cmp.Leq(right, nleft) {
				s.cmp.AssertEq(e, expr.Build(expr.OpAdd, bits, left, right))
			}
		}

	case expr.OpDiv:
		left, right := e.Args[0], e.Args[1]
		nleft := negate(left)
		if s.cmp.Eq(nleft, right) {
			s.cmp.AssertEq(e, expr.IntN(-1, bits))
		}
		switch {
		case s.cmp.Leq(z, right):
			if s.cmp.Leq(z, left) {
				s.cmp.AssertLeq(z, e)
				if s.cmp.Leq(left, right) {
					s.cmp.AssertEq(z, e)
				}
			} else if s.cmp.Leq(z, nleft) {
				s.cmp.AssertLeq(e, z)
				if s.cmp.Leq(nleft, right) {
					s.cmp.AssertEq(z, e)
				}
			}
		case s.cmp.Leq(right, z):
			if s.cmp.Leq(left, z) {
				s.cmp.AssertLeq(z, e)
				if s.cmp.Leq(right, left) {
					s.cmp.AssertEq(z, e)
				}
			} else if s.cmp.Leq(nleft, z) {
				s.cmp.AssertLeq(e, z)
				if s.cmp.Leq(right, nleft) {
					s.cmp.AssertEq(z, e)
				}
			}
		}

	case expr.OpAnd:
		anyPos, allNeg := false, true
		for _, a := range e.Args {
			if s.cmp.Leq(z, a) {
				anyPos = true
			}
			if !s.cmp.Leq(a, z) {
				allNeg = false
			}
		}
		if anyPos {
			s.cmp.AssertLeq(z, e)
		} else if allNeg {
			s.cmp.AssertLeq(e, z)
		}

	case expr.OpOr:
		anyNeg, allPos := false, true
		for _, a := range e.Args {
			if s.cmp.Leq(a, z) {
				anyNeg = true
			}
			if !s.cmp.Leq(z, a) {
				allPos = false
			}
		}
		if anyNeg {
			s.cmp.AssertLeq(e, z)
		} else if allPos {
			s.cmp.AssertLeq(z, e)
		}

	case expr.OpXor:
		if len(e.Args) == 2 && s.cmp.Neq(e.Args[0], e.Args[1]) {
			s.cmp.AssertNeq(e, z)
		}

	case expr.OpLShift, expr.OpRShift:
		left := e.Args[0]
		if s.cmp.Leq(z, left) {
			s.cmp.AssertLeq(z, e)
		} else if s.cmp.Leq(left, z) {
			s.cmp.AssertLeq(e, z)
		}

	case expr.OpEq, expr.OpNeq, expr.OpLt, expr.OpLeq:
		s.cmp.AssertLeq(e, one(bits))
		s.cmp.AssertLeq(z, e)
		left, right := splitSubtraction(e.Args[1])
		switch e.Op {
		case expr.OpEq:
			if s.cmp.Neq(left, right) {
				s.cmp.AssertEq(e, z)
			}
		case expr.OpNeq:
			if s.cmp.Neq(left, right) {
				s.cmp.AssertEq(e, one(bits))
			}
		case expr.OpLeq:
			if s.cmp.Leq(right, left) {
				s.cmp.AssertEq(e, one(bits))
			} else if s.cmp.Leq(left, right) && s.cmp.Neq(left, right) {
				s.cmp.AssertEq(e, z)
			}
		case expr.OpLt:
			if s.cmp.Eq(left, right) {
				s.cmp.AssertEq(e, z)
			} else if s.cmp.Neq(left, right) {
				if s.cmp.Leq(right, left) {
					s.cmp.AssertEq(e, one(bits))
				} else if s.cmp.Leq(left, right) {
					s.cmp.AssertEq(e, z)
				}
			}
		}
	}
}

// AssertNonzero teaches the conjunction the elementary consequences of
// e being nonzero, assuming e's leaf atoms carry no other known
// relationship (it will not, for instance, infer b==c from a==b-c and
// a!=0; assert (b-c)!=0 directly for that).
func (s *PredicatedState) AssertNonzero(e *expr.Expr) {
	e = s.Simplify(e)
	bits := e.Bits()
	z := zero(bits)
	switch {
	case e.IsConst():
		if e.IsZero() {
			s.cmp.consistent = false
		}
		return
	case e.Kind == expr.KindAtom:
		s.cmp.AssertNeq(e, z)
		return
	}
	switch e.Op {
	case expr.OpAdd:
		s.cmp.AssertNeq(e.Args[0], negate(e.Args[1]))
		s.cmp.AssertNeq(e.Args[1], negate(e.Args[0]))
	case expr.OpMul, expr.OpAnd:
		for _, a := range e.Args {
			s.AssertNonzero(a)
		}
	case expr.OpDiv:
		s.AssertNonzero(e.Args[0])
		s.AssertNonzero(e.Args[1])
	case expr.OpMod:
		s.AssertNonzero(expr.Build(expr.OpNeq, bits, e.Args[0], e.Args[1]))
		s.AssertNonzero(e.Args[0])
		s.AssertNonzero(e.Args[1])
		s.cmp.AssertNeq(e, z)
	case expr.OpXor:
		s.AssertNonzero(expr.Build(expr.OpNeq, bits, e.Args[0], e.Args[1]))
	case expr.OpEq:
		s.AssertZero(e.Args[1])
		s.AssertZero(negate(e.Args[1]))
	case expr.OpNeq:
		s.AssertNonzero(e.Args[1])
		s.AssertNonzero(negate(e.Args[1]))
	case expr.OpLeq, expr.OpLt:
		lhs, rhs := splitSubtraction(e.Args[1])
		s.cmp.AssertLeq(rhs, lhs)
		if e.Op == expr.OpLt {
			s.cmp.AssertNeq(lhs, rhs)
		}
		nlhs, nrhs := negate(lhs), negate(rhs)
		s.cmp.AssertLeq(nlhs, nrhs)
		if e.Op == expr.OpLt {
			s.cmp.AssertNeq(nlhs, nrhs)
		}
	default:
		s.cmp.AssertNeq(e, z)
	}
}

// AssertZero teaches the conjunction the elementary consequences of e
// being zero.
func (s *PredicatedState) AssertZero(e *expr.Expr) {
	e = s.Simplify(e)
	bits := e.Bits()
	z := zero(bits)
	switch {
	case e.IsConst():
		if !e.IsZero() {
			s.cmp.consistent = false
		}
		return
	case e.Kind == expr.KindAtom:
		s.cmp.AssertEq(e, z)
		return
	}
	switch e.Op {
	case expr.OpAdd:
		s.cmp.AssertEq(e.Args[0], negate(e.Args[1]))
		s.cmp.AssertEq(e.Args[1], negate(e.Args[0]))
	case expr.OpDiv:
		s.AssertZero(e.Args[0])
	case expr.OpOr:
		for _, a := range e.Args {
			s.AssertZero(a)
		}
	case expr.OpXor:
		s.AssertNonzero(expr.Build(expr.OpEq, bits, e.Args[0], e.Args[1]))
	case expr.OpEq:
		s.AssertNonzero(e.Args[1])
	case expr.OpNeq:
		s.AssertZero(e.Args[1])
	case expr.OpLeq, expr.OpLt:
		lhs, rhs := splitSubtraction(e.Args[1])
		s.cmp.AssertLeq(lhs, rhs)
		if e.Op == expr.OpLeq {
			s.cmp.AssertNeq(lhs, rhs)
		}
		nlhs, nrhs := negate(lhs), negate(rhs)
		s.cmp.AssertLeq(nrhs, nlhs)
		if e.Op == expr.OpLeq {
			s.cmp.AssertNeq(nlhs, nrhs)
		}
	default:
		s.cmp.AssertEq(e, z)
	}
}
