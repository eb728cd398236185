package expr

import (
	"math/big"
	"sort"
)

// floorDivMod implements Python-style floor division: the quotient
// rounds toward negative infinity and the remainder takes the sign of
// the divisor. Kept package-local to match interp.floorDivMod's
// semantics exactly without introducing a cross-package dependency
// between interp and expr, neither of which otherwise needs the other.
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(a, b, r)
	if r.Sign() != 0 && (r.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		r.Add(r, b)
	}
	return q, r
}

// Build constructs the canonical form of op(args...) for a binary
// operator (Phi is built with BuildPhi instead, since its arity and
// per-argument labels don't fit the binary shape).
func Build(op Op, bits uint, args ...*Expr) *Expr {
	if bits == 0 {
		bits = DefaultBits
	}
	if len(args) != 2 {
		panic("expr: Build requires exactly two arguments for a binary operator")
	}
	a, b := args[0], args[1]
	switch op {
	case OpAdd:
		return reduceAdd(a, b, bits)
	case OpSub:
		return reduceAdd(a, rawMul(IntN(-1, bits), b, bits), bits)
	case OpMul:
		return reduceMul(a, b, bits)
	case OpDiv:
		return reduceDiv(a, b, bits)
	case OpMod:
		return reduceMod(a, b, bits)
	case OpAnd, OpOr, OpXor:
		return reduceBitwise(op, a, b, bits)
	case OpLShift, OpRShift:
		return reduceShift(op, a, b, bits)
	case OpEq, OpNeq, OpLt, OpLeq:
		return reduceCompare(op, a, b, bits)
	default:
		panic("expr: unsupported binary operator")
	}
}

// BuildPhi constructs the canonical form of a phi over (value, label)
// pairs: identical values on every incoming edge collapse to that
// value, and arguments canonicalize by sorting on predecessor label.
func BuildPhi(values []*Expr, labels []string, bits uint) *Expr {
	if bits == 0 {
		bits = DefaultBits
	}
	type pair struct {
		v *Expr
		l string
	}
	pairs := make([]pair, len(values))
	for i := range values {
		pairs[i] = pair{values[i], labels[i]}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].l < pairs[j-1].l; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}

	allEqual := true
	for i := 1; i < len(pairs); i++ {
		if !pairs[i].v.Equal(pairs[0].v) {
			allEqual = false
			break
		}
	}
	if allEqual && len(pairs) > 0 {
		return pairs[0].v
	}

	outV := make([]*Expr, len(pairs))
	outL := make([]string, len(pairs))
	for i, p := range pairs {
		outV[i] = p.v
		outL[i] = p.l
	}
	return &Expr{Kind: KindOp, Op: OpPhi, Args: outV, PhiLabels: outL, bits: bits}
}

func rawOp(op Op, bits uint, args ...*Expr) *Expr {
	return &Expr{Kind: KindOp, Op: op, Args: args, bits: bits}
}

func rawMul(a, b *Expr, bits uint) *Expr { return rawOp(OpMul, bits, a, b) }

// termCoeff splits e into a (coefficient, term) pair: c*x recognises
// x as the term and c as its multiplier; anything else has an
// implicit coefficient of 1.
func termCoeff(e *Expr) (*big.Int, *Expr) {
	if e.Kind == KindOp && e.Op == OpMul && len(e.Args) == 2 {
		if e.Args[0].IsConst() {
			return e.Args[0].IntVal, e.Args[1]
		}
		if e.Args[1].IsConst() {
			return e.Args[1].IntVal, e.Args[0]
		}
	}
	return big.NewInt(1), e
}

func flattenAdd(e *Expr) []*Expr {
	if e.Kind == KindOp && e.Op == OpAdd {
		return append(flattenAdd(e.Args[0]), flattenAdd(e.Args[1])...)
	}
	return []*Expr{e}
}

func scaleTerm(coeff *big.Int, term *Expr, bits uint) *Expr {
	if coeff.Cmp(big.NewInt(1)) == 0 {
		return term
	}
	return reduceMul(Int(coeff, bits), term, bits)
}

func chainAdd(terms []*Expr, bits uint) *Expr {
	sortExprs(terms)
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = rawOp(OpAdd, bits, acc, t)
	}
	return acc
}

func reduceAdd(a, b *Expr, bits uint) *Expr {
	flat := append(flattenAdd(a), flattenAdd(b)...)

	constSum := big.NewInt(0)
	type entry struct {
		coeff *big.Int
		term  *Expr
	}
	var order []string
	byKey := make(map[string]*entry)

	for _, t := range flat {
		if t.IsConst() {
			constSum.Add(constSum, t.IntVal)
			continue
		}
		c, term := termCoeff(t)
		key := term.Polish()
		if e, ok := byKey[key]; ok {
			e.coeff.Add(e.coeff, c)
		} else {
			byKey[key] = &entry{coeff: new(big.Int).Set(c), term: term}
			order = append(order, key)
		}
	}

	var terms []*Expr
	for _, key := range order {
		e := byKey[key]
		if e.coeff.Sign() == 0 {
			continue
		}
		terms = append(terms, scaleTerm(e.coeff, e.term, bits))
	}
	constSum = wrap(constSum, bits)
	if constSum.Sign() != 0 || len(terms) == 0 {
		terms = append(terms, Int(constSum, bits))
	}
	if len(terms) == 1 {
		return terms[0]
	}
	return chainAdd(terms, bits)
}

func flattenMul(e *Expr) []*Expr {
	if e.Kind == KindOp && e.Op == OpMul {
		return append(flattenMul(e.Args[0]), flattenMul(e.Args[1])...)
	}
	return []*Expr{e}
}

func reduceMul(a, b *Expr, bits uint) *Expr {
	if a.IsConst() && b.Kind == KindOp && b.Op == OpAdd {
		return reduceAdd(reduceMul(a, b.Args[0], bits), reduceMul(a, b.Args[1], bits), bits)
	}
	if b.IsConst() && a.Kind == KindOp && a.Op == OpAdd {
		return reduceAdd(reduceMul(b, a.Args[0], bits), reduceMul(b, a.Args[1], bits), bits)
	}

	flat := append(flattenMul(a), flattenMul(b)...)
	constProd := big.NewInt(1)
	var factors []*Expr
	for _, f := range flat {
		if f.IsConst() {
			constProd.Mul(constProd, f.IntVal)
			continue
		}
		factors = append(factors, f)
	}
	constProd = wrap(constProd, bits)
	if constProd.Sign() == 0 {
		return Int(big.NewInt(0), bits)
	}
	sortExprs(factors)

	var product *Expr
	if len(factors) == 0 {
		return Int(constProd, bits)
	}
	product = factors[0]
	for _, f := range factors[1:] {
		product = rawMul(product, f, bits)
	}
	if constProd.Cmp(big.NewInt(1)) == 0 {
		return product
	}
	return rawMul(Int(constProd, bits), product, bits)
}

func reduceDiv(a, b *Expr, bits uint) *Expr {
	if b.IsZero() {
		// Algebraic policy: division by a literal zero folds to 0.
		// The interpreter raises DivisionByZero at runtime instead;
		// this divergence is intentional (see DESIGN.md).
		return Int(big.NewInt(0), bits)
	}
	if a.IsConst() && b.IsConst() {
		q, _ := floorDivMod(a.IntVal, b.IntVal)
		return Int(q, bits)
	}
	if b.IsConst() && b.IntVal.Cmp(big.NewInt(1)) == 0 {
		return a
	}
	if b.IsConst() && b.IntVal.Cmp(big.NewInt(-1)) == 0 {
		return reduceMul(IntN(-1, bits), a, bits)
	}
	if a.IsZero() {
		return Int(big.NewInt(0), bits)
	}
	if a.Equal(b) {
		return Int(big.NewInt(1), bits)
	}
	return rawOp(OpDiv, bits, a, b)
}

func reduceMod(a, b *Expr, bits uint) *Expr {
	if b.IsZero() {
		return Int(big.NewInt(0), bits)
	}
	if a.IsConst() && b.IsConst() {
		_, r := floorDivMod(a.IntVal, b.IntVal)
		return Int(r, bits)
	}
	if b.IsConst() && (b.IntVal.Cmp(big.NewInt(1)) == 0 || b.IntVal.Cmp(big.NewInt(-1)) == 0) {
		return Int(big.NewInt(0), bits)
	}
	if a.IsZero() || a.Equal(b) {
		return Int(big.NewInt(0), bits)
	}
	return rawOp(OpMod, bits, a, b)
}

func flattenBitwise(op Op, e *Expr) []*Expr {
	if e.Kind == KindOp && e.Op == op {
		return append(flattenBitwise(op, e.Args[0]), flattenBitwise(op, e.Args[1])...)
	}
	return []*Expr{e}
}

func reduceBitwise(op Op, a, b *Expr, bits uint) *Expr {
	flat := append(flattenBitwise(op, a), flattenBitwise(op, b)...)
	acc := identityFor(op)
	var nonConst []*Expr
	for _, f := range flat {
		if f.IsConst() {
			acc = applyBitwiseConst(op, acc, f.IntVal, bits)
			continue
		}
		nonConst = append(nonConst, f)
	}
	sortExprs(nonConst)

	var dedup []*Expr
	if op == OpXor {
		// x xor x cancels regardless of how many times it repeats in
		// pairs; an odd count of occurrences survives once.
		count := make(map[string]int)
		order := make(map[string]*Expr)
		for _, f := range nonConst {
			key := f.Polish()
			count[key]++
			order[key] = f
		}
		var keys []string
		for k := range count {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if count[k]%2 != 0 {
				dedup = append(dedup, order[k])
			}
		}
	} else {
		seen := make(map[string]bool)
		for _, f := range nonConst {
			key := f.Polish()
			if !seen[key] {
				seen[key] = true
				dedup = append(dedup, f)
			}
		}
	}

	terms := dedup
	includeConst := true
	switch op {
	case OpAnd:
		if acc.Sign() == 0 {
			return Int(big.NewInt(0), bits)
		}
		includeConst = acc.Cmp(allOnes(bits)) != 0
	case OpOr, OpXor:
		includeConst = acc.Sign() != 0
	}
	if includeConst {
		terms = append(terms, Int(acc, bits))
	}
	if len(terms) == 0 {
		return Int(identityFor(op), bits)
	}
	sortExprs(terms)
	result := terms[0]
	for _, t := range terms[1:] {
		result = rawOp(op, bits, result, t)
	}
	return result
}

func identityFor(op Op) *big.Int {
	switch op {
	case OpAnd:
		return big.NewInt(-1) // all-ones under wraparound semantics
	default:
		return big.NewInt(0)
	}
}

func allOnes(bits uint) *big.Int { return big.NewInt(-1) }

func applyBitwiseConst(op Op, acc, v *big.Int, bits uint) *big.Int {
	switch op {
	case OpAnd:
		return wrap(new(big.Int).And(acc, v), bits)
	case OpOr:
		return wrap(new(big.Int).Or(acc, v), bits)
	default:
		return wrap(new(big.Int).Xor(acc, v), bits)
	}
}

func reduceShift(op Op, a, b *Expr, bits uint) *Expr {
	if b.IsConst() && b.IntVal.Sign() < 0 {
		flipped := OpRShift
		if op == OpRShift {
			flipped = OpLShift
		}
		return reduceShift(flipped, a, IntN(-b.IntVal.Int64(), bits), bits)
	}
	if b.IsZero() {
		return a
	}
	if a.IsConst() && b.IsConst() {
		n := uint(b.IntVal.Int64())
		var v *big.Int
		if op == OpLShift {
			v = new(big.Int).Lsh(a.IntVal, n)
		} else {
			v = new(big.Int).Rsh(a.IntVal, n)
		}
		return Int(v, bits)
	}
	// (a << m) << n = a << (m+n); (a >> m) >> n = a >> (m+n)
	if a.Kind == KindOp && a.Op == op && b.IsConst() && a.Args[1].IsConst() {
		return reduceShift(op, a.Args[0], Int(new(big.Int).Add(a.Args[1].IntVal, b.IntVal), bits), bits)
	}
	return rawOp(op, bits, a, b)
}

func reduceCompare(op Op, a, b *Expr, bits uint) *Expr {
	if a.Equal(b) {
		switch op {
		case OpEq, OpLeq:
			return Int(big.NewInt(1), bits)
		case OpNeq, OpLt:
			return Int(big.NewInt(0), bits)
		}
	}
	if a.IsConst() && b.IsConst() {
		var v bool
		switch op {
		case OpEq:
			v = a.IntVal.Cmp(b.IntVal) == 0
		case OpNeq:
			v = a.IntVal.Cmp(b.IntVal) != 0
		case OpLt:
			v = a.IntVal.Cmp(b.IntVal) < 0
		case OpLeq:
			v = a.IntVal.Cmp(b.IntVal) <= 0
		}
		if v {
			return Int(big.NewInt(1), bits)
		}
		return Int(big.NewInt(0), bits)
	}
	// Canonicalise to a fixed left-hand side of zero: cmp(a,b) = cmp'(0, b-a).
	diff := reduceAdd(b, rawMul(IntN(-1, bits), a, bits), bits)
	return rawOp(op, bits, Int(big.NewInt(0), bits), diff)
}
