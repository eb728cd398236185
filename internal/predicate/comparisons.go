// Package predicate tracks a conjunction of ordering and (in)equality
// assertions over canonical expressions, and uses them to simplify
// further expressions under that conjunction.
package predicate

import (
	"math/big"

	"amigo/internal/expr"
)

// Comparisons is a DAG of inequality assertions over equivalence
// classes of expressions: leq[b] holds every a known to satisfy
// a <= b, and geq[a] every such b. Equality is union-find over the
// same key space.
type Comparisons struct {
	parent map[string]string
	leq    map[string]map[string]bool
	geq    map[string]map[string]bool
	neq    map[string]map[string]bool
	lo     map[string]*big.Int
	hi     map[string]*big.Int
	rep    map[string]*expr.Expr

	consistent bool
}

func NewComparisons() *Comparisons {
	return &Comparisons{
		parent:     make(map[string]string),
		leq:        make(map[string]map[string]bool),
		geq:        make(map[string]map[string]bool),
		neq:        make(map[string]map[string]bool),
		lo:         make(map[string]*big.Int),
		hi:         make(map[string]*big.Int),
		rep:        make(map[string]*expr.Expr),
		consistent: true,
	}
}

// Copy produces an independent Comparisons with identical assertions.
func (c *Comparisons) Copy() *Comparisons {
	out := NewComparisons()
	if !c.consistent {
		out.consistent = false
		return out
	}
	for k, v := range c.parent {
		out.parent[k] = v
	}
	for k, v := range c.rep {
		out.rep[k] = v
	}
	for k, m := range c.leq {
		out.leq[k] = copySet(m)
	}
	for k, m := range c.geq {
		out.geq[k] = copySet(m)
	}
	for k, m := range c.neq {
		out.neq[k] = copySet(m)
	}
	for k, v := range c.lo {
		out.lo[k] = new(big.Int).Set(v)
	}
	for k, v := range c.hi {
		out.hi[k] = new(big.Int).Set(v)
	}
	return out
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func (c *Comparisons) IsConsistent() bool { return c.consistent }

func (c *Comparisons) key(e *expr.Expr) string { return e.Polish() }

func (c *Comparisons) add(e *expr.Expr) string {
	k := c.key(e)
	if _, ok := c.parent[k]; ok {
		return k
	}
	c.parent[k] = k
	c.leq[k] = map[string]bool{k: true}
	c.geq[k] = map[string]bool{k: true}
	c.neq[k] = map[string]bool{}
	c.rep[k] = e
	if e.IsConst() {
		c.lo[k] = new(big.Int).Set(e.IntVal)
		c.hi[k] = new(big.Int).Set(e.IntVal)
	} else if isComparison(e) {
		c.lo[k] = big.NewInt(0)
		c.hi[k] = big.NewInt(1)
	}
	return k
}

func isComparison(e *expr.Expr) bool {
	if e.Kind != expr.KindOp {
		return false
	}
	switch e.Op {
	case expr.OpEq, expr.OpNeq, expr.OpLt, expr.OpLeq:
		return true
	}
	return false
}

// eqclass returns the key of the representative of e's equality class,
// applying union-find path compression.
func (c *Comparisons) eqclass(e *expr.Expr) string {
	if !c.consistent {
		return c.key(e)
	}
	k := c.add(e)
	if e.IsConst() {
		return k
	}
	head := c.parent[k]
	if top := c.parent[head]; top != head {
		top = c.eqclassKey(head)
		c.parent[head] = top
		c.parent[k] = top
		head = top
	}
	return head
}

func (c *Comparisons) eqclassKey(k string) string {
	if e, ok := c.rep[k]; ok {
		return c.eqclass(e)
	}
	return k
}

func (c *Comparisons) exprOf(k string) *expr.Expr { return c.rep[k] }

// AssertLeq records that a <= b.
func (c *Comparisons) AssertLeq(a, b *expr.Expr) {
	if !c.consistent {
		return
	}
	ka, kb := c.eqclass(a), c.eqclass(b)
	if c.leqKey(kb, ka) {
		c.mergeClasses(ka, kb)
		return
	}
	c.updateLeq(ka, kb)
}

// AssertEq records that a == b.
func (c *Comparisons) AssertEq(a, b *expr.Expr) {
	c.AssertLeq(a, b)
	c.AssertLeq(b, a)
}

// AssertNeq records that a != b.
func (c *Comparisons) AssertNeq(a, b *expr.Expr) {
	if !c.consistent {
		return
	}
	ka, kb := c.eqclass(a), c.eqclass(b)
	if ka == kb {
		c.consistent = false
		return
	}
	c.neq[ka][kb] = true
	c.neq[kb][ka] = true
	c.tightenAfterNeq(ka, kb)
}

func (c *Comparisons) tightenAfterNeq(ka, kb string) {
	if c.leqKey(ka, kb) {
		if lo, ok := c.lo[ka]; ok {
			c.updateRange(kb, new(big.Int).Add(lo, big.NewInt(1)), nil)
		}
		if hi, ok := c.hi[kb]; ok {
			c.updateRange(ka, nil, new(big.Int).Sub(hi, big.NewInt(1)))
		}
	}
	if c.leqKey(kb, ka) {
		if lo, ok := c.lo[kb]; ok {
			c.updateRange(ka, new(big.Int).Add(lo, big.NewInt(1)), nil)
		}
		if hi, ok := c.hi[ka]; ok {
			c.updateRange(kb, nil, new(big.Int).Sub(hi, big.NewInt(1)))
		}
	}
}

// Leq reports whether a is provably <= b.
func (c *Comparisons) Leq(a, b *expr.Expr) bool {
	if !c.consistent {
		return false
	}
	return c.leqKey(c.eqclass(a), c.eqclass(b))
}

func (c *Comparisons) leqKey(ka, kb string) bool {
	if ka == kb {
		return true
	}
	seen := make(map[[2]string]bool)
	var less func(lhs, rhs string) bool
	less = func(lhs, rhs string) bool {
		if lhs == rhs {
			return true
		}
		pair := [2]string{lhs, rhs}
		if seen[pair] {
			return false
		}
		seen[pair] = true
		if c.leq[rhs][lhs] {
			return true
		}
		llo, lhasLo := c.lo[lhs]
		lhi, lhasHi := c.hi[lhs]
		rlo, rhasLo := c.lo[rhs]
		rhi, rhasHi := c.hi[rhs]
		if lhasHi && rhasLo && lhi.Cmp(rlo) <= 0 {
			c.updateLeq(lhs, rhs)
			return true
		}
		if lhasLo && rhasHi && llo.Cmp(rhi) > 0 {
			return false
		}
		for gt := range c.leq[rhs] {
			if gt == rhs {
				continue
			}
			if less(lhs, gt) {
				c.updateLeq(lhs, rhs)
				return true
			}
		}
		for lt := range c.geq[lhs] {
			if lt == lhs {
				continue
			}
			if less(lt, rhs) {
				c.updateLeq(lhs, rhs)
				return true
			}
		}
		return false
	}
	return less(ka, kb)
}

// Eq reports whether a and b are provably equal.
func (c *Comparisons) Eq(a, b *expr.Expr) bool {
	if !c.consistent {
		return false
	}
	return c.eqclass(a) == c.eqclass(b)
}

// Neq reports whether a and b are provably unequal.
func (c *Comparisons) Neq(a, b *expr.Expr) bool {
	if !c.consistent {
		return false
	}
	ka, kb := c.eqclass(a), c.eqclass(b)
	if c.neq[ka][kb] {
		return true
	}
	alo, aok := c.lo[ka]
	bhi, bok := c.hi[kb]
	if aok && bok && alo.Cmp(bhi) > 0 {
		c.AssertNeq(a, b)
		return true
	}
	ahi, aok2 := c.hi[ka]
	blo, bok2 := c.lo[kb]
	if aok2 && bok2 && blo.Cmp(ahi) > 0 {
		c.AssertNeq(a, b)
		return true
	}
	return false
}

// IntRange returns the known [lo, hi] bounds for expr, if any; a nil
// bound means unknown in that direction.
func (c *Comparisons) IntRange(e *expr.Expr) (*big.Int, *big.Int) {
	k := c.eqclass(e)
	return c.lo[k], c.hi[k]
}

func (c *Comparisons) updateLeq(ka, kb string) {
	if !c.consistent || c.leq[ka][kb] {
		return
	}
	if c.leq[kb] == nil {
		c.leq[kb] = map[string]bool{}
	}
	if c.geq[ka] == nil {
		c.geq[ka] = map[string]bool{}
	}
	c.leq[kb][ka] = true
	c.geq[ka][kb] = true
	if lo, ok := c.lo[ka]; ok {
		c.updateRange(kb, lo, nil)
	}
	if hi, ok := c.hi[kb]; ok {
		c.updateRange(ka, nil, hi)
	}
}

func (c *Comparisons) updateRange(k string, newLo, newHi *big.Int) {
	if !c.consistent {
		return
	}
	lo, hasLo := c.lo[k]
	hi, hasHi := c.hi[k]
	if newLo != nil && (!hasLo || lo.Cmp(newLo) < 0) {
		lo = newLo
		hasLo = true
	}
	if newHi != nil && (!hasHi || hi.Cmp(newHi) > 0) {
		hi = newHi
		hasHi = true
	}
	if hasLo && hasHi && lo.Cmp(hi) > 0 {
		c.consistent = false
		return
	}
	if hasLo {
		c.lo[k] = lo
	}
	if hasHi {
		c.hi[k] = hi
	}
	if hasLo && hasHi && lo.Cmp(hi) == 0 {
		if e, ok := c.rep[k]; ok {
			c.mergeClasses(k, c.eqclass(expr.Int(lo, e.Bits())))
		}
	}
}

// mergeClasses unions the equivalence classes of a and b, choosing
// the canonical (algebra-ordered) representative.
func (c *Comparisons) mergeClasses(ka, kb string) {
	if !c.consistent || ka == kb {
		return
	}
	ea, eb := c.rep[ka], c.rep[kb]
	rep, other := ka, kb
	if ea != nil && eb != nil && eb.Compare(ea) < 0 {
		rep, other = kb, ka
	}
	c.parent[other] = rep
	if lo, ok := c.lo[other]; ok {
		c.updateRange(rep, lo, nil)
	}
	if hi, ok := c.hi[other]; ok {
		c.updateRange(rep, nil, hi)
	}
	for lt := range c.leq[other] {
		c.updateLeq(lt, rep)
	}
	for gt := range c.geq[other] {
		c.updateLeq(rep, gt)
	}
	for n := range c.neq[other] {
		if oe, ok := c.rep[other]; ok {
			delete(c.neq[n], other)
			if re, ok2 := c.rep[rep]; ok2 {
				c.AssertNeq(re, c.rep[n])
			}
			_ = oe
		}
	}
	delete(c.leq, other)
	delete(c.geq, other)
	delete(c.neq, other)
}
