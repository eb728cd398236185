// Package gvn implements three global value numbering variants that
// all agree on one result shape: a canonical Expr per defined
// register, recorded on the CFG as a "classes" metadata entry so
// later passes (dataflow, code motion) can share it without
// recomputing.
package gvn

import (
	"fmt"
	"sort"

	"amigo/internal/expr"
	"amigo/internal/ir"
)

// BadModeError is raised when a GVN variant is constructed with a
// numbering mode other than "var" or "expr".
type BadModeError struct{ Mode string }

func (e *BadModeError) Error() string {
	return fmt.Sprintf("gvn: mode must be \"var\" or \"expr\", got %q", e.Mode)
}

// Classes is the value-number partition produced by a GVN variant:
// the canonical expression every defined register's value reduces to.
type Classes struct {
	vn   map[string]*expr.Expr
	bits uint
}

// Get returns the value number of reg: its own integer value if it's
// a literal, the partition's assignment if GVN numbered it, or
// reg's own atom as a conservative fallback (never defined in a way
// GVN tracked, e.g. a read).
func (c *Classes) Get(reg ir.Register) *expr.Expr {
	if reg.IsInt() {
		n, _ := reg.Int()
		return expr.IntN(n, c.bits)
	}
	if e, ok := c.vn[string(reg)]; ok {
		return e
	}
	return expr.Atom(string(reg), c.bits)
}

// toExprOp maps an ir.BinOp to its internal/expr.Op counterpart.
var toExprOp = map[ir.BinOp]expr.Op{
	ir.OpAdd: expr.OpAdd, ir.OpSub: expr.OpSub, ir.OpMul: expr.OpMul,
	ir.OpDiv: expr.OpDiv, ir.OpMod: expr.OpMod,
	ir.OpAnd: expr.OpAnd, ir.OpOr: expr.OpOr, ir.OpXor: expr.OpXor,
	ir.OpLShift: expr.OpLShift, ir.OpRShift: expr.OpRShift,
	ir.OpEq: expr.OpEq, ir.OpNeq: expr.OpNeq, ir.OpLt: expr.OpLt, ir.OpLeq: expr.OpLeq,
}

// writeClasses records vn to the CFG's "classes" metadata key as a
// repeating (canonical expression's Polish form, sorted member
// registers, "$") sequence, one triple per value-number class,
// matching the source's shared `assign("classes", ...)` convention.
func writeClasses(cfg *ir.CFG, vn map[string]*expr.Expr) {
	members := make(map[string][]string)
	var order []string
	for reg, e := range vn {
		key := e.Polish()
		if _, ok := members[key]; !ok {
			order = append(order, key)
		}
		members[key] = append(members[key], reg)
	}
	sort.Strings(order)

	cfg.Metadata.Set("classes")
	for _, key := range order {
		regs := members[key]
		sort.Strings(regs)
		cfg.Metadata.Append("classes", key)
		cfg.Metadata.Append("classes", regs...)
		cfg.Metadata.Append("classes", "$")
	}
}

// LoadClasses reads back the value-number partition a GVN variant
// recorded on cfg, for passes downstream of GVN (dataflow, code
// motion) that only need the result, not the variant that produced
// it.
func LoadClasses(cfg *ir.CFG, bits uint) (*Classes, error) {
	return readClasses(cfg, bits)
}

// readClasses parses a CFG's "classes" metadata key into a Classes
// partition.
func readClasses(cfg *ir.CFG, bits uint) (*Classes, error) {
	vn := make(map[string]*expr.Expr)
	var cur *expr.Expr
	for _, tok := range cfg.Metadata.Get("classes") {
		if tok == "$" {
			cur = nil
			continue
		}
		if cur == nil {
			e, err := expr.ReadPolish(tok, bits)
			if err != nil {
				return nil, err
			}
			cur = e
			continue
		}
		vn[tok] = cur
	}
	return &Classes{vn: vn, bits: bits}, nil
}

// vnLookup builds an operand resolver backed by a single value-number
// map: a literal's own integer expression, the map's current
// assignment, or unknown if the register hasn't been numbered yet.
func vnLookup(vn map[string]*expr.Expr, unknown *expr.Expr, bits uint) func(ir.Register) *expr.Expr {
	return func(r ir.Register) *expr.Expr {
		if r.IsInt() {
			n, _ := r.Int()
			return expr.IntN(n, bits)
		}
		if e, ok := vn[string(r)]; ok {
			return e
		}
		return unknown
	}
}

// candidateExpr computes the canonical expression a definition
// currently evaluates to, given a resolver for its operands' current
// value numbers. Phi arguments that resolve to unknown contribute the
// shared unknown atom rather than being dropped, so two phis over the
// same (possibly still-unresolved) incoming values compare equal as
// soon as their inputs do; this is a deliberate simplification from
// the source's "optimistically discard unresolved phi operands"
// approach, consistent with this package's canonical Expr.Phi having
// no leading per-instruction nonce for the source's technique to rely
// on in the first place (see internal/expr's phi comparison).
func candidateExpr(inst ir.Instruction, get func(ir.Register) *expr.Expr, bits uint) (target string, value *expr.Expr, ok bool) {
	switch i := inst.(type) {
	case *ir.MovInstruction:
		return string(i.Tgt), get(i.Src), true
	case *ir.PhiInstruction:
		values := make([]*expr.Expr, len(i.Args))
		labels := make([]string, len(i.Args))
		for idx, a := range i.Args {
			values[idx] = get(a.Value)
			labels[idx] = a.Label
		}
		return string(i.Tgt), expr.BuildPhi(values, labels, bits), true
	case *ir.BinaryInstruction:
		l, r := get(i.Left), get(i.Right)
		return string(i.Tgt), expr.Build(toExprOp[i.Op], bits, l, r), true
	case *ir.ReadInstruction:
		// Unhandled definition class: cannot be optimistic, so it
		// numbers to its own identity.
		return string(i.Tgt), expr.Atom(string(i.Tgt), bits), true
	}
	return "", nil, false
}

// commit chooses the value assigned to a freshly computed candidate
// expression: in "expr" mode (or when the candidate isn't an operator
// expression at all) the candidate itself is the value number;
// in "var" mode an operator expression is instead represented by the
// register that first produced it this round, so the exported
// partition never leaks algebraic structure for plain copies/re-uses.
func commit(mode string, target string, candidate *expr.Expr, lookup map[string]*expr.Expr, bits uint) *expr.Expr {
	key := candidate.Polish()
	if v, ok := lookup[key]; ok {
		return v
	}
	var v *expr.Expr
	if mode == "expr" || candidate.Kind != expr.KindOp {
		v = candidate
	} else {
		v = expr.Atom(target, bits)
	}
	lookup[key] = v
	return v
}
