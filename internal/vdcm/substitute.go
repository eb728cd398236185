package vdcm

import (
	"fmt"
	"sort"

	"amigo/internal/dom"
	"amigo/internal/expr"
	"amigo/internal/ir"
)

// toIRBinOp is the inverse of internal/gvn's toExprOp, needed to turn
// a canonical Expr back into a concrete BinaryInstruction when
// inserting a newly-placed computation.
var toIRBinOp = map[expr.Op]ir.BinOp{
	expr.OpAdd: ir.OpAdd, expr.OpSub: ir.OpSub, expr.OpMul: ir.OpMul,
	expr.OpDiv: ir.OpDiv, expr.OpMod: ir.OpMod,
	expr.OpAnd: ir.OpAnd, expr.OpOr: ir.OpOr, expr.OpXor: ir.OpXor,
	expr.OpLShift: ir.OpLShift, expr.OpRShift: ir.OpRShift,
	expr.OpEq: ir.OpEq, expr.OpNeq: ir.OpNeq, expr.OpLt: ir.OpLt, expr.OpLeq: ir.OpLeq,
}

// substitution carries the mutable state of the dominator-tree
// depth-first rewrite (code_motion.py's _dfs_and_sub / _get_dominating_var
// / _insert_expr), threaded through one pass over the CFG.
type substitution struct {
	cfg  *ir.CFG
	tree *dom.Tree
	vn   func(ir.Register) *expr.Expr

	// vnrep holds one representative register per value number seen so
	// far, CFG-wide: the original register that produced it, or a
	// freshly minted one once this pass inserts a new computation of it.
	vnrep map[string]ir.Register

	// localDefs[block][vn] is the register that computes value number vn
	// by the end of block, set while block itself is being processed.
	localDefs map[string]map[string]ir.Register

	// dommem memoizes getDominatingVar's idom-chain walk: dommem[block][vn]
	// is nil when no ancestor of block defines vn, otherwise the
	// dominating register. Populated lazily; safe to cache because an
	// ancestor's local state is frozen by the time any descendant queries
	// it (dominator-tree DFS visits a block's children only after the
	// block itself is fully processed).
	dommem map[string]map[string]*ir.Register

	deleteSet   map[string]exprSet
	insertBlock map[string]exprSet

	reg     int
	changed bool
}

func (s *substitution) setLocal(block, key string, reg ir.Register) {
	if s.localDefs[block] == nil {
		s.localDefs[block] = make(map[string]ir.Register)
	}
	s.localDefs[block][key] = reg
}

func (s *substitution) cacheDom(block, key string, reg *ir.Register) {
	if s.dommem[block] == nil {
		s.dommem[block] = make(map[string]*ir.Register)
	}
	s.dommem[block][key] = reg
}

// getDominatingVar finds the register that holds value number key by
// the time control reaches the end of block: block's own definition
// if it has one, else whatever its nearest dominating ancestor holds.
func (s *substitution) getDominatingVar(block, key string) (ir.Register, bool) {
	if reg, ok := s.localDefs[block][key]; ok {
		return reg, true
	}
	if m, ok := s.dommem[block]; ok {
		if r, ok := m[key]; ok {
			if r == nil {
				return "", false
			}
			return *r, true
		}
	}
	idomLabel, ok := s.tree.Idom(block)
	if !ok {
		s.cacheDom(block, key, nil)
		return "", false
	}
	reg, found := s.getDominatingVar(idomLabel, key)
	if !found {
		s.cacheDom(block, key, nil)
		return "", false
	}
	s.cacheDom(block, key, &reg)
	return reg, true
}

func (s *substitution) newRegister() ir.Register {
	s.reg++
	return ir.Register(fmt.Sprintf("%%vdcm%d", s.reg))
}

// resolveOperand returns the register that should stand in for e at
// block: e's own literal or atom form, or the representative register
// already computing it (minting and recording one via insertExpr as a
// last resort, though a sound earliest/later placement means this
// should already be available by the time any of its uses are
// reached).
func (s *substitution) resolveOperand(block string, e *expr.Expr) ir.Register {
	switch e.Kind {
	case expr.KindInt:
		return ir.Register(e.IntVal.String())
	case expr.KindAtom:
		return ir.Register(e.Atom)
	default:
		key := e.Polish()
		if r, ok := s.vnrep[key]; ok {
			return r
		}
		if r, ok := s.getDominatingVar(block, key); ok {
			s.vnrep[key] = r
			return r
		}
		return s.insertExpr(block, e)
	}
}

// insertExpr appends a new instruction computing e at the end of
// block's instruction list (before its terminator), mints a register
// for it if none exists yet, and records the result as block's local
// definition of e's value number.
func (s *substitution) insertExpr(block string, e *expr.Expr) ir.Register {
	key := e.Polish()
	if r, ok := s.vnrep[key]; ok {
		s.setLocal(block, key, r)
		return r
	}

	left := s.resolveOperand(block, e.Args[0])
	right := s.resolveOperand(block, e.Args[1])
	op, ok := toIRBinOp[e.Op]
	if !ok {
		op = ir.OpAdd // unreachable: e is a keep()-eligible binary expr
	}

	reg := s.newRegister()
	b := s.cfg.MustBlock(block)
	b.Instructions = append(b.Instructions, &ir.BinaryInstruction{Tgt: reg, Op: op, Left: left, Right: right})

	s.vnrep[key] = reg
	s.setLocal(block, key, reg)
	s.changed = true
	return reg
}

// dfsAndSub rewrites block and then recurses over its dominator-tree
// children: substitute every operand by its dominating register,
// delete now-redundant definitions, insert newly placed ones, and
// finally fix up the terminator the same way.
func (s *substitution) dfsAndSub(block string) {
	b := s.cfg.MustBlock(block)

	newInstrs := make([]ir.Instruction, 0, len(b.Instructions))
	for _, inst := range b.Instructions {
		if phi, ok := inst.(*ir.PhiInstruction); ok {
			for i := range phi.Args {
				argVN := s.vn(phi.Args[i].Value)
				if reg, ok := s.getDominatingVar(phi.Args[i].Label, argVN.Polish()); ok {
					phi.Args[i].Value = reg
				}
			}
		} else {
			s.substituteOperands(block, inst)
		}

		if d, ok := inst.(ir.Definition); ok {
			key := s.vn(d.Target()).Polish()
			if _, deleted := s.deleteSet[block][key]; deleted {
				s.changed = true
				continue
			}
			s.setLocal(block, key, d.Target())
		}
		newInstrs = append(newInstrs, inst)
	}
	b.Instructions = newInstrs

	for _, e := range s.insertBlock[block].sorted() {
		if _, ok := s.getDominatingVar(block, e.Polish()); !ok {
			s.insertExpr(block, e)
		}
	}

	if b.Term != nil {
		s.substituteOperands(block, b.Term)
	}

	children := append([]string(nil), s.tree.Children(block)...)
	sort.Strings(children)
	for _, c := range children {
		s.dfsAndSub(c)
	}
}

func (s *substitution) substituteOperands(block string, inst ir.Instruction) {
	operands := inst.Operands()
	if len(operands) == 0 {
		return
	}
	out := make([]ir.Register, len(operands))
	any := false
	for i, operand := range operands {
		key := s.vn(operand).Polish()
		if reg, ok := s.getDominatingVar(block, key); ok && reg != operand {
			out[i] = reg
			any = true
		} else {
			out[i] = operand
		}
	}
	if any {
		inst.SetOperands(out)
		s.changed = true
	}
}
