package dataflow

import (
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// Anticipate computes, for every instruction in every block, the set
// of value numbers that will certainly be recomputed along every path
// out of that point: a backward dataflow dual to AvailAnalysis, used
// by lazy code motion to find the latest safe-to-delay, earliest
// legal placement for each expression. Grounded on the source's
// Anticipate (opt/gvn/anticipatable.py).
type Anticipate struct {
	GVN  string
	Bits uint

	// Out[label][i] is the anticipatable-in set of instruction i of
	// block label (index len(Instructions) is the anticipatable-in of
	// the terminator, i.e. the block's anticipatable-out: the
	// intersection of its successors' anticipatable-in sets).
	Out map[string][]exprSet

	// alt[label][i] is the set of value numbers altered by instruction
	// i of block label: tracked expressions that depend on whatever
	// register that instruction defines, and so cannot be hoisted past
	// it. alt[label][len(Instructions)] is always empty (terminators
	// never define a register).
	alt map[string][]exprSet
}

func NewAnticipate(gvnVariant string, bits uint) (*Anticipate, error) {
	if err := validGVNArg(gvnVariant); err != nil {
		return nil, err
	}
	return &Anticipate{GVN: gvnVariant, Bits: bits}, nil
}

func (a *Anticipate) ID() string { return "anticipatable" }

func (a *Anticipate) Compute(cfg *ir.CFG, m *pass.Manager) error {
	// Anticipatability is only meaningful alongside availability (lazy
	// code motion's Earliest needs both), so require it here even
	// though this pass's own fixpoint doesn't consult it directly.
	if _, err := m.Require("available"); err != nil {
		return err
	}

	classes, err := ensureClasses(cfg, m, a.GVN, a.Bits)
	if err != nil {
		return err
	}

	labels := cfg.Labels()
	post := cfg.Postorder()

	// allExprs is the universe of tracked value numbers: one per
	// register definition anywhere in the CFG, matching the source's
	// expr_deps domain.
	allExprs := exprSet{}
	for _, l := range labels {
		for _, inst := range cfg.MustBlock(l).Instructions {
			if d, ok := inst.(ir.Definition); ok {
				vn := classes.Get(d.Target())
				allExprs[vn.Polish()] = vn
			}
		}
	}

	a.alt = make(map[string][]exprSet, len(labels))
	for _, l := range labels {
		b := cfg.MustBlock(l)
		altRow := make([]exprSet, len(b.Instructions)+1)
		altRow[len(b.Instructions)] = exprSet{} // the terminator defines nothing
		for i, inst := range b.Instructions {
			d, ok := inst.(ir.Definition)
			if !ok {
				altRow[i] = exprSet{}
				continue
			}
			target := string(d.Target())
			row := exprSet{}
			for key, e := range allExprs {
				if atoms(e)[target] {
					row[key] = e
				}
			}
			altRow[i] = row
		}
		a.alt[l] = altRow
	}

	blockIn := make(map[string]exprSet, len(labels))
	blockOut := make(map[string]exprSet, len(labels))
	for _, l := range labels {
		blockIn[l] = exprSet{}
		blockOut[l] = exprSet{}
	}

	changed := true
	for changed {
		changed = false
		for _, l := range post {
			b := cfg.MustBlock(l)
			children := b.Children()

			var out exprSet
			if len(children) == 0 {
				out = exprSet{}
			} else {
				sets := make([]exprSet, 0, len(children))
				for _, c := range children {
					sets = append(sets, blockIn[c])
				}
				out = intersect(sets...)
			}

			altRow := a.alt[l]
			in := out.clone()
			for i := len(b.Instructions) - 1; i >= 0; i-- {
				in = sub(in, altRow[i])
				if d, ok := b.Instructions[i].(ir.Definition); ok {
					vn := classes.Get(d.Target())
					in[vn.Polish()] = vn
				}
			}

			if !out.equal(blockOut[l]) {
				blockOut[l] = out
				changed = true
			}
			if !in.equal(blockIn[l]) {
				blockIn[l] = in
				changed = true
			}
		}
	}

	a.Out = make(map[string][]exprSet, len(labels))
	for _, l := range labels {
		b := cfg.MustBlock(l)
		n := len(b.Instructions) + 1
		outs := make([]exprSet, n)
		altRow := a.alt[l]
		cur := blockOut[l]
		outs[n-1] = cur
		for i := len(b.Instructions) - 1; i >= 0; i-- {
			cur = sub(cur, altRow[i])
			if d, ok := b.Instructions[i].(ir.Definition); ok {
				vn := classes.Get(d.Target())
				cur = union(cur, singleton(vn))
			}
			outs[i] = cur
		}
		a.Out[l] = outs
	}

	return nil
}

// atoms returns the set of leaf register names e's value depends on.
func atoms(e *expr.Expr) map[string]bool {
	out := make(map[string]bool)
	var walk func(*expr.Expr)
	walk = func(x *expr.Expr) {
		switch x.Kind {
		case expr.KindAtom:
			out[x.Atom] = true
		case expr.KindOp:
			for _, arg := range x.Args {
				walk(arg)
			}
		}
	}
	walk(e)
	return out
}

// AnticipatedIn returns the set of value numbers anticipatable on
// entry to instruction i of block label.
func (a *Anticipate) AnticipatedIn(label string, i int) []*expr.Expr {
	outs, ok := a.Out[label]
	if !ok || i >= len(outs) {
		return nil
	}
	return outs[i].sorted()
}

func (a *Anticipate) AnticipatedOut(label string, i int) []*expr.Expr {
	return a.AnticipatedIn(label, i+1)
}

func (a *Anticipate) BlockAnticipatedIn(label string) []*expr.Expr {
	return a.AnticipatedIn(label, 0)
}

func (a *Anticipate) BlockAnticipatedOut(label string) []*expr.Expr {
	outs, ok := a.Out[label]
	if !ok || len(outs) == 0 {
		return nil
	}
	return outs[len(outs)-1].sorted()
}

// Altered returns the value numbers that cannot be hoisted past block
// label because one of their dependencies is (re)defined somewhere
// within it.
func (a *Anticipate) Altered(label string) []*expr.Expr {
	row, ok := a.alt[label]
	if !ok {
		return nil
	}
	out := exprSet{}
	for _, s := range row {
		out = union(out, s)
	}
	return out.sorted()
}

// Earliest computes the set of value numbers that should be inserted
// on the edge from block to child: anticipatable at child's head, not
// already available leaving block, and either genuinely altered by
// block (so it can't simply be hoisted further back) or not
// anticipatable leaving block at all (so there's no earlier common
// point to place it).
func (a *Anticipate) Earliest(avail *AvailAnalysis, block, child string) []*expr.Expr {
	antInChild := toSet(a.BlockAnticipatedIn(child))
	availOutBlock := toSet(avail.BlockAvailOut(block))
	antOutBlock := toSet(a.BlockAnticipatedOut(block))
	altBlock := toSet(a.Altered(block))

	needed := sub(antInChild, availOutBlock)
	return union(intersect(needed, altBlock), sub(needed, antOutBlock)).sorted()
}

func toSet(es []*expr.Expr) exprSet {
	out := make(exprSet, len(es))
	for _, e := range es {
		out[e.Polish()] = e
	}
	return out
}
