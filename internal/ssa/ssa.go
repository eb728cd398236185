// Package ssa converts a CFG into static single assignment form
// using the Cytron-Ferrante algorithm.
package ssa

import (
	"fmt"
	"sort"

	"amigo/internal/djgraph"
	"amigo/internal/dom"
	"amigo/internal/ir"
)

// Construct rewrites cfg in place into SSA form: every value register
// is defined exactly once, with phi instructions inserted at join
// points per the iterated dominance frontier of each variable's
// definition sites.
func Construct(cfg *ir.CFG) error {
	g, err := djgraph.Build(cfg)
	if err != nil {
		return err
	}
	tree := g.Tree()

	defs := collectDefs(cfg)
	liveIn := computeLiveIn(cfg)

	idf := make(map[string]map[string]bool)
	for v, sites := range defs {
		if len(sites) <= 1 {
			continue
		}
		idf[v] = g.IteratedDominanceFrontier(sites...)
	}

	counters := make(map[string]int)
	vars := make(map[string]bool)
	for v := range defs {
		vars[v] = true
	}
	defCount := make(map[string]int)
	for _, l := range cfg.Labels() {
		for _, inst := range cfg.MustBlock(l).Instructions {
			if d, ok := inst.(ir.Definition); ok && d.Target().IsValue() {
				defCount[string(d.Target())]++
			}
		}
	}
	dommem := make(map[string]map[string]string) // block -> original var -> renamed reg

	newReg := func(v string) string {
		if _, ok := idf[v]; !ok && defCount[v] <= 1 {
			return v // only ever defined once
		}
		for {
			name := fmt.Sprintf("%s.%d", v, counters[v])
			counters[v]++
			if !vars[name] {
				vars[name] = true
				return name
			}
		}
	}

	var getDominating func(v, block string) (string, error)
	getDominating = func(v, block string) (string, error) {
		if v[0] != '%' {
			return v, nil
		}
		if dommem[block] == nil {
			dommem[block] = make(map[string]string)
		}
		if r, ok := dommem[block][v]; ok {
			return r, nil
		}
		if block == cfg.EntrypointLabel() {
			return "", &ir.BadFlowError{Block: block, Reason: v + " has no dominating definition"}
		}
		idom, _ := tree.Idom(block)
		r, err := getDominating(v, idom)
		if err != nil {
			return "", err
		}
		dommem[block][v] = r
		return r, nil
	}

	var dfsErr error
	var walk func(label string)
	walk = func(label string) {
		if dfsErr != nil {
			return
		}
		b := cfg.MustBlock(label)

		for v, sites := range idf {
			if !sites[label] {
				continue
			}
			if !liveIn[label][v] {
				continue
			}
			var args []ir.PhiArg
			parents := sortedParents(b)
			for _, p := range parents {
				args = append(args, ir.PhiArg{Value: ir.Register(v), Label: p})
			}
			phi := &ir.PhiInstruction{Tgt: ir.Register(v), Args: args}
			b.Instructions = append([]ir.Instruction{phi}, b.Instructions...)
			_ = sites
		}

		for _, inst := range b.Instructions {
			if p, isPhi := inst.(*ir.PhiInstruction); isPhi {
				renamed := newReg(string(p.Tgt))
				if dommem[label] == nil {
					dommem[label] = make(map[string]string)
				}
				dommem[label][string(p.Tgt)] = renamed
				p.Tgt = ir.Register(renamed)
				continue
			}
			ops := inst.Operands()
			newOps := make([]ir.Register, len(ops))
			for i, op := range ops {
				if !op.IsValue() {
					newOps[i] = op
					continue
				}
				r, err := getDominating(string(op), label)
				if err != nil {
					dfsErr = err
					return
				}
				newOps[i] = ir.Register(r)
			}
			inst.SetOperands(newOps)

			if d, ok := inst.(ir.Definition); ok {
				renamed := newReg(string(d.Target()))
				if dommem[label] == nil {
					dommem[label] = make(map[string]string)
				}
				dommem[label][string(d.Target())] = renamed
				d.SetTarget(ir.Register(renamed))
			}
		}
		if t, ok := b.Term.(interface{ Operands() []ir.Register }); ok {
			ops := t.Operands()
			if len(ops) > 0 && ops[0].IsValue() {
				r, err := getDominating(string(ops[0]), label)
				if err != nil {
					dfsErr = err
					return
				}
				b.Term.SetOperands([]ir.Register{ir.Register(r)})
			}
		}

		for _, child := range tree.Children(label) {
			walk(child)
		}
	}
	walk(cfg.EntrypointLabel())
	if dfsErr != nil {
		return dfsErr
	}

	repairPhiArguments(cfg, tree, getDominating)
	return nil
}

func sortedParents(b *ir.BasicBlock) []string {
	out := make([]string, 0, len(b.Parents))
	for p := range b.Parents {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func collectDefs(cfg *ir.CFG) map[string][]string {
	defs := make(map[string][]string)
	for _, l := range cfg.Labels() {
		b := cfg.MustBlock(l)
		for _, inst := range b.Instructions {
			if d, ok := inst.(ir.Definition); ok && d.Target().IsValue() {
				v := string(d.Target())
				if len(defs[v]) == 0 || defs[v][len(defs[v])-1] != l {
					defs[v] = append(defs[v], l)
				}
			}
		}
	}
	return defs
}

// computeLiveIn is a conservative (not maximally precise) liveness
// analysis sufficient for deciding phi placement: a variable is live
// into a block if it is used anywhere in that block (even after the
// block redefines it), or is live into any successor and not killed
// in this block.
func computeLiveIn(cfg *ir.CFG) map[string]map[string]bool {
	labels := cfg.Labels()
	liveIn := make(map[string]map[string]bool)
	liveOut := make(map[string]map[string]bool)
	for _, l := range labels {
		liveIn[l] = make(map[string]bool)
		liveOut[l] = make(map[string]bool)
	}

	changed := true
	for changed {
		changed = false
		for _, l := range labels {
			b := cfg.MustBlock(l)
			out := make(map[string]bool)
			for _, succ := range b.Children() {
				sb, ok := cfg.Block(succ)
				if !ok {
					continue
				}
				for v := range liveIn[succ] {
					out[v] = true
				}
				for _, inst := range sb.Instructions {
					if p, ok := inst.(*ir.PhiInstruction); ok {
						for _, a := range p.Args {
							if a.Label == l && a.Value.IsValue() {
								out[string(a.Value)] = true
							}
						}
					}
				}
			}
			in := make(map[string]bool)
			killed := make(map[string]bool)
			for i := len(b.Instructions) - 1; i >= 0; i-- {
				inst := b.Instructions[i]
				if _, isPhi := inst.(*ir.PhiInstruction); isPhi {
					continue
				}
				if d, ok := inst.(ir.Definition); ok {
					killed[string(d.Target())] = true
				}
			}
			for v := range out {
				if !killed[v] {
					in[v] = true
				}
			}
			for _, inst := range b.Instructions {
				if _, isPhi := inst.(*ir.PhiInstruction); isPhi {
					continue
				}
				for _, op := range inst.Operands() {
					if op.IsValue() {
						in[string(op)] = true
					}
				}
			}
			for _, op := range b.Term.Operands() {
				if op.IsValue() {
					in[string(op)] = true
				}
			}

			if !sameSet(in, liveIn[l]) {
				liveIn[l] = in
				changed = true
			}
			if !sameSet(out, liveOut[l]) {
				liveOut[l] = out
				changed = true
			}
		}
	}
	return liveIn
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// repairPhiArguments corrects phi instruction arguments to use the
// renamed register dominating each predecessor. When that name is
// already defined earlier in the phi's own block (by an earlier phi,
// for instance), it copies the value into a fresh register with a mov
// at the end of the predecessor block and uses that register instead.
func repairPhiArguments(cfg *ir.CFG, tree *dom.Tree, getDominating func(v, block string) (string, error)) {
	for _, l := range cfg.Labels() {
		b := cfg.MustBlock(l)
		assigned := make(map[string]bool)
		for _, inst := range b.Instructions {
			if p, ok := inst.(*ir.PhiInstruction); ok {
				for i, a := range p.Args {
					orig := baseName(a.Value)
					reg, err := getDominating(orig, a.Label)
					if err != nil {
						continue
					}
					if assigned[reg] {
						parent := cfg.MustBlock(a.Label)
						tmp := ir.Register(fmt.Sprintf("%%%s.repair%d", orig[1:], len(parent.Instructions)))
						mov := &ir.MovInstruction{Tgt: tmp, Src: ir.Register(reg)}
						insertBeforeTerm(parent, mov)
						reg = string(tmp)
					}
					p.Args[i].Value = ir.Register(reg)
				}
			}
			if d, ok := inst.(ir.Definition); ok {
				assigned[string(d.Target())] = true
			}
		}
	}
}

func baseName(r ir.Register) string {
	return string(r)
}

func insertBeforeTerm(b *ir.BasicBlock, inst ir.Instruction) {
	b.Instructions = append(b.Instructions, inst)
}
