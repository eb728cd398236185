package pass

import (
	"fmt"

	"amigo/internal/ir"
)

// BranchElim folds branches with a constant or degenerate condition
// into a goto, and merges a block into its unique child when that
// child has no other parent.
//
// The source this is adapted from also hoists an empty block upward
// into its unique child when every phi there agrees on block's
// incoming value; that direction is not implemented here; it only
// matters for blocks contributed by edge-splitting with no real
// content, which this toy pipeline produces rarely enough that the
// extra case isn't worth the added bookkeeping.
type BranchElim struct{}

func (BranchElim) ID() string { return "branch-elim" }

func (BranchElim) Apply(cfg *ir.CFG, m *Manager) ([]string, error) {
	changed := false
	for {
		reduced := false
		for _, l := range cfg.Labels() {
			b, ok := cfg.Block(l)
			if !ok {
				continue
			}
			br, isBranch := b.Term.(*ir.BranchTerminator)
			if !isBranch {
				continue
			}
			switch {
			case br.IfTrue == br.IfFalse:
				cfg.SetGoto(l, br.IfTrue)
				reduced = true
			case br.Cond.IsInt():
				if n, _ := br.Cond.Int(); n == 0 {
					cfg.SetGoto(l, br.IfFalse)
				} else {
					cfg.SetGoto(l, br.IfTrue)
				}
				reduced = true
			}
		}
		if reduced {
			cfg.Tidy()
			changed = true
			continue
		}

		for _, l := range cfg.Labels() {
			b, ok := cfg.Block(l)
			if !ok {
				continue
			}
			g, isGoto := b.Term.(*ir.GotoTerminator)
			if !isGoto {
				continue
			}
			child, ok := cfg.Block(g.TargetLabel)
			if !ok || len(child.Parents) != 1 {
				continue
			}
			mergeBlocks(cfg, b, child)
			reduced = true
			break
		}
		if !reduced {
			break
		}
		cfg.Tidy()
		changed = true
	}

	if changed {
		return []string{"branch-elim", "ssa"}, nil
	}
	return []string{"branch-elim", "ssa", "def", "live"}, nil
}

// mergeBlocks appends child's body onto b and removes child, relabeling
// any phi argument that named child as its predecessor.
func mergeBlocks(cfg *ir.CFG, b, child *ir.BasicBlock) {
	b.Instructions = append(b.Instructions, child.Instructions...)
	b.Term = child.Term
	for _, grandchild := range child.Children() {
		gb, ok := cfg.Block(grandchild)
		if !ok {
			continue
		}
		for _, inst := range gb.Instructions {
			p, isPhi := inst.(*ir.PhiInstruction)
			if !isPhi {
				continue
			}
			for i, a := range p.Args {
				if a.Label == child.Label {
					p.Args[i].Label = b.Label
				}
			}
		}
	}
	cfg.RemoveBlock(child.Label)
	cfg.RecomputeParents()
}

// DCE removes definitions whose value is never subsequently used.
// Read instructions are kept regardless, since eliminating them would
// change the program's observable input consumption.
type DCE struct{}

func (DCE) ID() string { return "dce" }

func (DCE) Apply(cfg *ir.CFG, m *Manager) ([]string, error) {
	liveAny, err := m.Require("live")
	if err != nil {
		return nil, err
	}
	live := liveAny.(*LiveAnalysis)

	changed := false
	for _, l := range cfg.Labels() {
		b := cfg.MustBlock(l)
		var kept []ir.Instruction
		for i, inst := range b.Instructions {
			d, isDef := inst.(ir.Definition)
			if !isDef {
				kept = append(kept, inst)
				continue
			}
			if _, isRead := inst.(*ir.ReadInstruction); isRead {
				kept = append(kept, inst)
				continue
			}
			out := live.LiveOut(l, i)
			if out != nil && out[string(d.Target())] {
				kept = append(kept, inst)
				continue
			}
			changed = true
		}
		b.Instructions = kept
	}

	if changed {
		return []string{"dce", "def"}, nil
	}
	return []string{"dce", "def", "live", "ssa", "branch-elim"}, nil
}

// PhiElim lowers every phi instruction into a mov in the block itself,
// fed by a mov appended to the end of each predecessor's body. This
// undoes SSA's join-point sharing, so it should run only once a CFG's
// optimisation passes are otherwise finished.
type PhiElim struct{}

func (PhiElim) ID() string { return "phi-elim" }

func (PhiElim) Apply(cfg *ir.CFG, m *Manager) ([]string, error) {
	defAny, err := m.Require("def")
	if err != nil {
		return nil, err
	}
	defs := defAny.(*DefAnalysis)
	changed := false

	for _, l := range cfg.Labels() {
		b := cfg.MustBlock(l)
		for i, inst := range b.Instructions {
			p, isPhi := inst.(*ir.PhiInstruction)
			if !isPhi {
				continue
			}
			changed = true
			reg := freshPhiReg(defs, string(p.Tgt))
			for _, arg := range p.Args {
				parent, ok := cfg.Block(arg.Label)
				if !ok {
					continue
				}
				mov := &ir.MovInstruction{Tgt: ir.Register(reg), Src: arg.Value}
				parent.Instructions = append(parent.Instructions, mov)
			}
			b.Instructions[i] = &ir.MovInstruction{Tgt: p.Tgt, Src: ir.Register(reg)}
		}
	}

	if changed {
		return []string{"phi-elim"}, nil
	}
	return []string{"phi-elim", "def"}, nil
}

func freshPhiReg(defs *DefAnalysis, base string) string {
	candidate := base + ".phi"
	idx := -1
	for defs.Vars[candidate] {
		idx++
		candidate = fmt.Sprintf("%s.phi.%d", base, idx)
	}
	defs.Vars[candidate] = true
	return candidate
}
