package pass

import "amigo/internal/ir"

// DefAnalysis collects every value register defined anywhere in the
// CFG, used to mint fresh register names that can't collide with an
// existing one.
type DefAnalysis struct {
	Vars map[string]bool
}

func NewDefAnalysis() *DefAnalysis { return &DefAnalysis{} }

func (a *DefAnalysis) ID() string { return "def" }

func (a *DefAnalysis) Compute(cfg *ir.CFG, m *Manager) error {
	a.Vars = make(map[string]bool)
	for _, l := range cfg.Labels() {
		b := cfg.MustBlock(l)
		for _, inst := range b.Instructions {
			if d, ok := inst.(ir.Definition); ok {
				a.Vars[string(d.Target())] = true
			}
		}
	}
	return nil
}

// LiveAnalysis computes, for every instruction in every block, the set
// of registers live immediately after that instruction executes.
type LiveAnalysis struct {
	// Out[label][i] is the live-IN set of instruction i of block label
	// (index len(Instructions) is the live-in of the terminator: the
	// block's live-out plus the terminator's own operands). Use LiveOut,
	// not this field, to get the live-out set of a given instruction:
	// that's the live-in of the instruction right after it.
	Out map[string][]map[string]bool

	// PhiIn[label][i], for i < len(Instructions), maps each parent of
	// block label to the registers conditionally live at instruction i
	// because some phi at or after i selects them specifically when
	// control arrives from that parent. Phi operands are otherwise
	// excluded from Out: whether %1 in "%0 = phi [%1, @B], ..." is live
	// depends on having arrived via @B, which is not something a single
	// unconditional live-in set can represent.
	PhiIn map[string][]map[string]map[string]bool
}

func NewLiveAnalysis() *LiveAnalysis { return &LiveAnalysis{} }

func (a *LiveAnalysis) ID() string { return "live" }

func (a *LiveAnalysis) Compute(cfg *ir.CFG, m *Manager) error {
	labels := cfg.Labels()
	blockIn := make(map[string]map[string]bool)
	blockOut := make(map[string]map[string]bool)
	for _, l := range labels {
		blockIn[l] = make(map[string]bool)
		blockOut[l] = make(map[string]bool)
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
				for v := range blockIn[succ] {
					out[v] = true
				}
				for _, inst := range sb.Instructions {
					if p, ok := inst.(*ir.PhiInstruction); ok {
						for _, arg := range p.Args {
							if arg.Label == l && arg.Value.IsValue() {
								out[string(arg.Value)] = true
							}
						}
					}
				}
			}
			in := backwardPass(b, out, nil)
			if !sameSet(in, blockIn[l]) {
				blockIn[l] = in
				changed = true
			}
			if !sameSet(out, blockOut[l]) {
				blockOut[l] = out
				changed = true
			}
		}
	}

	a.Out = make(map[string][]map[string]bool)
	for _, l := range labels {
		b := cfg.MustBlock(l)
		_ = backwardPass(b, blockOut[l], a.recordOut(l, b))
	}

	a.PhiIn = make(map[string][]map[string]map[string]bool, len(labels))
	for _, l := range labels {
		a.PhiIn[l] = computePhiIn(cfg.MustBlock(l))
	}
	return nil
}

// computePhiIn walks a block's instructions backward once (no fixpoint
// needed: it only depends on the block's own phis, never on other
// blocks), accumulating each phi's per-predecessor conditional uses as
// it goes so that index i sees the union contributed by every phi at
// index i or later.
func computePhiIn(b *ir.BasicBlock) []map[string]map[string]bool {
	n := len(b.Instructions)
	rows := make([]map[string]map[string]bool, n)
	cur := make(map[string]map[string]bool, len(b.Parents))
	for p := range b.Parents {
		cur[p] = make(map[string]bool)
	}
	for i := n - 1; i >= 0; i-- {
		if phi, ok := b.Instructions[i].(*ir.PhiInstruction); ok {
			for _, arg := range phi.Args {
				if arg.Value.IsValue() {
					if cur[arg.Label] == nil {
						cur[arg.Label] = make(map[string]bool)
					}
					cur[arg.Label][string(arg.Value)] = true
				}
			}
		}
		rows[i] = clonePhiMap(cur)
	}
	return rows
}

func clonePhiMap(m map[string]map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(m))
	for k, v := range m {
		out[k] = copySet(v)
	}
	return out
}

func (a *LiveAnalysis) recordOut(label string, b *ir.BasicBlock) func(idx int, out map[string]bool) {
	n := len(b.Instructions) + 1
	a.Out[label] = make([]map[string]bool, n)
	return func(idx int, out map[string]bool) {
		a.Out[label][idx] = out
	}
}

// backwardPass walks block b backward from its live-out set, calling
// record(i, liveInOfInstructionI) for the terminator (index
// len(Instructions)) and then for each instruction, and returns the
// resulting live-in set for the whole block.
func backwardPass(b *ir.BasicBlock, liveOut map[string]bool, record func(int, map[string]bool)) map[string]bool {
	cur := copySet(liveOut)
	for _, op := range b.Term.Operands() {
		if op.IsValue() {
			cur[string(op)] = true
		}
	}
	if record != nil {
		record(len(b.Instructions), cur)
	}
	for i := len(b.Instructions) - 1; i >= 0; i-- {
		inst := b.Instructions[i]
		next := copySet(cur)
		if _, isPhi := inst.(*ir.PhiInstruction); !isPhi {
			if d, ok := inst.(ir.Definition); ok {
				delete(next, string(d.Target()))
			}
			for _, op := range inst.Operands() {
				if op.IsValue() {
					next[string(op)] = true
				}
			}
		}
		cur = next
		if record != nil {
			record(i, cur)
		}
	}
	return cur
}

func copySet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
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

// LiveOut returns the set of registers live immediately after
// instruction i of block label executes: the live-in set of whatever
// comes next, whether that's the next instruction or the terminator.
func (a *LiveAnalysis) LiveOut(label string, i int) map[string]bool {
	outs, ok := a.Out[label]
	if !ok || i+1 >= len(outs) {
		return nil
	}
	return outs[i+1]
}

// LiveIn returns the set of registers live immediately before
// instruction i of block label executes (index len(Instructions)
// means the terminator).
func (a *LiveAnalysis) LiveIn(label string, i int) map[string]bool {
	outs, ok := a.Out[label]
	if !ok || i >= len(outs) {
		return nil
	}
	return outs[i]
}

// PhiInAt returns, per parent of block label, the registers
// conditionally live at instruction i because of a phi at or after i -
// empty once i reaches the end of the block's leading phi run.
func (a *LiveAnalysis) PhiInAt(label string, i int) map[string]map[string]bool {
	rows, ok := a.PhiIn[label]
	if !ok || i >= len(rows) {
		return nil
	}
	return rows[i]
}
