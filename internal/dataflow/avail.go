package dataflow

import (
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// AvailAnalysis computes, for every instruction in every block, the
// set of value numbers already computed by the time that instruction
// runs: a forward dataflow over the GVN partition, used by lazy code
// motion to tell "already there" from "needs placing". Grounded on
// the source's AvailAnalysis.
type AvailAnalysis struct {
	// GVN selects which variant numbers the CFG if it hasn't been
	// numbered yet: "rpo", "scc", "gargi", or "any" (use whatever's
	// already there, defaulting to rpo).
	GVN  string
	Bits uint

	// Out[label][i] is the available-in set of instruction i of block
	// label (index len(Instructions) is the available-in of the
	// terminator, i.e. the block's available-out as seen by its
	// successors). Use AvailOut to get the available-out set of a
	// given instruction.
	Out map[string][]exprSet
}

func NewAvailAnalysis(gvnVariant string, bits uint) (*AvailAnalysis, error) {
	if err := validGVNArg(gvnVariant); err != nil {
		return nil, err
	}
	return &AvailAnalysis{GVN: gvnVariant, Bits: bits}, nil
}

func (a *AvailAnalysis) ID() string { return "available" }

func (a *AvailAnalysis) Compute(cfg *ir.CFG, m *pass.Manager) error {
	classes, err := ensureClasses(cfg, m, a.GVN, a.Bits)
	if err != nil {
		return err
	}

	labels := cfg.Labels()
	post := cfg.Postorder()

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

			var in exprSet
			if len(b.Parents) == 0 {
				in = exprSet{}
			} else {
				sets := make([]exprSet, 0, len(b.Parents))
				for p := range b.Parents {
					sets = append(sets, blockOut[p])
				}
				in = intersect(sets...)
			}

			out := in.clone()
			for _, inst := range b.Instructions {
				out = union(out, defset(classes, inst))
			}

			if !in.equal(blockIn[l]) {
				blockIn[l] = in
				changed = true
			}
			if !out.equal(blockOut[l]) {
				blockOut[l] = out
				changed = true
			}
		}
	}

	a.Out = make(map[string][]exprSet, len(labels))
	for _, l := range labels {
		b := cfg.MustBlock(l)
		n := len(b.Instructions) + 1
		outs := make([]exprSet, n)
		cur := blockIn[l]
		outs[0] = cur
		for i, inst := range b.Instructions {
			cur = union(cur, defset(classes, inst))
			outs[i+1] = cur
		}
		a.Out[l] = outs
	}
	return nil
}

// AvailIn returns the set of value numbers available on entry to
// instruction i of block label (index len(Instructions) addresses the
// terminator).
func (a *AvailAnalysis) AvailIn(label string, i int) []*expr.Expr {
	outs, ok := a.Out[label]
	if !ok || i >= len(outs) {
		return nil
	}
	return outs[i].sorted()
}

// AvailOut returns the set of value numbers available immediately
// after instruction i of block label executes.
func (a *AvailAnalysis) AvailOut(label string, i int) []*expr.Expr {
	return a.AvailIn(label, i+1)
}

// BlockAvailIn and BlockAvailOut expose the whole-block boundary sets
// directly (AvailIn/AvailOut at index 0 and len(Instructions)
// respectively), named for callers that only care about block
// granularity.
func (a *AvailAnalysis) BlockAvailIn(label string) []*expr.Expr {
	return a.AvailIn(label, 0)
}

func (a *AvailAnalysis) BlockAvailOut(label string) []*expr.Expr {
	outs, ok := a.Out[label]
	if !ok || len(outs) == 0 {
		return nil
	}
	return outs[len(outs)-1].sorted()
}
