// Package regalloc reallocates a CFG's value registers onto a fixed
// number of machine registers, spilling what doesn't fit. Grounded on
// the source's Briggs-style colouring pass (opt/reg_realloc.py).
package regalloc

import (
	"sort"

	"amigo/internal/ir"
	"amigo/internal/pass"
)

// RR reallocates registers via simplify/coalesce/freeze/colour, the
// Chaitin-Briggs scheme described in Briggs, Cooper, Torczon,
// "Improvements to Graph Colouring Register Allocation" (1994).
type RR struct {
	// NumReg is the number of machine registers available for
	// colouring; any value that needs more is spilled (assigned a
	// colour >= NumReg and left alone - this pass never actually
	// generates spill code, matching the source, which only reports
	// the spill count).
	NumReg int

	// Spilled is set by the most recent Apply to the number of
	// distinct values that didn't fit in NumReg colours.
	Spilled int
}

func New(numReg int) *RR { return &RR{NumReg: numReg} }

func (p *RR) ID() string { return "reg-realloc" }

func (p *RR) Apply(cfg *ir.CFG, m *pass.Manager) ([]string, error) {
	liveAny, err := m.Require("live")
	if err != nil {
		return nil, err
	}
	live := liveAny.(*pass.LiveAnalysis)

	rig, minRegs := buildInterferenceGraph(cfg, live)
	target := p.NumReg
	if minRegs > target {
		target = minRegs
	}
	stack := simplifyCoalesceFreeze(rig, target)
	col, spilled := colour(rig, stack, target)
	p.Spilled = spilled

	changed := rewrite(cfg, col)

	if changed {
		return []string{"reg-realloc"}, nil
	}
	return []string{"reg-realloc", "live", "ssa"}, nil
}

// stackEntry records a node popped off the RIG during simplification,
// together with the neighbours it had at that moment (which, by
// construction, are coloured before it is: see colour).
type stackEntry struct {
	key        string
	neighbours []string
}

// sortedKeys returns m's keys in a fixed order, for deterministic
// iteration over what would otherwise be a randomly-ordered map.
func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
