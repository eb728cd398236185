package gvn

import (
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// RPO is iterative global value numbering over reverse postorder: it
// repeatedly recomputes every definition's canonical expression from
// the partition's current state until a full pass leaves nothing
// changed. Grounded on the source's simpson.RPO.
type RPO struct {
	Mode string // "var" or "expr"
	Bits uint
}

// NewRPO validates mode up front so a bad config fails at
// construction rather than partway through a pass.
func NewRPO(mode string, bits uint) (*RPO, error) {
	if mode != "var" && mode != "expr" {
		return nil, &BadModeError{Mode: mode}
	}
	return &RPO{Mode: mode, Bits: bits}, nil
}

func (p *RPO) ID() string { return "gvn-rpo" }

func (p *RPO) Apply(cfg *ir.CFG, m *pass.Manager) ([]string, error) {
	if _, err := m.Require("ssa"); err != nil {
		return nil, err
	}

	unknown := expr.Atom("?", p.Bits)
	rpo := cfg.Postorder()
	for i, j := 0, len(rpo)-1; i < j; i, j = i+1, j-1 {
		rpo[i], rpo[j] = rpo[j], rpo[i]
	}

	vn := make(map[string]*expr.Expr)
	for {
		changed := false
		lookup := make(map[string]*expr.Expr)
		get := vnLookup(vn, unknown, p.Bits)
		for _, label := range rpo {
			b := cfg.MustBlock(label)
			for _, inst := range b.Instructions {
				target, candidate, ok := candidateExpr(inst, get, p.Bits)
				if !ok {
					continue
				}
				value := commit(p.Mode, target, candidate, lookup, p.Bits)
				if old, seen := vn[target]; !seen || !old.Equal(value) {
					vn[target] = value
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	writeClasses(cfg, vn)
	return []string{"ssa", p.ID()}, nil
}

// Classes loads the partition this pass recorded; call after running
// the pass through a pass.Manager.
func (p *RPO) Classes(cfg *ir.CFG) (*Classes, error) {
	return readClasses(cfg, p.Bits)
}
