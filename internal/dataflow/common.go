// Package dataflow implements the two flow analyses lazy code motion
// needs on top of a GVN partition: availability (what's already
// computed looking forward) and anticipatability (what will be needed
// looking backward), plus the "earliest" insertion point they jointly
// determine for every edge.
package dataflow

import (
	"fmt"
	"sort"

	"amigo/internal/expr"
	"amigo/internal/gvn"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// BadArgumentError reports a GVN-variant selector outside the
// recognised set.
type BadArgumentError struct{ Value string }

func (e *BadArgumentError) Error() string {
	return fmt.Sprintf(`dataflow: gvn must be one of "rpo", "scc", "gargi", or "any", got %q`, e.Value)
}

func validGVNArg(v string) error {
	switch v {
	case "rpo", "scc", "gargi", "any":
		return nil
	default:
		return &BadArgumentError{Value: v}
	}
}

// ensureClasses runs the chosen GVN variant (in "expr" mode, where
// applicable) if no value-number partition is recorded yet, then
// loads it. "any" and an already-satisfied request both just load
// whatever partition is already on the CFG, mirroring how the source
// treats every GVN flavour as populating the same "classes" slot.
func ensureClasses(cfg *ir.CFG, m *pass.Manager, which string, bits uint) (*gvn.Classes, error) {
	if !cfg.Metadata.Has("classes") {
		var p pass.Pass
		switch which {
		case "scc":
			scc, err := gvn.NewSCC("expr", bits)
			if err != nil {
				return nil, err
			}
			p = scc
		case "gargi":
			p = gvn.NewGargi(bits)
		default: // "rpo", "any"
			rpo, err := gvn.NewRPO("expr", bits)
			if err != nil {
				return nil, err
			}
			p = rpo
		}
		if err := m.Run(p); err != nil {
			return nil, err
		}
	}
	return gvn.LoadClasses(cfg, bits)
}

// exprSet is a set of expressions keyed by Polish form, letting plain
// map operations stand in for the source's set algebra.
type exprSet map[string]*expr.Expr

func singleton(e *expr.Expr) exprSet { return exprSet{e.Polish(): e} }

func (s exprSet) clone() exprSet {
	out := make(exprSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s exprSet) equal(o exprSet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

func (s exprSet) sorted() []*expr.Expr {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*expr.Expr, len(keys))
	for i, k := range keys {
		out[i] = s[k]
	}
	return out
}

func union(a, b exprSet) exprSet {
	out := a.clone()
	for k, v := range b {
		out[k] = v
	}
	return out
}

func intersect(sets ...exprSet) exprSet {
	if len(sets) == 0 {
		return exprSet{}
	}
	out := sets[0].clone()
	for _, s := range sets[1:] {
		for k := range out {
			if _, ok := s[k]; !ok {
				delete(out, k)
			}
		}
	}
	return out
}

func sub(a, b exprSet) exprSet {
	out := make(exprSet, len(a))
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func defset(classes *gvn.Classes, inst ir.Instruction) exprSet {
	d, ok := inst.(ir.Definition)
	if !ok {
		return exprSet{}
	}
	return singleton(classes.Get(d.Target()))
}
