// Package vdcm implements Simpson's value-driven lazy code motion
// (PhD thesis section 7.1): given availability and anticipatability
// over a GVN partition, it computes the latest-safe, earliest-legal
// placement for every computed expression, splits whatever critical
// edges an insertion lands on, and rewrites the CFG to match.
package vdcm

import (
	"fmt"
	"sort"

	"amigo/internal/expr"
)

// BadArgumentError reports a GVN-variant selector outside the
// recognised set.
type BadArgumentError struct{ Value string }

func (e *BadArgumentError) Error() string {
	return fmt.Sprintf(`vdcm: gvn must be one of "rpo", "scc", or "any", got %q`, e.Value)
}

func validGVNArg(v string) error {
	switch v {
	case "rpo", "scc", "any":
		return nil
	default:
		return &BadArgumentError{Value: v}
	}
}

// exprSet mirrors internal/dataflow's set-by-Polish-key representation;
// kept as a small local duplicate rather than exported from
// internal/dataflow; the two packages' notion of "set of expressions"
// is an implementation detail of each, not a shared public type.
type exprSet map[string]*expr.Expr

func toSet(es []*expr.Expr) exprSet {
	out := make(exprSet, len(es))
	for _, e := range es {
		out[e.Polish()] = e
	}
	return out
}

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

func intersect(a, b exprSet) exprSet {
	out := exprSet{}
	for k, v := range a {
		if _, ok := b[k]; ok {
			out[k] = v
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

func filterKeep(s exprSet) exprSet {
	out := exprSet{}
	for k, e := range s {
		if keep(e) {
			out[k] = e
		}
	}
	return out
}

// keep reports whether an expression is a candidate for code motion
// at all: constants, atoms (unresolved register references), and phi
// values are never moved or deleted, only genuine operator
// expressions are.
func keep(e *expr.Expr) bool {
	return e.Kind == expr.KindOp && e.Op != expr.OpPhi
}
