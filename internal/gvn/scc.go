package gvn

import (
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// SCC is global value numbering driven by Tarjan's strongly-connected
// component decomposition of the def-use graph (registers as nodes,
// an edge from a definition to each defined register it reads).
// Acyclic code reduces to singleton components, each numbered in one
// shot; a nontrivial component (necessarily phi-induced) is first
// iterated to a local fixpoint before any of its members commits a
// value number, and only then folded into the permanent partition.
// Grounded on the source's simpson.SCC.
type SCC struct {
	Mode string
	Bits uint
}

func NewSCC(mode string, bits uint) (*SCC, error) {
	if mode != "var" && mode != "expr" {
		return nil, &BadModeError{Mode: mode}
	}
	return &SCC{Mode: mode, Bits: bits}, nil
}

func (p *SCC) ID() string { return "gvn-scc" }

func (p *SCC) Apply(cfg *ir.CFG, m *pass.Manager) ([]string, error) {
	if _, err := m.Require("ssa"); err != nil {
		return nil, err
	}

	defOf := make(map[string]ir.Instruction)
	var nodes []string
	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		for _, inst := range b.Instructions {
			d, ok := inst.(ir.Definition)
			if !ok {
				continue
			}
			reg := string(d.Target())
			if _, seen := defOf[reg]; !seen {
				nodes = append(nodes, reg)
			}
			defOf[reg] = inst
		}
	}

	deps := func(reg string) []string {
		inst := defOf[reg]
		var out []string
		for _, op := range inst.Operands() {
			if !op.IsValue() {
				continue
			}
			if _, ok := defOf[string(op)]; ok {
				out = append(out, string(op))
			}
		}
		return out
	}

	sccs := tarjanSCCs(nodes, deps)

	unknown := expr.Atom("?", p.Bits)
	valid := make(map[string]*expr.Expr)
	lookup := make(map[string]*expr.Expr)

	for _, scc := range sccs {
		if len(scc) == 1 {
			reg := scc[0]
			get := vnLookup(valid, unknown, p.Bits)
			_, candidate, ok := candidateExpr(defOf[reg], get, p.Bits)
			if !ok {
				continue
			}
			valid[reg] = commit(p.Mode, reg, candidate, lookup, p.Bits)
			continue
		}

		optimistic := make(map[string]*expr.Expr)
		optLookup := make(map[string]*expr.Expr)
		get := func(r ir.Register) *expr.Expr {
			if r.IsInt() {
				n, _ := r.Int()
				return expr.IntN(n, p.Bits)
			}
			if v, ok := optimistic[string(r)]; ok {
				return v
			}
			if v, ok := valid[string(r)]; ok {
				return v
			}
			return unknown
		}

		for {
			changed := false
			for _, reg := range scc {
				_, candidate, ok := candidateExpr(defOf[reg], get, p.Bits)
				if !ok {
					continue
				}
				value := commit(p.Mode, reg, candidate, optLookup, p.Bits)
				if old, seen := optimistic[reg]; !seen || !old.Equal(value) {
					optimistic[reg] = value
					changed = true
				}
			}
			if !changed {
				break
			}
		}

		for _, reg := range scc {
			_, candidate, ok := candidateExpr(defOf[reg], get, p.Bits)
			if !ok {
				continue
			}
			valid[reg] = commit(p.Mode, reg, candidate, lookup, p.Bits)
		}
	}

	writeClasses(cfg, valid)
	return []string{"ssa", p.ID()}, nil
}

// Classes loads the partition this pass recorded; call after running
// the pass through a pass.Manager.
func (p *SCC) Classes(cfg *ir.CFG) (*Classes, error) {
	return readClasses(cfg, p.Bits)
}

// tarjanSCCs decomposes the graph given by nodes and a successor
// function into strongly-connected components, returned in reverse
// topological order of the condensation: a component is emitted only
// after every component it depends on, matching Tarjan's standard
// low-link formulation.
func tarjanSCCs(nodes []string, succ func(string) []string) [][]string {
	index := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	counter := 0
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ(v) {
			if _, visited := index[w]; !visited {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var comp []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for _, v := range nodes {
		if _, visited := index[v]; !visited {
			strongconnect(v)
		}
	}
	return sccs
}
