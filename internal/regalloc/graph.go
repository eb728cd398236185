package regalloc

import (
	"sort"

	"amigo/internal/ir"
	"amigo/internal/pass"
)

// interferenceGraph is the register interference graph built from
// live-range overlap, keyed by group key: initially every key is a
// single register's own name, and coalescing during
// simplifyCoalesceFreeze merges two keys into one, recording every
// register a merged key now stands for in members.
type interferenceGraph struct {
	adj     map[string]map[string]bool // group key -> interfering group keys
	copies  map[string]map[string]bool // group key -> copy-related group keys, coalescing candidates
	members map[string][]string        // group key -> the original registers it stands for, sorted
}

func newInterferenceGraph() *interferenceGraph {
	return &interferenceGraph{
		adj:     make(map[string]map[string]bool),
		copies:  make(map[string]map[string]bool),
		members: make(map[string][]string),
	}
}

func (g *interferenceGraph) addNode(reg string) {
	if _, ok := g.members[reg]; ok {
		return
	}
	g.adj[reg] = make(map[string]bool)
	g.copies[reg] = make(map[string]bool)
	g.members[reg] = []string{reg}
}

func (g *interferenceGraph) addEdge(a, b string) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.adj[a][b] = true
	g.adj[b][a] = true
}

func (g *interferenceGraph) addCopy(a, b string) {
	if a == b {
		return
	}
	g.addNode(a)
	g.addNode(b)
	g.copies[a][b] = true
	g.copies[b][a] = true
}

// buildInterferenceGraph walks every instruction once, consulting
// live's live-in and phi-conditional live-in sets exactly as the
// source's RR constructor does in its Step 1, and records mov/phi
// register-to-register assignments as coalescing candidates. It also
// returns the largest number of registers simultaneously live at any
// one program point, the minimum colour count that can possibly avoid
// spilling.
func buildInterferenceGraph(cfg *ir.CFG, live *pass.LiveAnalysis) (*interferenceGraph, int) {
	g := newInterferenceGraph()
	minRegs := 0

	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		n := len(b.Instructions)
		for i := 0; i <= n; i++ {
			regsList := sortedKeys(live.LiveIn(label, i))
			for _, r := range regsList {
				g.addNode(r)
			}
			for a := 0; a < len(regsList); a++ {
				for c := a + 1; c < len(regsList); c++ {
					g.addEdge(regsList[a], regsList[c])
				}
			}
			if len(regsList) > minRegs {
				minRegs = len(regsList)
			}

			if i == n {
				continue
			}
			phiIn := live.PhiInAt(label, i)
			for _, parent := range sortedParents(phiIn) {
				condList := sortedKeys(phiIn[parent])
				for _, r := range condList {
					g.addNode(r)
				}
				combined := len(unionCount(regsList, condList))
				if combined > minRegs {
					minRegs = combined
				}
				for _, u := range regsList {
					for _, v := range condList {
						g.addEdge(u, v)
					}
				}
				for a := 0; a < len(condList); a++ {
					for c := a + 1; c < len(condList); c++ {
						g.addEdge(condList[a], condList[c])
					}
				}
			}
		}

		for _, inst := range b.Instructions {
			switch ins := inst.(type) {
			case *ir.MovInstruction:
				if ins.Src.IsValue() && ins.Tgt != ins.Src {
					g.addCopy(string(ins.Tgt), string(ins.Src))
				}
			case *ir.PhiInstruction:
				for _, arg := range ins.Args {
					if arg.Value.IsValue() && arg.Value != ins.Tgt {
						g.addCopy(string(ins.Tgt), string(arg.Value))
					}
				}
			}
		}
	}
	return g, minRegs
}

// sortedParents returns m's keys (predecessor labels) in a fixed
// order.
func sortedParents(m map[string]map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// unionCount returns the distinct elements of a and b together, used
// only to size the minimum-colour-count estimate.
func unionCount(a, b []string) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for _, x := range a {
		out[x] = true
	}
	for _, x := range b {
		out[x] = true
	}
	return out
}
