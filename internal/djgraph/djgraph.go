// Package djgraph builds the D-edge/J-edge graph (Sreedhar-Gao) used
// for dominance frontier, iterated dominance frontier, and
// incremental dominance maintenance.
package djgraph

import (
	"container/heap"
	"sort"

	"amigo/internal/dom"
	"amigo/internal/ir"
)

// Graph is the D-edges (dominator tree) plus J-edges (non-dominating
// CFG edges) of a CFG, with binary lifting for O(log n) least common
// dominator queries.
type Graph struct {
	cfg  *ir.CFG
	tree *dom.Tree

	level map[string]int
	up    map[string][]string // up[label][k] = 2^k-th ancestor in the dominator tree

	jEdges map[string][]string // label -> CFG children not strictly dominated by label
}

const maxLogLevel = 32

// Build constructs the DJ-graph over every block reachable from the
// CFG's entrypoint.
func Build(cfg *ir.CFG) (*Graph, error) {
	tree, err := dom.Build(cfg)
	if err != nil {
		return nil, err
	}
	g := &Graph{
		cfg:    cfg,
		tree:   tree,
		level:  make(map[string]int),
		up:     make(map[string][]string),
		jEdges: make(map[string][]string),
	}

	preorder := tree.ReachablePreorder()
	for _, l := range preorder {
		g.up[l] = make([]string, maxLogLevel)
	}

	entry := cfg.EntrypointLabel()
	g.level[entry] = 0
	for _, l := range preorder {
		if l == entry {
			continue
		}
		parent, _ := tree.Idom(l)
		g.level[l] = g.level[parent] + 1
	}
	for _, l := range preorder {
		parent, ok := tree.Idom(l)
		if !ok {
			continue
		}
		g.up[l][0] = parent
	}
	for k := 1; k < maxLogLevel; k++ {
		for _, l := range preorder {
			mid := g.up[l][k-1]
			if mid == "" {
				g.up[l][k] = ""
				continue
			}
			g.up[l][k] = g.up[mid][k-1]
		}
	}

	reachable := make(map[string]bool, len(preorder))
	for _, l := range preorder {
		reachable[l] = true
	}
	for _, l := range preorder {
		b := cfg.MustBlock(l)
		for _, child := range b.Children() {
			if !reachable[child] {
				continue
			}
			if !tree.Dominates(l, child) || l == child {
				g.jEdges[l] = append(g.jEdges[l], child)
			}
		}
	}

	return g, nil
}

func (g *Graph) Tree() *dom.Tree { return g.tree }

func (g *Graph) Level(label string) int { return g.level[label] }

// up2 returns the 2^k-th ancestor of label in the dominator tree.
func (g *Graph) up2(label string, k int) string {
	if k >= maxLogLevel {
		return ""
	}
	return g.up[label][k]
}

// LeastCommonDominator returns the lowest block in the dominator
// tree that dominates both a and b.
func (g *Graph) LeastCommonDominator(a, b string) string {
	if g.level[a] < g.level[b] {
		a, b = b, a
	}
	diff := g.level[a] - g.level[b]
	for k := 0; diff > 0; k++ {
		if diff&1 == 1 {
			a = g.up2(a, k)
		}
		diff >>= 1
	}
	if a == b {
		return a
	}
	for k := maxLogLevel - 1; k >= 0; k-- {
		if g.up2(a, k) != g.up2(b, k) {
			a = g.up2(a, k)
			b = g.up2(b, k)
		}
	}
	return g.up2(a, 0)
}

// DominanceFrontier returns the dominance frontier of the union of
// the given blocks.
func (g *Graph) DominanceFrontier(labels ...string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range labels {
		for _, df := range g.dominanceFrontierOf(l) {
			out[df] = true
		}
	}
	return out
}

func (g *Graph) dominanceFrontierOf(label string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(l string)
	walk = func(l string) {
		for _, j := range g.jEdges[l] {
			if j == label || !g.tree.StrictlyDominates(label, j) {
				if !seen[j] {
					seen[j] = true
					out = append(out, j)
				}
			}
		}
		for _, c := range g.tree.Children(l) {
			walk(c)
		}
	}
	walk(label)
	return out
}

// IteratedDominanceFrontier computes IDF(S) via level-bucketed
// ("piggybank") processing: nodes are popped in decreasing dominator
// tree level so each is only ever examined once its entire subtree
// has been.
func (g *Graph) IteratedDominanceFrontier(labels ...string) map[string]bool {
	result := make(map[string]bool)
	inResult := make(map[string]bool)
	inQueue := make(map[string]bool)

	pq := &levelQueue{}
	heap.Init(pq)
	for _, l := range labels {
		if !inQueue[l] {
			inQueue[l] = true
			heap.Push(pq, item{label: l, level: g.level[l]})
		}
	}

	for pq.Len() > 0 {
		it := heap.Pop(pq).(item)
		for df := range g.DominanceFrontier(it.label) {
			if !inResult[df] {
				inResult[df] = true
				result[df] = true
			}
			if !inQueue[df] {
				inQueue[df] = true
				heap.Push(pq, item{label: df, level: g.level[df]})
			}
		}
	}
	return result
}

type item struct {
	label string
	level int
}

// levelQueue pops the highest-level (deepest) item first.
type levelQueue []item

func (q levelQueue) Len() int            { return len(q) }
func (q levelQueue) Less(i, j int) bool  { return q[i].level > q[j].level }
func (q levelQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *levelQueue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *levelQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// InsertEdge returns a DJ-graph rebuilt from scratch over g's CFG as
// it currently stands. from and to are not consulted: the edge must
// already be present in the CFG, and InsertEdge does not add it.
// Dominance is not updated incrementally (Sreedhar-Gao-Lee's
// algorithm is not implemented); each call costs a full rebuild.
func (g *Graph) InsertEdge(from, to string) (*Graph, error) {
	return Build(g.cfg)
}

// SortedLabels is a small helper used by callers that need
// deterministic iteration over a frontier set.
func SortedLabels(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
