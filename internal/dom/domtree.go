// Package dom computes dominator trees with the Lengauer-Tarjan
// algorithm.
package dom

import "amigo/internal/ir"

// Tree is the dominator tree of a CFG: for every reachable block
// other than the entrypoint, its immediate dominator.
type Tree struct {
	cfg      *ir.CFG
	idom     map[string]string
	hasIdom  map[string]bool
	children map[string][]string
	order    []string // DFS preorder from the entrypoint (Lengauer-Tarjan's vertex numbering)
}

// Build runs Lengauer-Tarjan over the blocks reachable from the
// CFG's entrypoint. Unreachable blocks have no entry in the tree and
// are treated as never dominating or being dominated by anything.
func Build(cfg *ir.CFG) (*Tree, error) {
	if cfg.Entrypoint() == nil {
		return nil, &ir.NoEntryPointError{}
	}

	t := &Tree{
		cfg:      cfg,
		idom:     make(map[string]string),
		hasIdom:  make(map[string]bool),
		children: make(map[string][]string),
	}

	vertex := []string{}
	semi := make(map[string]int)
	parent := make(map[string]string)
	dfsDone := make(map[string]bool)

	var dfs func(label string)
	dfs = func(label string) {
		semi[label] = len(vertex)
		vertex = append(vertex, label)
		dfsDone[label] = true
		b := cfg.MustBlock(label)
		for _, child := range b.Children() {
			if dfsDone[child] {
				continue
			}
			parent[child] = label
			dfs(child)
		}
	}
	dfs(cfg.EntrypointLabel())

	ancestor := make(map[string]string)
	label := make(map[string]string)
	for _, v := range vertex {
		label[v] = v
	}

	var compress func(v string)
	compress = func(v string) {
		a := ancestor[v]
		if a == "" {
			return
		}
		if ga, ok := ancestor[a]; ok && ga != "" {
			compress(a)
			if semi[label[a]] < semi[label[v]] {
				label[v] = label[a]
			}
			ancestor[v] = ancestor[a]
		}
	}

	eval := func(v string) string {
		if ancestor[v] == "" {
			return label[v]
		}
		compress(v)
		return label[v]
	}

	link := func(p, c string) {
		ancestor[c] = p
	}

	bucket := make(map[string][]string)
	idom := make(map[string]string)

	for i := len(vertex) - 1; i >= 1; i-- {
		w := vertex[i]
		b := cfg.MustBlock(w)
		for pred := range b.Parents {
			if _, seen := semi[pred]; !seen {
				continue // unreachable predecessor
			}
			u := eval(pred)
			if semi[u] < semi[w] {
				semi[w] = semi[u]
			}
		}
		bucket[vertex[semi[w]]] = append(bucket[vertex[semi[w]]], w)
		link(parent[w], w)

		p := parent[w]
		for _, v := range bucket[p] {
			u := eval(v)
			if semi[u] < semi[v] {
				idom[v] = u
			} else {
				idom[v] = p
			}
		}
		bucket[p] = nil
	}

	for i := 1; i < len(vertex); i++ {
		w := vertex[i]
		if idom[w] != vertex[semi[w]] {
			idom[w] = idom[idom[w]]
		}
	}

	for i := 1; i < len(vertex); i++ {
		w := vertex[i]
		t.idom[w] = idom[w]
		t.hasIdom[w] = true
		t.children[idom[w]] = append(t.children[idom[w]], w)
	}
	t.order = vertex

	return t, nil
}

// Idom returns the immediate dominator of block, and whether it has
// one (the entrypoint and unreachable blocks do not).
func (t *Tree) Idom(label string) (string, bool) {
	l, ok := t.hasIdom[label]
	if !ok || !l {
		return "", false
	}
	return t.idom[label], true
}

// Children returns the dominator-tree children of block.
func (t *Tree) Children(label string) []string {
	return t.children[label]
}

// Dominates reports whether a dominates b (reflexively: a dominates
// a).
func (t *Tree) Dominates(a, b string) bool {
	for {
		if a == b {
			return true
		}
		idom, ok := t.Idom(b)
		if !ok {
			return false
		}
		b = idom
	}
}

// StrictlyDominates reports whether a dominates b and a != b.
func (t *Tree) StrictlyDominates(a, b string) bool {
	return a != b && t.Dominates(a, b)
}

// ReachablePreorder returns the blocks reachable from the
// entrypoint, in DFS preorder (the order computed during
// construction).
func (t *Tree) ReachablePreorder() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}
