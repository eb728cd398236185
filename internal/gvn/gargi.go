package gvn

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"amigo/internal/dom"
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
	"amigo/internal/predicate"
)

// Gargi is predicated global value numbering: it grows a reachable
// subgraph of the CFG one edge at a time, tracking for every
// reachable block and edge the conjunction of comparisons that must
// hold to reach it, and simplifies every definition against that
// conjunction before numbering it. Changing a definition's value
// re-triggers every instruction that reads it; changing a block's
// reachability predicate re-triggers its terminator, which can in
// turn discover new reachable blocks or change a phi node's effective
// input. Work items are processed in reverse-postorder order so a
// block's predicate is settled before its own definitions are, and
// touches propagate until none remain. Grounded on the source's
// gargi.GVN.
type Gargi struct {
	Bits uint
}

func NewGargi(bits uint) *Gargi { return &Gargi{Bits: bits} }

func (p *Gargi) ID() string { return "gargi-gvn" }

// touchItem names a unit of re-examination: idx == -1 means "recompute
// this block's reachability predicate", idx == len(block.Instructions)
// means its terminator, anything else an instruction index.
type touchItem struct{ rpo, idx int }

type touchHeap []touchItem

func (h touchHeap) Len() int { return len(h) }
func (h touchHeap) Less(i, j int) bool {
	if h[i].rpo != h[j].rpo {
		return h[i].rpo < h[j].rpo
	}
	return h[i].idx < h[j].idx
}
func (h touchHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *touchHeap) Push(x any)   { *h = append(*h, x.(touchItem)) }
func (h *touchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type edgeKey struct{ from, to string }

type phiUse struct {
	idx int
	val ir.Register
}

// phiEdgeEntry remembers, for one (phi target, incoming block) pair,
// the predicated state along that edge and a stable key summarising
// which comparisons that state depends on - a stand-in for the
// source's `predicate.expr(support)`, adequate here because it is
// only ever used to detect when an edge's effective condition has
// changed, never fed back into further simplification.
type phiEdgeEntry struct {
	state *predicate.PredicatedState
	key   string
}

type gargiState struct {
	bits      uint
	cfg       *ir.CFG
	reachable *ir.CFG
	domTree   *dom.Tree
	domStale  bool

	rpoNum map[string]int
	rpoOf  []string
	rpoReg map[string]int

	use    map[string]map[touchItem]bool
	phivar map[edgeKey][]phiUse

	vn map[string]*expr.Expr

	touched  touchHeap
	touchSet map[touchItem]bool

	predBlock     map[string]*predicate.PredicatedState
	predSuppBlock map[string]map[string]*expr.Expr
	predEdge      map[edgeKey]*predicate.PredicatedState
	predSuppEdge  map[edgeKey]map[string]*expr.Expr

	phi    map[string]map[string]phiEdgeEntry
	phiRep map[string]*expr.Expr
}

func (p *Gargi) Apply(cfg *ir.CFG, m *pass.Manager) ([]string, error) {
	if _, err := m.Require("ssa"); err != nil {
		return nil, err
	}

	entry := cfg.EntrypointLabel()
	reachable := ir.NewCFG()
	if _, err := reachable.AddBlock(entry); err != nil {
		return nil, err
	}

	g := &gargiState{
		bits:          p.Bits,
		cfg:           cfg,
		reachable:     reachable,
		domStale:      true,
		rpoNum:        make(map[string]int),
		rpoReg:        make(map[string]int),
		use:           make(map[string]map[touchItem]bool),
		phivar:        make(map[edgeKey][]phiUse),
		vn:            make(map[string]*expr.Expr),
		touchSet:      make(map[touchItem]bool),
		predBlock:     make(map[string]*predicate.PredicatedState),
		predSuppBlock: make(map[string]map[string]*expr.Expr),
		predEdge:      make(map[edgeKey]*predicate.PredicatedState),
		predSuppEdge:  make(map[edgeKey]map[string]*expr.Expr),
		phi:           make(map[string]map[string]phiEdgeEntry),
		phiRep:        make(map[string]*expr.Expr),
	}

	g.numberAndIndex()
	g.seedEntry()

	for g.touched.Len() > 0 {
		item := heap.Pop(&g.touched).(touchItem)
		delete(g.touchSet, item)
		label := g.rpoOf[item.rpo]
		if _, ok := g.reachable.Block(label); !ok {
			continue
		}
		if item.idx == -1 {
			g.recomputePredicate(label)
			continue
		}
		b := g.cfg.MustBlock(label)
		if item.idx == len(b.Instructions) {
			g.processTerminator(label, b)
			continue
		}
		inst := b.Instructions[item.idx]
		if d, ok := inst.(ir.Definition); ok {
			g.updateValueNumber(d, g.predBlock[label])
		}
	}

	changed := false
	for _, label := range cfg.Labels() {
		if _, ok := reachable.Block(label); !ok {
			changed = true
			if err := cfg.RemoveBlock(label); err != nil {
				return nil, err
			}
		}
	}
	if changed {
		if err := cfg.Tidy(); err != nil {
			return nil, err
		}
	}

	writeClasses(cfg, g.vn)

	return []string{"ssa", p.ID()}, nil
}

// Classes loads the partition this pass recorded; call after running
// the pass through a pass.Manager.
func (p *Gargi) Classes(cfg *ir.CFG) (*Classes, error) {
	return readClasses(cfg, p.Bits)
}

func (g *gargiState) numberAndIndex() {
	for _, label := range reverseOf(g.cfg.Postorder()) {
		g.rpoNum[label] = len(g.rpoOf)
		g.rpoOf = append(g.rpoOf, label)
		b := g.cfg.MustBlock(label)
		for idx, inst := range b.Instructions {
			if d, ok := inst.(ir.Definition); ok {
				g.rpoReg[string(d.Target())] = len(g.rpoReg)
			}
			var uses []ir.Register
			if phi, ok := inst.(*ir.PhiInstruction); ok {
				for _, a := range phi.Args {
					uses = append(uses, a.Value)
					key := edgeKey{a.Label, label}
					g.phivar[key] = append(g.phivar[key], phiUse{idx: idx, val: a.Value})
				}
			} else {
				uses = inst.Operands()
			}
			for _, u := range uses {
				if u.IsValue() {
					g.recordUse(string(u), touchItem{rpo: g.rpoNum[label], idx: idx})
				}
			}
		}
		if br, ok := b.Term.(*ir.BranchTerminator); ok {
			g.recordUse(string(br.Cond), touchItem{rpo: g.rpoNum[label], idx: len(b.Instructions)})
		}
	}
}

func (g *gargiState) recordUse(reg string, item touchItem) {
	if g.use[reg] == nil {
		g.use[reg] = make(map[touchItem]bool)
	}
	g.use[reg][item] = true
}

func reverseOf(ls []string) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[len(ls)-1-i] = l
	}
	return out
}

func (g *gargiState) seedEntry() {
	entry := g.cfg.EntrypointLabel()
	g.touch(entry, -1)
	b := g.cfg.MustBlock(entry)
	for idx := 0; idx <= len(b.Instructions); idx++ {
		g.touch(entry, idx)
	}
}

func (g *gargiState) touch(label string, idx int) {
	item := touchItem{rpo: g.rpoNum[label], idx: idx}
	if g.touchSet[item] {
		return
	}
	g.touchSet[item] = true
	heap.Push(&g.touched, item)
}

func (g *gargiState) ensureDom() *dom.Tree {
	if g.domStale {
		t, err := dom.Build(g.reachable)
		if err != nil {
			panic(err)
		}
		g.domTree = t
		g.domStale = false
	}
	return g.domTree
}

// addReachableChild records an edge in the dummy reachable CFG,
// upgrading its terminator shape (exit -> goto -> branch) as needed.
// Idempotent: re-adding an edge that's already present is a no-op.
func (g *gargiState) addReachableChild(from, to string) error {
	b := g.reachable.MustBlock(from)
	switch t := b.Term.(type) {
	case *ir.ExitTerminator:
		if err := g.reachable.SetGoto(from, to); err != nil {
			return err
		}
	case *ir.GotoTerminator:
		if t.TargetLabel == to {
			return nil
		}
		if err := g.reachable.SetBranch(from, ir.Register("%_gargi"), t.TargetLabel, to); err != nil {
			return err
		}
	case *ir.BranchTerminator:
		if t.IfTrue == to || t.IfFalse == to {
			return nil
		}
		// Arity-2 CFG blocks never need a third distinct child.
		return nil
	}
	g.domStale = true
	return nil
}

func (g *gargiState) getVN(r ir.Register) *expr.Expr {
	if r.IsInt() {
		n, _ := r.Int()
		return expr.IntN(n, g.bits)
	}
	if v, ok := g.vn[string(r)]; ok {
		return v
	}
	return expr.Atom("?", g.bits)
}

func (g *gargiState) atomicReg(reg string) *expr.Expr {
	return expr.Atom(fmt.Sprintf("%%%d", g.rpoReg[reg]), g.bits)
}

func (g *gargiState) recomputePredicate(label string) {
	rb := g.reachable.MustBlock(label)
	switch len(rb.Parents) {
	case 0:
		g.predBlock[label] = predicate.NewPredicatedState()
		g.predSuppBlock[label] = map[string]*expr.Expr{}
	case 1:
		var parent string
		for p := range rb.Parents {
			parent = p
		}
		key := edgeKey{parent, label}
		g.predBlock[label] = g.predEdge[key]
		g.predSuppBlock[label] = g.predSuppEdge[key]
	default:
		idom, _ := g.ensureDom().Idom(label)
		g.predBlock[label] = g.predBlock[idom]
		g.predSuppBlock[label] = g.predSuppBlock[idom]
	}
	b := g.cfg.MustBlock(label)
	g.touch(label, len(b.Instructions))
}

func (g *gargiState) processTerminator(label string, b *ir.BasicBlock) {
	state := g.predBlock[label]
	switch t := b.Term.(type) {
	case *ir.ExitTerminator:
		return
	case *ir.GotoTerminator:
		key := edgeKey{label, t.TargetLabel}
		g.predEdge[key] = state
		g.predSuppEdge[key] = map[string]*expr.Expr{}
	case *ir.BranchTerminator:
		cond := state.Simplify(g.getVN(t.Cond))

		iftrue := state.Copy()
		iftrue.AssertNonzero(cond)
		if iftrue.Consistent() {
			key := edgeKey{label, t.IfTrue}
			g.predEdge[key] = iftrue
			g.predSuppEdge[key] = condArgSet(cond)
		}

		iffalse := state.Copy()
		iffalse.AssertZero(cond)
		if iffalse.Consistent() {
			key := edgeKey{label, t.IfFalse}
			g.predEdge[key] = iffalse
			g.predSuppEdge[key] = condArgSet(cond)
		}
	}

	for _, child := range b.Children() {
		key := edgeKey{label, child}
		if _, ok := g.predEdge[key]; !ok {
			continue
		}

		if _, ok := g.reachable.Block(child); !ok {
			if _, err := g.reachable.AddBlock(child); err != nil {
				panic(err)
			}
			g.domStale = true
			g.touch(child, -1)
			cb := g.cfg.MustBlock(child)
			for idx := 0; idx <= len(cb.Instructions); idx++ {
				g.touch(child, idx)
			}
		}

		if err := g.addReachableChild(label, child); err != nil {
			panic(err)
		}

		idom, _ := g.ensureDom().Idom(child)
		for _, pv := range g.phivar[key] {
			suppPath := g.condSupport(label, idom)
			for k, v := range g.predSuppEdge[key] {
				suppPath[k] = v
			}
			edgeState := g.predEdge[key]
			condKey := setKey(suppPath)

			target := string(g.cfg.MustBlock(child).Instructions[pv.idx].(*ir.PhiInstruction).Tgt)
			if g.phi[target] == nil {
				g.phi[target] = make(map[string]phiEdgeEntry)
			}
			prev, has := g.phi[target][label]
			if !has || prev.key != condKey {
				g.phi[target][label] = phiEdgeEntry{state: edgeState, key: condKey}
				g.touch(child, pv.idx)
			}
		}
	}
}

// condSupport walks from cur up to (but not including) dominator
// along single-parent reachable edges, collecting the support sets
// recorded for each edge traversed; it falls back to the immediate
// dominator once a merge point is hit.
func (g *gargiState) condSupport(cur, dominator string) map[string]*expr.Expr {
	out := map[string]*expr.Expr{}
	if cur == dominator {
		return out
	}
	rb := g.reachable.MustBlock(cur)
	if len(rb.Parents) == 1 {
		var parent string
		for p := range rb.Parents {
			parent = p
		}
		out = g.condSupport(parent, dominator)
		for k, v := range g.predSuppEdge[edgeKey{parent, cur}] {
			out[k] = v
		}
		return out
	}
	idom, _ := g.ensureDom().Idom(cur)
	return g.condSupport(idom, dominator)
}

// condArgSet mirrors the source's _cond_args: the leaves a condition
// expression should be treated as depending on, for support-set
// bookkeeping purposes.
func condArgSet(cond *expr.Expr) map[string]*expr.Expr {
	out := map[string]*expr.Expr{}
	var collect func(e *expr.Expr)
	collect = func(e *expr.Expr) {
		switch {
		case e.Kind != expr.KindOp:
			out[e.Polish()] = e
		case e.Op == expr.OpEq || e.Op == expr.OpNeq || e.Op == expr.OpLt || e.Op == expr.OpLeq:
			collect(e.Args[len(e.Args)-1])
		default:
			for _, a := range e.Args {
				out[a.Polish()] = a
			}
		}
	}
	collect(cond)
	return out
}

func setKey(set map[string]*expr.Expr) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}

func (g *gargiState) updateValueNumber(d ir.Definition, state *predicate.PredicatedState) {
	var value *expr.Expr
	switch i := d.(type) {
	case *ir.BinaryInstruction:
		value = state.Simplify(expr.Build(toExprOp[i.Op], g.bits, g.getVN(i.Left), g.getVN(i.Right)))
	case *ir.MovInstruction:
		value = g.getVN(i.Src)
	case *ir.PhiInstruction:
		type phiArg struct {
			val *expr.Expr
			key string
		}
		var args []phiArg
		for _, a := range i.Args {
			entry, ok := g.phi[string(i.Tgt)][a.Label]
			if !ok {
				continue
			}
			args = append(args, phiArg{val: entry.state.Simplify(g.getVN(a.Value)), key: entry.key})
		}
		sort.Slice(args, func(a, b int) bool {
			if c := args[a].val.Compare(args[b].val); c != 0 {
				return c < 0
			}
			return args[a].key < args[b].key
		})
		var keyParts []string
		for _, a := range args {
			keyParts = append(keyParts, a.val.Polish()+"~"+a.key)
		}
		repKey := strings.Join(keyParts, ";")
		if rep, ok := g.phiRep[repKey]; ok {
			value = rep
		} else {
			value = g.atomicReg(string(i.Tgt))
			g.phiRep[repKey] = value
		}
	case *ir.ReadInstruction:
		value = g.atomicReg(string(i.Target()))
	default:
		return
	}

	if value.Equal(g.getVN(d.Target())) {
		return
	}
	g.vn[string(d.Target())] = value
	for item := range g.use[string(d.Target())] {
		g.touch(g.rpoOf[item.rpo], item.idx)
	}
}
