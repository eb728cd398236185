package vdcm

import (
	"fmt"
	"sort"

	"amigo/internal/dataflow"
	"amigo/internal/dom"
	"amigo/internal/expr"
	"amigo/internal/gvn"
	"amigo/internal/ir"
	"amigo/internal/pass"
)

// VDCM reorganises computations of expressions to minimise (partial)
// redundancy via value-based lazy code motion. Grounded on the
// source's VDCM (opt/gvn/code_motion.py).
//
// VDCM requires an AvailAnalysis and an Anticipate already registered
// on the Manager under their usual IDs ("available", "anticipatable"),
// configured with the same GVN variant this pass is given - the same
// wiring convention pass.DCE uses for "live".
type VDCM struct {
	GVN  string
	Bits uint
}

func New(gvnVariant string, bits uint) (*VDCM, error) {
	if err := validGVNArg(gvnVariant); err != nil {
		return nil, err
	}
	return &VDCM{GVN: gvnVariant, Bits: bits}, nil
}

func (p *VDCM) ID() string { return "vdcm" }

type edgeKey struct{ from, to string }

func (p *VDCM) Apply(cfg *ir.CFG, m *pass.Manager) ([]string, error) {
	availAny, err := m.Require("available")
	if err != nil {
		return nil, err
	}
	avail := availAny.(*dataflow.AvailAnalysis)

	anticAny, err := m.Require("anticipatable")
	if err != nil {
		return nil, err
	}
	antic := anticAny.(*dataflow.Anticipate)

	classes, err := gvn.LoadClasses(cfg, p.Bits)
	if err != nil {
		return nil, err
	}
	vn := func(r ir.Register) *expr.Expr { return classes.Get(r) }

	// Step 0: earliest insertion point for every edge.
	earliest := make(map[edgeKey]exprSet)
	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		for _, child := range b.Children() {
			earliest[edgeKey{label, child}] = toSet(antic.Earliest(avail, label, child))
		}
	}

	// Step 1: lateness flow.
	// later_in[B]  = intersect(later[P,B] for P preceding B)
	// later[B,C]   = (later_in[B] - alt[B]) + earliest[B,C]
	defs := make(map[string]exprSet)
	alts := make(map[string]exprSet)
	allExprs := exprSet{}
	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		defset := exprSet{}
		for _, inst := range b.Instructions {
			if d, ok := inst.(ir.Definition); ok {
				e := vn(d.Target())
				allExprs[e.Polish()] = e
				defset[e.Polish()] = e
			}
		}
		defs[label] = defset
		alts[label] = toSet(antic.Altered(label))
	}

	post := cfg.Postorder()
	later := make(map[string]exprSet)
	laterEdge := make(map[edgeKey]exprSet)
	for _, l := range cfg.Labels() {
		later[l] = exprSet{}
	}

	changedFlow := true
	for changedFlow {
		changedFlow = false
		for i := len(post) - 1; i >= 0; i-- {
			label := post[i]
			b := cfg.MustBlock(label)

			laterIn := allExprs.clone()
			for parent := range b.Parents {
				pe, ok := laterEdge[edgeKey{parent, label}]
				if !ok {
					pe = allExprs.clone()
				}
				laterIn = intersect(laterIn, pe)
			}
			if !laterIn.equal(later[label]) {
				changedFlow = true
				later[label] = laterIn
			}

			blockDefs := sub(defs[label], alts[label])
			for _, child := range b.Children() {
				key := edgeKey{label, child}
				e, ok := earliest[key]
				if !ok {
					e = exprSet{}
				}
				laterOut := union(sub(laterIn, blockDefs), e)
				if !laterOut.equal(laterEdge[key]) {
					changedFlow = true
					laterEdge[key] = laterOut
				}
			}
		}
	}

	// Step 2: insertion and deletion sets.
	deleteSet := make(map[string]exprSet)
	insertBlock := make(map[string]exprSet)
	insertEdge := make(map[edgeKey]exprSet)

	for _, label := range cfg.Labels() {
		del := exprSet{}
		for k, e := range defs[label] {
			if _, isAlt := alts[label][k]; isAlt {
				continue
			}
			if _, isLater := later[label][k]; isLater {
				continue
			}
			if keep(e) {
				del[k] = e
			}
		}
		deleteSet[label] = del

		b := cfg.MustBlock(label)
		children := b.Children()
		if len(children) == 0 {
			continue
		}

		c0 := children[0]
		edge0, ok := laterEdge[edgeKey{label, c0}]
		if !ok {
			edge0 = exprSet{}
		}
		insertBlock[label] = filterKeep(sub(edge0, later[c0]))

		if len(children) > 1 {
			c1 := children[1]

			firstEdge := intersect(insertBlock[label], toSet(antic.BlockAnticipatedIn(c0)))
			insertEdge[edgeKey{label, c0}] = firstEdge

			edge1, ok := laterEdge[edgeKey{label, c1}]
			if !ok {
				edge1 = exprSet{}
			}
			secondSet := filterKeep(sub(edge1, later[c1]))
			secondEdge := intersect(secondSet, toSet(antic.BlockAnticipatedIn(c1)))
			insertEdge[edgeKey{label, c1}] = secondEdge

			insertBlock[label] = intersect(insertBlock[label], secondEdge)

			insertEdge[edgeKey{label, c0}] = sub(insertEdge[edgeKey{label, c0}], insertBlock[label])
			insertEdge[edgeKey{label, c1}] = sub(insertEdge[edgeKey{label, c1}], insertBlock[label])
		}
		insertBlock[label] = intersect(insertBlock[label], toSet(antic.BlockAnticipatedOut(label)))
	}

	// Step 3: split any critical edge an edge-insertion lands on.
	type edgeInsert struct {
		key   edgeKey
		exprs exprSet
	}
	var edgeInserts []edgeInsert
	for key, exprs := range insertEdge {
		if len(exprs) == 0 {
			continue
		}
		edgeInserts = append(edgeInserts, edgeInsert{key, exprs})
	}
	sort.Slice(edgeInserts, func(i, j int) bool {
		if edgeInserts[i].key.from != edgeInserts[j].key.from {
			return edgeInserts[i].key.from < edgeInserts[j].key.from
		}
		return edgeInserts[i].key.to < edgeInserts[j].key.to
	})

	changedCFG := false
	for _, ei := range edgeInserts {
		crit, err := splitEdge(cfg, ei.key.from, ei.key.to)
		if err != nil {
			return nil, err
		}
		insertBlock[crit] = ei.exprs
		changedCFG = true
	}

	tree, err := dom.Build(cfg)
	if err != nil {
		return nil, err
	}

	// Step 4: substitute operands/definitions by a depth-first walk of
	// the dominator tree, inserting and deleting as decided above.
	vnrep := make(map[string]ir.Register)
	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		for _, inst := range b.Instructions {
			d, ok := inst.(ir.Definition)
			if !ok {
				continue
			}
			e := vn(d.Target())
			key := e.Polish()
			if e.Kind == expr.KindInt {
				vnrep[key] = ir.Register(e.String())
				continue
			}
			if _, exists := vnrep[key]; !exists {
				vnrep[key] = d.Target()
			}
		}
	}

	s := &substitution{
		cfg:         cfg,
		tree:        tree,
		vn:          vn,
		vnrep:       vnrep,
		dommem:      make(map[string]map[string]*ir.Register),
		deleteSet:   deleteSet,
		insertBlock: insertBlock,
		reg:         0,
	}
	s.dfsAndSub(cfg.EntrypointLabel())

	// Step 5: repair phi arguments that now name a register defined
	// earlier in the phi's own block, by copying the value into a fresh
	// register at the end of the predecessor block.
	for _, label := range cfg.Labels() {
		b := cfg.MustBlock(label)
		assigns := make(map[string]bool)
		for _, inst := range b.Instructions {
			if phi, ok := inst.(*ir.PhiInstruction); ok {
				for i := range phi.Args {
					reg := phi.Args[i].Value
					if assigns[string(reg)] {
						s.changed = true
						pred := phi.Args[i].Label
						predBlock := cfg.MustBlock(pred)
						fresh := s.newRegister()
						predBlock.Instructions = append(predBlock.Instructions, &ir.MovInstruction{Tgt: fresh, Src: reg})
						reg = fresh
					}
					phi.Args[i].Value = reg
				}
			}
			if d, ok := inst.(ir.Definition); ok {
				assigns[string(d.Target())] = true
			}
		}
	}

	preserved := []string{"vdcm"}
	if !changedCFG && !s.changed {
		preserved = append(preserved, "ssa", "available", "anticipatable")
	}
	return preserved, nil
}

// splitEdge inserts a fresh block between from and to, retargeting
// from's terminator and to's phi arguments accordingly, and returns
// the new block's label.
func splitEdge(cfg *ir.CFG, from, to string) (string, error) {
	label := pass.GenLabel(cfg, "vdcm")
	if _, err := cfg.AddBlock(label); err != nil {
		return "", err
	}
	newBlock := cfg.MustBlock(label)
	newBlock.Term = &ir.GotoTerminator{TargetLabel: to}

	b := cfg.MustBlock(from)
	switch t := b.Term.(type) {
	case *ir.GotoTerminator:
		t.TargetLabel = label
	case *ir.BranchTerminator:
		if t.IfTrue == to {
			t.IfTrue = label
		} else if t.IfFalse == to {
			t.IfFalse = label
		} else {
			return "", fmt.Errorf("vdcm: %q is not a branch target of %q", to, from)
		}
	default:
		return "", fmt.Errorf("vdcm: block %q has no edge to %q to split", from, to)
	}
	cfg.RecomputeParents()

	child := cfg.MustBlock(to)
	for _, inst := range child.Instructions {
		phi, ok := inst.(*ir.PhiInstruction)
		if !ok {
			break
		}
		for i := range phi.Args {
			if phi.Args[i].Label == from {
				phi.Args[i].Label = label
			}
		}
	}
	return label, nil
}
