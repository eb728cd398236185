package vdcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/dataflow"
	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
	"amigo/internal/ssa"
)

func newManager(t *testing.T, c *ir.CFG) (*pass.Manager, *VDCM) {
	t.Helper()
	m := pass.NewManager(c)
	require.NoError(t, m.Register(ssa.Analysis{}))

	avail, err := dataflow.NewAvailAnalysis("rpo", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Register(avail))

	ant, err := dataflow.NewAnticipate("rpo", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Register(ant))

	v, err := New("rpo", expr.DefaultBits)
	require.NoError(t, err)
	return m, v
}

// straightLine builds entry -> mid -> tail. entry computes %x = %a +
// %b; tail redundantly recomputes the same sum into %y and writes it.
func straightLine(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "mid", "tail"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err, "AddBlock(%s)", l)
	}
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%a", Src: "1"},
		&ir.MovInstruction{Tgt: "%b", Src: "2"},
		&ir.BinaryInstruction{Tgt: "%x", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("entry", "mid"))
	require.NoError(t, c.SetGoto("mid", "tail"))
	tail := c.MustBlock("tail")
	tail.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%y", Op: ir.OpAdd, Left: "%a", Right: "%b"},
		&ir.WriteInstruction{Src: "%y"},
	}
	require.NoError(t, c.SetExit("tail"))
	require.NoError(t, c.Validate(), "invalid CFG")
	return c
}

func TestEliminatesRedundantComputationInStraightLine(t *testing.T) {
	c := straightLine(t)
	m, v := newManager(t, c)

	require.NoError(t, m.Run(v))

	tail := c.MustBlock("tail")
	for _, inst := range tail.Instructions {
		_, ok := inst.(*ir.BinaryInstruction)
		assert.False(t, ok, "expected tail's redundant add to be deleted, still have %v", tail.Instructions)
	}

	var write *ir.WriteInstruction
	for _, inst := range tail.Instructions {
		if w, ok := inst.(*ir.WriteInstruction); ok {
			write = w
		}
	}
	require.NotNil(t, write, "expected tail to still have a write instruction")
	assert.Equal(t, ir.Register("%x"), write.Src, "expected the write to now read entry's %%x")
}

// diamond builds entry -> {left, right} -> join, where left, right,
// and join each separately recompute %a + %b. Lazy code motion should
// hoist the one genuinely needed computation as high as it safely can
// and delete the rest; this test only checks the invariant that must
// hold regardless of exactly where it lands: nothing references a
// register that was deleted out from under it.
func diamond(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err, "AddBlock(%s)", l)
	}
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%a", Src: "1"},
		&ir.MovInstruction{Tgt: "%b", Src: "2"},
		&ir.MovInstruction{Tgt: "%c", Src: "1"},
	}
	require.NoError(t, c.SetBranch("entry", "%c", "left", "right"))
	left := c.MustBlock("left")
	left.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%u", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("left", "join"))
	right := c.MustBlock("right")
	right.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%v", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("right", "join"))
	join := c.MustBlock("join")
	join.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%w", Op: ir.OpAdd, Left: "%a", Right: "%b"},
		&ir.WriteInstruction{Src: "%w"},
	}
	require.NoError(t, c.SetExit("join"))
	require.NoError(t, c.Validate(), "invalid CFG")
	return c
}

func TestDiamondRewriteHasNoDanglingReferences(t *testing.T) {
	c := diamond(t)
	m, v := newManager(t, c)

	require.NoError(t, m.Run(v))
	require.NoError(t, c.Validate(), "invalid CFG after vdcm")

	defined := map[ir.Register]bool{"%a": true, "%b": true, "%c": true}
	for _, label := range c.Labels() {
		for _, inst := range c.MustBlock(label).Instructions {
			if d, ok := inst.(ir.Definition); ok {
				defined[d.Target()] = true
			}
		}
	}

	checkOperands := func(where string, operands []ir.Register) {
		for _, op := range operands {
			if op.IsInt() || op == "" {
				continue
			}
			assert.True(t, defined[op], "%s references %s, which is defined nowhere in the rewritten CFG", where, op)
		}
	}
	for _, label := range c.Labels() {
		b := c.MustBlock(label)
		for _, inst := range b.Instructions {
			checkOperands(label+": "+inst.String(), inst.Operands())
		}
		if b.Term != nil {
			checkOperands(label+" terminator", b.Term.Operands())
		}
	}
}

func TestApplyPreservesAnalysesWhenNothingChanges(t *testing.T) {
	c := ir.NewCFG()
	_, err := c.AddBlock("entry")
	require.NoError(t, err)
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%a", Src: "1"},
		&ir.WriteInstruction{Src: "%a"},
	}
	require.NoError(t, c.SetExit("entry"))
	require.NoError(t, c.Validate(), "invalid CFG")

	m, v := newManager(t, c)
	_, err = m.Require("anticipatable")
	require.NoError(t, err)

	preserved, err := v.Apply(c, m)
	require.NoError(t, err)

	want := []string{"vdcm", "ssa", "available", "anticipatable"}
	got := map[string]bool{}
	for _, id := range preserved {
		got[id] = true
	}
	for _, id := range want {
		assert.True(t, got[id], "expected %q preserved when nothing changed, preserved=%v", id, preserved)
	}
}

func TestNewRejectsBadGVNArgument(t *testing.T) {
	_, err := New("gargi", expr.DefaultBits)
	assert.Error(t, err, "expected an error: vdcm does not support the gargi GVN variant")
}
