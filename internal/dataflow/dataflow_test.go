package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/expr"
	"amigo/internal/ir"
	"amigo/internal/pass"
	"amigo/internal/ssa"
)

func newManager(t *testing.T, c *ir.CFG) *pass.Manager {
	t.Helper()
	m := pass.NewManager(c)
	require.NoError(t, m.Register(ssa.Analysis{}))

	avail, err := NewAvailAnalysis("rpo", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Register(avail))

	ant, err := NewAnticipate("rpo", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Register(ant))
	return m
}

// straightLine builds entry -> mid -> tail, where entry computes
// %x = %a + %b, mid redefines nothing relevant, and tail recomputes
// the same sum into %y, letting us check that %x's value number is
// available by the time %y's redundant computation is reached, and
// anticipated again at tail, which recomputes it.
func straightLine(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "mid", "tail"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err)
	}
	require.NoError(t, c.SetEntrypoint("entry"))
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%a", Src: "1"},
		&ir.MovInstruction{Tgt: "%b", Src: "2"},
		&ir.BinaryInstruction{Tgt: "%x", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("entry", "mid"))
	mid := c.MustBlock("mid")
	mid.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%x"},
	}
	require.NoError(t, c.SetGoto("mid", "tail"))
	tail := c.MustBlock("tail")
	tail.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%y", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetExit("tail"))
	require.NoError(t, c.Validate(), "invalid CFG")
	return c
}

func TestAvailabilityPropagatesAcrossBlocks(t *testing.T) {
	c := straightLine(t)
	m := newManager(t, c)

	availAny, err := m.Require("available")
	require.NoError(t, err)
	avail := availAny.(*AvailAnalysis)

	sum := expr.Build(expr.OpAdd, expr.DefaultBits, expr.IntN(1, expr.DefaultBits), expr.IntN(2, expr.DefaultBits))

	out := avail.BlockAvailOut("entry")
	found := false
	for _, e := range out {
		if e.Equal(sum) {
			found = true
		}
	}
	assert.True(t, found, "expected the sum to be available leaving entry, got %v", out)

	// It should still be available at tail's head, inherited through mid.
	in := avail.BlockAvailIn("tail")
	found = false
	for _, e := range in {
		if e.Equal(sum) {
			found = true
		}
	}
	assert.True(t, found, "expected the sum to remain available entering tail, got %v", in)
}

func TestEarliestIsEmptyWhenAlreadyAvailable(t *testing.T) {
	c := straightLine(t)
	m := newManager(t, c)

	_, err := m.Require("available")
	require.NoError(t, err)
	antAny, err := m.Require("anticipatable")
	require.NoError(t, err)
	ant := antAny.(*Anticipate)
	availAny, _ := m.Require("available")
	avail := availAny.(*AvailAnalysis)

	got := ant.Earliest(avail, "mid", "tail")
	assert.Empty(t, got, "expected nothing to need inserting between mid and tail")
}

func TestAnticipatedInReflectsBlocksRecomputation(t *testing.T) {
	c := straightLine(t)
	m := newManager(t, c)

	antAny, err := m.Require("anticipatable")
	require.NoError(t, err)
	ant := antAny.(*Anticipate)

	sum := expr.Build(expr.OpAdd, expr.DefaultBits, expr.IntN(1, expr.DefaultBits), expr.IntN(2, expr.DefaultBits))
	in := ant.BlockAnticipatedIn("tail")
	found := false
	for _, e := range in {
		if e.Equal(sum) {
			found = true
		}
	}
	assert.True(t, found, "expected the sum to be anticipated entering tail (recomputed there), got %v", in)
}

func TestNewAvailAnalysisRejectsBadGVNArgument(t *testing.T) {
	_, err := NewAvailAnalysis("bogus", expr.DefaultBits)
	assert.Error(t, err, "expected an error for an unrecognised gvn selector")
}
