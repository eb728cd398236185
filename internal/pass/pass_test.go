package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/ir"
)

func newManager(cfg *ir.CFG) *Manager {
	m := NewManager(cfg)
	m.Register(NewDefAnalysis())
	m.Register(NewLiveAnalysis())
	return m
}

func TestRequireCachesUntilInvalidated(t *testing.T) {
	c := ir.NewCFG()
	c.AddBlock("entry")
	c.SetEntrypoint("entry")
	c.SetExit("entry")

	m := newManager(c)
	runs := 0
	m.Register(countingAnalysis{id: "counter", count: &runs})

	_, err := m.Require("counter")
	require.NoError(t, err)
	_, err = m.Require("counter")
	require.NoError(t, err)
	assert.Equal(t, 1, runs, "expected 1 run before invalidation")

	m.Invalidate("counter")
	_, err = m.Require("counter")
	require.NoError(t, err)
	assert.Equal(t, 2, runs, "expected 2 runs after invalidation")
}

type countingAnalysis struct {
	id    string
	count *int
}

func (c countingAnalysis) ID() string { return c.id }
func (c countingAnalysis) Compute(cfg *ir.CFG, m *Manager) error {
	*c.count++
	return nil
}

func TestBranchElimFoldsConstantBranch(t *testing.T) {
	c := ir.NewCFG()
	c.AddBlock("entry")
	c.AddBlock("left")
	c.AddBlock("right")
	c.SetEntrypoint("entry")
	c.SetBranch("entry", "1", "left", "right")
	c.SetExit("left")
	c.SetExit("right")
	c.MustBlock("left").Instructions = []ir.Instruction{&ir.WriteInstruction{Src: "1"}}
	c.MustBlock("right").Instructions = []ir.Instruction{&ir.WriteInstruction{Src: "2"}}

	m := newManager(c)
	require.NoError(t, m.Run(BranchElim{}))

	// Once the branch folds to goto left, entry is left's only parent,
	// so BranchElim also merges left into entry.
	entry := c.MustBlock("entry")
	_, ok := entry.Term.(*ir.ExitTerminator)
	require.True(t, ok, "expected entry to take over left's exit, got %T", entry.Term)
	assert.Equal(t, []ir.Instruction{&ir.WriteInstruction{Src: "1"}}, entry.Instructions, "constant-true branch should fold to left")
}

func TestDCERemovesDeadDefinition(t *testing.T) {
	c := ir.NewCFG()
	c.AddBlock("entry")
	c.SetEntrypoint("entry")
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%dead", Src: "0"},
		&ir.MovInstruction{Tgt: "%x", Src: "1"},
		&ir.WriteInstruction{Src: "%x"},
	}
	c.SetExit("entry")

	m := newManager(c)
	require.NoError(t, m.Run(DCE{}))

	entry = c.MustBlock("entry")
	for _, inst := range entry.Instructions {
		if mv, ok := inst.(*ir.MovInstruction); ok {
			assert.NotEqual(t, ir.Register("%dead"), mv.Tgt, "dead definition %%dead should have been removed")
		}
	}
	assert.Len(t, entry.Instructions, 2, "expected 2 surviving instructions")
}

func TestPhiElimLowersPhiToMoves(t *testing.T) {
	c := ir.NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		c.AddBlock(l)
	}
	c.SetEntrypoint("entry")
	c.SetBranch("entry", "%cond", "left", "right")
	c.SetGoto("left", "join")
	c.SetGoto("right", "join")
	join := c.MustBlock("join")
	join.Instructions = []ir.Instruction{
		&ir.PhiInstruction{Tgt: "%x", Args: []ir.PhiArg{
			{Value: "1", Label: "left"},
			{Value: "2", Label: "right"},
		}},
	}
	c.SetExit("join")

	m := newManager(c)
	require.NoError(t, m.Run(PhiElim{}))

	join = c.MustBlock("join")
	assert.Empty(t, join.Phis(), "expected no remaining phis")

	left := c.MustBlock("left")
	require.Len(t, left.Instructions, 1, "expected a mov appended to left")
	_, ok := left.Instructions[0].(*ir.MovInstruction)
	assert.True(t, ok, "expected left's appended instruction to be a mov, got %T", left.Instructions[0])
}
