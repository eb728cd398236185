package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/ir"
)

func TestConstructInsertsPhiAtJoin(t *testing.T) {
	c := ir.NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		c.AddBlock(l)
	}
	c.SetEntrypoint("entry")

	entry, _ := c.Block("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%x", Src: "0"},
		&ir.MovInstruction{Tgt: "%cond", Src: "1"},
	}
	c.SetBranch("entry", "%cond", "left", "right")

	left, _ := c.Block("left")
	left.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%x", Op: ir.OpAdd, Left: "%x", Right: "1"},
	}
	c.SetGoto("left", "join")

	right, _ := c.Block("right")
	right.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%x", Op: ir.OpAdd, Left: "%x", Right: "2"},
	}
	c.SetGoto("right", "join")

	join, _ := c.Block("join")
	join.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%x"},
	}
	c.SetExit("join")

	require.NoError(t, c.Validate(), "invalid CFG before SSA")
	require.NoError(t, Construct(c))

	join, _ = c.Block("join")
	phis := join.Phis()
	require.Len(t, phis, 1, "join should have exactly one phi")
	assert.Len(t, phis[0].Args, 2)

	seenDefs := make(map[ir.Register]bool)
	for _, l := range c.Labels() {
		b := c.MustBlock(l)
		for _, inst := range b.Instructions {
			if d, ok := inst.(ir.Definition); ok {
				assert.False(t, seenDefs[d.Target()], "register %s defined more than once: not SSA", d.Target())
				seenDefs[d.Target()] = true
			}
		}
	}
}
