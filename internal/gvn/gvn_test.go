package gvn

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
	return m
}

// diamondRedundant builds a diamond CFG where both arms compute the
// same sum into different registers, so a correct GVN pass must place
// them in the same value-number class.
func diamondRedundant(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err)
	}
	require.NoError(t, c.SetEntrypoint("entry"))
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%a", Src: "1"},
		&ir.MovInstruction{Tgt: "%b", Src: "2"},
	}
	require.NoError(t, c.SetBranch("entry", "%cond", "left", "right"))

	left := c.MustBlock("left")
	left.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%x", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("left", "join"))

	right := c.MustBlock("right")
	right.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%y", Op: ir.OpAdd, Left: "%a", Right: "%b"},
	}
	require.NoError(t, c.SetGoto("right", "join"))

	join := c.MustBlock("join")
	join.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%x"},
		&ir.WriteInstruction{Src: "%y"},
	}
	require.NoError(t, c.SetExit("join"))
	require.NoError(t, c.Validate(), "invalid CFG")
	return c
}

func TestRPOUnifiesRedundantComputation(t *testing.T) {
	c := diamondRedundant(t)
	m := newManager(t, c)

	rpo, err := NewRPO("expr", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Run(rpo))

	classes, err := rpo.Classes(c)
	require.NoError(t, err)
	assert.True(t, classes.Get("%x").Equal(classes.Get("%y")),
		"%%x and %%y should share a value number, got %s and %s", classes.Get("%x").Polish(), classes.Get("%y").Polish())
}

func TestSCCUnifiesRedundantComputation(t *testing.T) {
	c := diamondRedundant(t)
	m := newManager(t, c)

	scc, err := NewSCC("expr", expr.DefaultBits)
	require.NoError(t, err)
	require.NoError(t, m.Run(scc))

	classes, err := scc.Classes(c)
	require.NoError(t, err)
	assert.True(t, classes.Get("%x").Equal(classes.Get("%y")),
		"%%x and %%y should share a value number, got %s and %s", classes.Get("%x").Polish(), classes.Get("%y").Polish())
}

func TestGargiUnifiesRedundantComputation(t *testing.T) {
	c := diamondRedundant(t)
	m := newManager(t, c)

	g := NewGargi(expr.DefaultBits)
	require.NoError(t, m.Run(g))

	classes, err := g.Classes(c)
	require.NoError(t, err)
	assert.True(t, classes.Get("%x").Equal(classes.Get("%y")),
		"%%x and %%y should share a value number, got %s and %s", classes.Get("%x").Polish(), classes.Get("%y").Polish())
}

func TestGargiEliminatesUnreachableBranch(t *testing.T) {
	c := ir.NewCFG()
	for _, l := range []string{"entry", "live", "dead"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err)
	}
	require.NoError(t, c.SetEntrypoint("entry"))
	entry := c.MustBlock("entry")
	entry.Instructions = []ir.Instruction{
		&ir.MovInstruction{Tgt: "%cond", Src: "0"},
	}
	require.NoError(t, c.SetBranch("entry", "%cond", "dead", "live"))
	live := c.MustBlock("live")
	live.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%cond"},
	}
	require.NoError(t, c.SetExit("live"))
	dead := c.MustBlock("dead")
	dead.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%cond"},
	}
	require.NoError(t, c.SetExit("dead"))
	require.NoError(t, c.Validate(), "invalid CFG")

	m := newManager(t, c)
	g := NewGargi(expr.DefaultBits)
	require.NoError(t, m.Run(g))

	_, ok := c.Block("dead")
	assert.False(t, ok, "branch on a constant-false condition should drop the dead arm")
}

func TestNewRPORejectsBadMode(t *testing.T) {
	_, err := NewRPO("bogus", expr.DefaultBits)
	assert.Error(t, err, "expected an error for an unrecognised mode")
}

func TestClassesFallsBackToOwnAtomWhenUnnumbered(t *testing.T) {
	c := &Classes{vn: map[string]*expr.Expr{}, bits: expr.DefaultBits}
	got := c.Get("%never-defined")
	want := expr.Atom("%never-defined", expr.DefaultBits)
	assert.True(t, got.Equal(want), "expected fallback atom, got %s", got.Polish())
}
