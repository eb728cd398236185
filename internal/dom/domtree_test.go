package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/ir"
)

func diamond(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		c.AddBlock(l)
	}
	c.SetEntrypoint("entry")
	c.SetBranch("entry", "%cond", "left", "right")
	c.SetGoto("left", "join")
	c.SetGoto("right", "join")
	c.SetExit("join")
	return c
}

func TestDominatorTreeDiamond(t *testing.T) {
	c := diamond(t)
	tree, err := Build(c)
	require.NoError(t, err)

	idom, ok := tree.Idom("left")
	require.True(t, ok)
	assert.Equal(t, "entry", idom)

	idom, ok = tree.Idom("join")
	require.True(t, ok)
	assert.Equal(t, "entry", idom, "join is not dominated by left or right alone")

	assert.True(t, tree.Dominates("entry", "join"), "entry should dominate join")
	assert.False(t, tree.Dominates("left", "join"), "left should not dominate join")
	assert.False(t, tree.StrictlyDominates("join", "join"), "join should not strictly dominate itself")
}

func TestDominatorTreeChain(t *testing.T) {
	c := ir.NewCFG()
	for _, l := range []string{"a", "b", "c"} {
		c.AddBlock(l)
	}
	c.SetEntrypoint("a")
	c.SetGoto("a", "b")
	c.SetGoto("b", "c")
	c.SetExit("c")

	tree, err := Build(c)
	require.NoError(t, err)

	assert.True(t, tree.Dominates("a", "c"), "a should dominate c in a straight chain")
	assert.True(t, tree.Dominates("b", "c"), "b should dominate c in a straight chain")
	assert.Equal(t, []string{"b"}, tree.Children("a"))
}
