package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamondCFG(t *testing.T) *CFG {
	t.Helper()
	c := NewCFG()
	for _, l := range []string{"entry", "left", "right", "join"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err, "AddBlock(%s)", l)
	}
	require.NoError(t, c.SetEntrypoint("entry"))
	require.NoError(t, c.SetBranch("entry", Register("%cond"), "left", "right"))
	require.NoError(t, c.SetGoto("left", "join"))
	require.NoError(t, c.SetGoto("right", "join"))
	require.NoError(t, c.SetExit("join"))
	return c
}

func TestDiamondParents(t *testing.T) {
	c := diamondCFG(t)
	join, _ := c.Block("join")
	assert.True(t, join.Parents["left"], "join parents = %v, want left and right", join.Parents)
	assert.True(t, join.Parents["right"], "join parents = %v, want left and right", join.Parents)
	assert.Len(t, join.Parents, 2)
}

func TestValidateRejectsDanglingSuccessor(t *testing.T) {
	c := NewCFG()
	c.AddBlock("entry")
	c.SetEntrypoint("entry")
	entry, _ := c.Block("entry")
	entry.Term = &GotoTerminator{TargetLabel: "nowhere"}
	assert.Error(t, c.Validate(), "expected BadFlowError for dangling successor")
}

func TestTidyRemovesUnreachableAndRepairsPhi(t *testing.T) {
	c := diamondCFG(t)
	c.AddBlock("dead")
	join, _ := c.Block("join")
	join.Instructions = append(join.Instructions, &PhiInstruction{
		Tgt: "%v",
		Args: []PhiArg{
			{Value: "%a", Label: "left"},
			{Value: "%b", Label: "right"},
		},
	})

	require.NoError(t, c.Tidy())
	_, ok := c.Block("dead")
	assert.False(t, ok, "dead block should have been removed")

	join, _ = c.Block("join")
	phi := join.Phis()[0]
	assert.Len(t, phi.Args, 2, "unaffected by removing unrelated dead block")
}

func TestRemoveBlockDropsPhiArgsReferencingIt(t *testing.T) {
	c := diamondCFG(t)
	join, _ := c.Block("join")
	join.Instructions = append(join.Instructions, &PhiInstruction{
		Tgt: "%v",
		Args: []PhiArg{
			{Value: "%a", Label: "left"},
			{Value: "%b", Label: "right"},
		},
	})
	// Rewire left to exit directly so right->join is the only path,
	// then remove it.
	c.SetExit("left")
	_ = c.RemoveBlock("right") // also drops right from join's parents

	phi := join.Phis()[0]
	require.Len(t, phi.Args, 1, "phi args after removing right, want only left")
	assert.Equal(t, "left", phi.Args[0].Label)
}

func TestRegisterKinds(t *testing.T) {
	cases := []struct {
		r            Register
		value, label bool
		intval       int64
		isInt        bool
	}{
		{"%x", true, false, 0, false},
		{"@L1", false, true, 0, false},
		{"-5", false, false, -5, true},
		{"42", false, false, 42, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.value, c.r.IsValue(), "%s.IsValue()", c.r)
		assert.Equal(t, c.label, c.r.IsLabel(), "%s.IsLabel()", c.r)
		n, ok := c.r.Int()
		assert.Equal(t, c.isInt, ok, "%s.Int() ok", c.r)
		if c.isInt {
			assert.Equal(t, c.intval, n, "%s.Int() value", c.r)
		}
	}
}
