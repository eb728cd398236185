package interp

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amigo/internal/ir"
)

// fibonacciCFG builds a loop computing the n-th Fibonacci number via
// read/write suspension: read n, loop accumulating a,b, write result.
func fibonacciCFG(t *testing.T) *ir.CFG {
	t.Helper()
	c := ir.NewCFG()
	for _, l := range []string{"entry", "loop", "body", "done"} {
		_, err := c.AddBlock(l)
		require.NoError(t, err)
	}
	c.SetEntrypoint("entry")

	entry, _ := c.Block("entry")
	entry.Instructions = []ir.Instruction{
		&ir.ReadInstruction{Tgt: "%n"},
		&ir.MovInstruction{Tgt: "%a0", Src: "0"},
		&ir.MovInstruction{Tgt: "%b0", Src: "1"},
		&ir.MovInstruction{Tgt: "%i0", Src: "0"},
	}
	c.SetGoto("entry", "loop")

	loop, _ := c.Block("loop")
	loop.Instructions = []ir.Instruction{
		&ir.PhiInstruction{Tgt: "%a", Args: []ir.PhiArg{{Value: "%a0", Label: "entry"}, {Value: "%b", Label: "body"}}},
		&ir.PhiInstruction{Tgt: "%b", Args: []ir.PhiArg{{Value: "%b0", Label: "entry"}, {Value: "%nb", Label: "body"}}},
		&ir.PhiInstruction{Tgt: "%i", Args: []ir.PhiArg{{Value: "%i0", Label: "entry"}, {Value: "%i2", Label: "body"}}},
		&ir.BinaryInstruction{Tgt: "%cond", Op: ir.OpLt, Left: "%i", Right: "%n"},
	}
	c.SetBranch("loop", "%cond", "body", "done")

	body, _ := c.Block("body")
	body.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%nb", Op: ir.OpAdd, Left: "%a", Right: "%b"},
		&ir.BinaryInstruction{Tgt: "%i2", Op: ir.OpAdd, Left: "%i", Right: "1"},
	}
	c.SetGoto("body", "loop")

	done, _ := c.Block("done")
	done.Instructions = []ir.Instruction{
		&ir.WriteInstruction{Src: "%a"},
	}
	c.SetExit("done")

	require.NoError(t, c.Validate(), "invalid CFG")
	return c
}

func runToCompletion(t *testing.T, in *Interpreter, n int64) *big.Int {
	t.Helper()
	var result *big.Int
	for in.IsExecuting() {
		err := in.Step()
		if err == nil {
			continue
		}
		switch e := err.(type) {
		case *ReadInterrupt:
			in.Resolve(e.Register, big.NewInt(n))
		case *WriteInterrupt:
			result = new(big.Int).Set(in.Registers().Get(ir.Register(e.Register)))
		default:
			require.Failf(t, "unexpected interpreter error", "%v", err)
		}
	}
	return result
}

func TestFibonacciLoop(t *testing.T) {
	cfg := fibonacciCFG(t)
	in := New(64)
	require.NoError(t, in.Load(cfg))
	got := runToCompletion(t, in, 10)
	require.NotNil(t, got)
	assert.Equal(t, int64(55), got.Int64())
}

func TestDivisionByZero(t *testing.T) {
	c := ir.NewCFG()
	c.AddBlock("entry")
	c.SetEntrypoint("entry")
	entry, _ := c.Block("entry")
	entry.Instructions = []ir.Instruction{
		&ir.BinaryInstruction{Tgt: "%r", Op: ir.OpDiv, Left: "1", Right: "0"},
	}
	c.SetExit("entry")

	in := New(64)
	require.NoError(t, in.Load(c))
	err := in.Step()
	ie, ok := err.(*InstructionException)
	require.True(t, ok, "expected *InstructionException, got %T (%v)", err, err)

	_, ok = ie.Err.(*DivisionByZero)
	assert.True(t, ok, "expected DivisionByZero, got %v", ie.Err)
}
