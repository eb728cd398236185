package interp

import (
	"math/big"

	"amigo/internal/ir"
)

// Interpreter runs a loaded CFG one instruction at a time,
// cooperatively suspending at read, write, and breakpoint
// instructions instead of blocking on I/O itself.
type Interpreter struct {
	cfg   *ir.CFG
	regs  *Registers
	block *ir.BasicBlock
	index int

	prevLabel string
	hasPrev   bool
}

func New(bits uint) *Interpreter {
	return &Interpreter{regs: NewRegisters(bits)}
}

func (in *Interpreter) IsLoaded() bool    { return in.cfg != nil }
func (in *Interpreter) IsExecuting() bool { return in.block != nil }

func (in *Interpreter) Load(cfg *ir.CFG) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	in.cfg = cfg
	in.block = cfg.Entrypoint()
	in.index = 0
	in.hasPrev = false
	return nil
}

func (in *Interpreter) Reload() error {
	if in.cfg == nil {
		return &LoadError{Message: "cannot reload before loading a CFG"}
	}
	in.block = in.cfg.Entrypoint()
	in.index = 0
	in.hasPrev = false
	return nil
}

func (in *Interpreter) Registers() *Registers { return in.regs }

func (in *Interpreter) BlockLabel() (string, error) {
	if !in.IsLoaded() {
		return "", &LoadError{Message: "CFG is not loaded"}
	}
	if !in.IsExecuting() {
		return "", &LoadError{Message: "program has completed"}
	}
	return in.block.Label, nil
}

func sequence(b *ir.BasicBlock) []ir.Instruction {
	seq := make([]ir.Instruction, 0, len(b.Instructions)+1)
	seq = append(seq, b.Instructions...)
	seq = append(seq, b.Term)
	return seq
}

func (in *Interpreter) CurrentInstruction() (ir.Instruction, error) {
	if !in.IsExecuting() {
		return nil, &LoadError{Message: "program is not executing"}
	}
	seq := sequence(in.block)
	if in.index >= len(seq) {
		return nil, &LoadError{Message: "no instruction queued"}
	}
	return seq[in.index], nil
}

// Step executes exactly one instruction and advances the program
// counter. It returns a *ReadInterrupt, *WriteInterrupt, or
// *BreakpointInterrupt to request host interaction, or a terminal
// error (wrapped in *InstructionException) on a genuine fault.
func (in *Interpreter) Step() error {
	if !in.IsLoaded() {
		return &LoadError{Message: "CFG is not loaded"}
	}
	if !in.IsExecuting() {
		return &LoadError{Message: "program has already completed"}
	}
	block := in.block
	seq := sequence(block)
	inst := seq[in.index]
	in.index++

	err := in.execute(inst)
	if err != nil {
		switch err.(type) {
		case *ReadInterrupt, *WriteInterrupt, *BreakpointInterrupt:
			return err
		default:
			return &InstructionException{Block: block.Label, Index: in.index - 1, Err: err}
		}
	}
	return nil
}

func (in *Interpreter) execute(inst ir.Instruction) error {
	switch i := inst.(type) {
	case *ir.MovInstruction:
		in.regs.Set(i.Tgt, in.regs.Get(i.Src))
		return nil

	case *ir.PhiInstruction:
		if !in.hasPrev {
			return &UnknownInstruction{Message: "phi evaluated with no predecessor history"}
		}
		for _, a := range i.Args {
			if a.Label == in.prevLabel {
				in.regs.Set(i.Tgt, in.regs.Get(a.Value))
				return nil
			}
		}
		return &UnknownInstruction{Message: "phi cannot resolve branch from @" + in.prevLabel}

	case *ir.BinaryInstruction:
		return in.executeBinary(i)

	case *ir.ReadInstruction:
		return &ReadInterrupt{Register: string(i.Tgt)}

	case *ir.WriteInstruction:
		return &WriteInterrupt{Register: string(i.Src)}

	case *ir.BrkInstruction:
		return &BreakpointInterrupt{Name: i.Name}

	case *ir.GotoTerminator:
		in.transfer(i.TargetLabel)
		return nil

	case *ir.BranchTerminator:
		if in.regs.Get(i.Cond).Sign() != 0 {
			in.transfer(i.IfTrue)
		} else {
			in.transfer(i.IfFalse)
		}
		return nil

	case *ir.ExitTerminator:
		in.prevLabel = in.block.Label
		in.hasPrev = true
		in.block = nil
		return nil

	default:
		return &UnknownInstruction{Message: "unimplemented instruction"}
	}
}

func (in *Interpreter) transfer(target string) {
	in.prevLabel = in.block.Label
	in.hasPrev = true
	in.block = in.cfg.MustBlock(target)
	in.index = 0
}

func (in *Interpreter) executeBinary(i *ir.BinaryInstruction) error {
	a, b := in.regs.Get(i.Left), in.regs.Get(i.Right)
	var res *big.Int

	switch i.Op {
	case ir.OpAdd:
		res = new(big.Int).Add(a, b)
	case ir.OpSub:
		res = new(big.Int).Sub(a, b)
	case ir.OpMul:
		res = new(big.Int).Mul(a, b)
	case ir.OpDiv:
		if b.Sign() == 0 {
			return &DivisionByZero{Op: "division"}
		}
		res, _ = floorDivMod(a, b)
	case ir.OpMod:
		if b.Sign() == 0 {
			return &DivisionByZero{Op: "modulo"}
		}
		_, res = floorDivMod(a, b)
	case ir.OpAnd:
		res = new(big.Int).And(a, b)
	case ir.OpOr:
		res = new(big.Int).Or(a, b)
	case ir.OpXor:
		res = new(big.Int).Xor(a, b)
	case ir.OpLShift:
		res = shift(a, b, true)
	case ir.OpRShift:
		res = shift(a, b, false)
	case ir.OpEq:
		res = boolInt(a.Cmp(b) == 0)
	case ir.OpNeq:
		res = boolInt(a.Cmp(b) != 0)
	case ir.OpLt:
		res = boolInt(a.Cmp(b) < 0)
	case ir.OpLeq:
		res = boolInt(a.Cmp(b) <= 0)
	default:
		return &UnknownInstruction{Message: "unimplemented binary operation"}
	}
	in.regs.Set(i.Tgt, res)
	return nil
}

// shift implements a<<b (left=true) or a>>b (left=false) with
// negative shift amounts mirroring direction, matching the algebra's
// own shift-reduction rules (internal/expr).
func shift(a, b *big.Int, left bool) *big.Int {
	if b.Sign() < 0 {
		left = !left
		b = new(big.Int).Neg(b)
	}
	n := uint(b.Uint64())
	if left {
		return new(big.Int).Lsh(a, n)
	}
	return new(big.Int).Rsh(a, n)
}

// floorDivMod implements Python-style floor division: the quotient
// rounds toward negative infinity and the remainder takes the sign
// of the divisor, matching ampy's interpreter semantics (Python's //
// and % operators).
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	q, r := new(big.Int), new(big.Int)
	q.QuoRem(a, b, r)
	if r.Sign() != 0 && (r.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		r.Add(r, b)
	}
	return q, r
}

func boolInt(v bool) *big.Int {
	if v {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// Resolve completes a suspended read by writing value into the
// interrupted register.
func (in *Interpreter) Resolve(register string, value *big.Int) {
	in.regs.Set(ir.Register(register), value)
}
